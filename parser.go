package avro

import "fmt"

// Parser is the stack-driven symbol advancer described in spec.md section
// 4.4. It knows nothing about wire formats; all format knowledge lives in
// the symbols it holds and in the Action implementations that implicit
// actions carry. Growth follows the spec's 1.5x factor explicitly, rather
// than relying on Go's append growth policy, since the spec calls the
// factor out as a property of the engine.
type Parser struct {
	stack []*Symbol
}

// NewParser starts a parser with root on the stack.
func NewParser(root *Symbol) *Parser {
	p := &Parser{stack: make([]*Symbol, 0, 16)}
	p.push(root)
	return p
}

func (p *Parser) push(s *Symbol) {
	if len(p.stack) == cap(p.stack) {
		grown := make([]*Symbol, len(p.stack), int(float64(cap(p.stack))*1.5)+1)
		copy(grown, p.stack)
		p.stack = grown
	}
	p.stack = append(p.stack, s)
}

func (p *Parser) pushAllReverse(symbols []*Symbol) {
	for i := len(symbols) - 1; i >= 0; i-- {
		p.push(symbols[i])
	}
}

func (p *Parser) pop() *Symbol {
	n := len(p.stack) - 1
	s := p.stack[n]
	p.stack = p.stack[:n]
	return s
}

func (p *Parser) peek() *Symbol {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// Depth reports the current stack depth, used by skip/reorder logic to
// bound recursive descents (spec.md section 4.4).
func (p *Parser) Depth() int { return len(p.stack) }

// Advance drives the engine until the stack top matches expected, an
// implicit action yields a value, or an error occurs. See spec.md section
// 4.4 for the exact rules; TArrayEnd/TMapEnd requests against a live
// Repeater are how callers signal "this block has no more items".
func (p *Parser) Advance(expected *Symbol) (*Symbol, error) {
	for {
		top := p.peek()
		if top == nil {
			return nil, fmt.Errorf("avro: parser stack exhausted while expecting %s", expected)
		}
		if top == expected {
			p.pop()
			return top, nil
		}
		switch top.Kind {
		case KindImplicitAction:
			p.pop()
			yielded, err := top.Action.Execute(p)
			if err != nil {
				return nil, err
			}
			if yielded != nil {
				return yielded, nil
			}
			continue
		case KindTerminal:
			if expected != nil && expected.Kind == KindTerminal && expected.Terminal == top.Terminal {
				p.pop()
				return top, nil
			}
			return nil, &TypeMismatchError{Expected: describeSymbol(expected), Actual: describeSymbol(top)}
		case KindRepeater:
			if expected != nil && top.Repeater.End == expected {
				p.pop()
				return top.Repeater.End, nil
			}
			p.push(top.Repeater.Item)
			continue
		case KindAlternative:
			if expected != nil && expected.Kind == KindTerminal && expected.Terminal == TUnion {
				p.pop()
				return top, nil
			}
			return nil, fmt.Errorf("avro: union symbol requires a TUnion advance to select a branch")
		default: // KindSequence, KindRoot
			p.pop()
			p.pushAllReverse(top.Production)
			continue
		}
	}
}

// SelectBranch is called after Advance(unionMarker) returns the Alternative
// symbol: it pushes the chosen branch's production so the next Advance call
// resumes inside it.
func (p *Parser) SelectBranch(alt *Symbol, index int) {
	p.push(alt.Alternative.Symbols[index])
}

// ProcessImplicitActions drains every implicit action sitting at the top of
// the stack without consuming a terminal, running each to completion. It
// stops at the first terminal, repeater or alternative it finds. Decoders
// call this before inspecting "what comes next" without committing to
// reading a particular symbol (e.g. before deciding whether a record is
// done).
func (p *Parser) ProcessImplicitActions() error {
	for {
		top := p.peek()
		if top == nil || top.Kind != KindImplicitAction {
			return nil
		}
		p.pop()
		if _, err := top.Action.Execute(p); err != nil {
			return err
		}
	}
}

// ProcessTrailingImplicitActions drains only actions flagged as trailing-
// only (FieldOrderAction is the sole example: it must run after the whole
// record body has been read, not interleaved with field reads).
func (p *Parser) ProcessTrailingImplicitActions() error {
	for {
		top := p.peek()
		if top == nil || top.Kind != KindImplicitAction {
			return nil
		}
		if _, ok := top.Action.(*fieldOrderAction); !ok {
			return nil
		}
		p.pop()
		if _, err := top.Action.Execute(p); err != nil {
			return err
		}
	}
}

func describeSymbol(s *Symbol) string {
	if s == nil {
		return "<nil>"
	}
	return s.String()
}
