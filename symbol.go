package avro

import "fmt"

// SymbolKind tags the variant a Symbol belongs to (spec.md section 3's
// Symbol data model): a wire terminal, a non-terminal that expands into a
// production, a blocked-iteration repeater, an alternative (union) choice
// point, or an action that runs for its side effect and yields no wire
// bytes of its own.
type SymbolKind uint8

const (
	KindTerminal SymbolKind = iota
	KindSequence
	KindRepeater
	KindAlternative
	KindImplicitAction
	KindRoot
)

// Terminal enumerates the wire-level atoms the grammar compiles schemas
// down to. Every primitive type gets one; structural markers (record/array/
// map begin and end, field boundaries) round out the set so that the plain
// and the resolving grammars share a single terminal vocabulary.
type Terminal uint8

const (
	TNull Terminal = iota
	TBoolean
	TInt
	TLong
	TFloat
	TDouble
	TBytes
	TString
	TFixed
	TEnum
	TArrayStart
	TArrayEnd
	TMapStart
	TMapEnd
	TUnion
	TRecordStart
	TRecordEnd
	TFieldEnd
)

func (t Terminal) String() string {
	switch t {
	case TNull:
		return "null"
	case TBoolean:
		return "boolean"
	case TInt:
		return "int"
	case TLong:
		return "long"
	case TFloat:
		return "float"
	case TDouble:
		return "double"
	case TBytes:
		return "bytes"
	case TString:
		return "string"
	case TFixed:
		return "fixed"
	case TEnum:
		return "enum"
	case TArrayStart:
		return "array-start"
	case TArrayEnd:
		return "array-end"
	case TMapStart:
		return "map-start"
	case TMapEnd:
		return "map-end"
	case TUnion:
		return "union"
	case TRecordStart:
		return "record-start"
	case TRecordEnd:
		return "record-end"
	case TFieldEnd:
		return "field-end"
	default:
		return "terminal?"
	}
}

// Repeater is the production for a blocked array/map: Item is pushed once
// per element the decoder's block-count logic determines exists; End is
// the terminal that closes the block.
type Repeater struct {
	Start *Symbol
	End   *Symbol
	Item  *Symbol
}

// Alternative is a union choice point: parallel Labels/Symbols slices, one
// entry per branch, in schema declaration order.
type Alternative struct {
	Labels  []string
	Symbols []*Symbol
}

func (a *Alternative) IndexOf(label string) (int, bool) {
	for i, l := range a.Labels {
		if l == label {
			return i, true
		}
	}
	return 0, false
}

// Action is executed when an IMPLICIT_ACTION symbol reaches the top of the
// parser stack. It may return a symbol for the caller to treat as the
// result of the Advance call (used by resolution actions that need to
// surface a value, e.g. a materialized default), or nil to mean "continue
// the engine's loop, nothing to report yet".
type Action interface {
	Execute(p *Parser) (*Symbol, error)
	String() string
}

// Symbol is a node in a compiled grammar. Symbols are treated as immutable
// once compileSchema/CompileResolution returns; Sequence production slices
// are appended to only during construction (including cycle-patching for
// recursive records), never afterward.
type Symbol struct {
	Kind        SymbolKind
	Terminal    Terminal
	Label       string
	Production  []*Symbol
	Repeater    *Repeater
	Alternative *Alternative
	Action      Action

	// Present only for the matching terminal kind:
	FixedSchema *FixedSchema
	EnumSchema  *EnumSchema

	// Promote is set on a resolving-grammar terminal whose wire
	// representation (writer's type) differs from the reader's target type
	// (spec.md section 4.5 promotion table: int->long/float/double, ...,
	// string<->bytes). The terminal itself still names the writer's wire
	// type; Promote names what the datum reader must widen the decoded
	// value to afterward.
	Promote *Promotion

	// EnumAdjust, when non-nil, maps a writer enum ordinal (the slice
	// index) to the reader's ordinal, resolved at grammar-compile time by
	// exact symbol name, then reader default (see resolving_grammar.go).
	EnumAdjust []int

	// FieldMeta is set on the implicit-action marker symbol an action
	// yields when resolving one record field slot; see resolving_grammar.go.
	FieldMeta *FieldResolution

	// ReaderSchema is the reader-side schema this symbol ultimately produces
	// a value shaped like. Primitive terminals and record sequences carry it
	// so the datum reader (datum.go) can construct GenericRecord/logical
	// values without re-walking the schema tree in lockstep with the
	// grammar; a nested Fixed/Enum additionally exposes its concrete
	// schema through FixedSchema/EnumSchema for convenience.
	ReaderSchema Schema
}

// Promotion names the reader-side widening applied to a value whose wire
// encoding followed the writer's (narrower or differently-shaped) type.
type Promotion struct {
	ReaderType int // Long, Float, Double, Bytes, String, ...
}

func (s *Symbol) String() string {
	switch s.Kind {
	case KindTerminal:
		return s.Terminal.String()
	case KindImplicitAction:
		return "action:" + s.Action.String()
	case KindRepeater:
		return "repeater(" + s.Repeater.End.String() + ")"
	case KindAlternative:
		return "alternative"
	default:
		return s.Label
	}
}

var (
	symNull        = &Symbol{Kind: KindTerminal, Terminal: TNull}
	symBoolean     = &Symbol{Kind: KindTerminal, Terminal: TBoolean}
	symInt         = &Symbol{Kind: KindTerminal, Terminal: TInt}
	symLong        = &Symbol{Kind: KindTerminal, Terminal: TLong}
	symFloat       = &Symbol{Kind: KindTerminal, Terminal: TFloat}
	symDouble      = &Symbol{Kind: KindTerminal, Terminal: TDouble}
	symBytes       = &Symbol{Kind: KindTerminal, Terminal: TBytes}
	symString      = &Symbol{Kind: KindTerminal, Terminal: TString}
	symArrayStart  = &Symbol{Kind: KindTerminal, Terminal: TArrayStart}
	symArrayEnd    = &Symbol{Kind: KindTerminal, Terminal: TArrayEnd}
	symMapStart    = &Symbol{Kind: KindTerminal, Terminal: TMapStart}
	symMapEnd      = &Symbol{Kind: KindTerminal, Terminal: TMapEnd}
	symUnion       = &Symbol{Kind: KindTerminal, Terminal: TUnion}
	symRecordStart = &Symbol{Kind: KindTerminal, Terminal: TRecordStart}
	symRecordEnd   = &Symbol{Kind: KindTerminal, Terminal: TRecordEnd}
	symFieldEnd    = &Symbol{Kind: KindTerminal, Terminal: TFieldEnd}
)

// Grammar is a compiled, cacheable production graph rooted at Root. It is
// keyed externally by schema fingerprint (spec.md sections 4.3/6).
type Grammar struct {
	Root   *Symbol
	Schema Schema
}

// compileSchema expands a schema into its root grammar symbol by recursive
// descent (spec.md section 4.3). cache maps a record's identity (the
// *RecordSchema pointer shared by every RecursiveSchema reference to it) to
// the in-progress Sequence symbol, so a cyclic/self-referential record
// compiles to a finite graph: the placeholder is registered before its
// fields are compiled and patched with the real production once they are.
func compileSchema(s Schema) *Symbol {
	return compileSchemaCached(s, make(map[*RecordSchema]*Symbol))
}

func compileSchemaCached(s Schema, cache map[*RecordSchema]*Symbol) *Symbol {
	switch t := s.(type) {
	case *NullSchema:
		return symNull
	case *BooleanSchema:
		return symBoolean
	case *IntSchema:
		return symInt
	case *LongSchema:
		return symLong
	case *FloatSchema:
		return symFloat
	case *DoubleSchema:
		return symDouble
	case *StringSchema:
		return symString
	case *BytesSchema:
		return symBytes
	case *FixedSchema:
		return &Symbol{Kind: KindTerminal, Terminal: TFixed, Label: GetFullName(t), FixedSchema: t, ReaderSchema: t}
	case *EnumSchema:
		return &Symbol{Kind: KindTerminal, Terminal: TEnum, Label: GetFullName(t), EnumSchema: t, ReaderSchema: t}
	case *ArraySchema:
		item := compileSchemaCached(t.Items, cache)
		return &Symbol{Kind: KindRepeater, Repeater: &Repeater{Start: symArrayStart, End: symArrayEnd, Item: item}, ReaderSchema: t}
	case *MapSchema:
		item := compileSchemaCached(t.Values, cache)
		return &Symbol{Kind: KindRepeater, Repeater: &Repeater{Start: symMapStart, End: symMapEnd, Item: item}, ReaderSchema: t}
	case *UnionSchema:
		labels := make([]string, len(t.Types))
		symbols := make([]*Symbol, len(t.Types))
		for i, branch := range t.Types {
			labels[i] = BranchLabel(branch)
			symbols[i] = compileSchemaCached(branch, cache)
		}
		return &Symbol{Kind: KindAlternative, Alternative: &Alternative{Labels: labels, Symbols: symbols}, ReaderSchema: t}
	case *RecursiveSchema:
		return compileSchemaCached(t.Actual, cache)
	case *RecordSchema:
		if sym, ok := cache[t]; ok {
			return sym
		}
		seq := &Symbol{Kind: KindSequence, Label: GetFullName(t), ReaderSchema: t}
		cache[t] = seq
		production := make([]*Symbol, 0, len(t.Fields)+2)
		production = append(production, symRecordStart)
		for _, f := range t.Fields {
			production = append(production, compileSchemaCached(f.Type, cache))
		}
		production = append(production, symRecordEnd)
		seq.Production = production
		return seq
	default:
		panic(fmt.Errorf("avro: cannot compile grammar for unknown schema %T", s))
	}
}
