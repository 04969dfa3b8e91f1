package avro

import (
	"sync"
)

// FieldResolution is the payload carried by the marker symbol a field's
// implicit action yields (spec.md section 4.5). Exactly one of the three
// modes applies:
//   - SkipSchema != nil: a writer-only field with no reader counterpart;
//     the datum reader must discard one value of this schema from the wire.
//   - DefaultOnly: a reader-only field with no writer counterpart; no wire
//     bytes correspond to it, the reader materializes DefaultValue.
//   - otherwise: a matched field; ValueSymbol is the compiled resolution
//     the datum reader must push and then read to produce the value bound
//     for ReaderIndex.
type FieldResolution struct {
	ReaderIndex  int
	ReaderField  *SchemaField
	SkipSchema   Schema
	DefaultOnly  bool
	DefaultValue interface{}
	ValueSymbol  *Symbol
}

// fieldAdjustAction yields its FieldResolution as a marker without touching
// the parser stack itself; the datum reader decides what to do next (skip
// via the decoder, inject a default, or push ValueSymbol and keep reading).
// Keeping this split is what lets Parser stay ignorant of Decoder.
type fieldAdjustAction struct {
	meta *FieldResolution
}

func (a *fieldAdjustAction) Execute(p *Parser) (*Symbol, error) {
	return &Symbol{Kind: KindImplicitAction, Label: "field:" + a.meta.ReaderField.Name, FieldMeta: a.meta}, nil
}
func (a *fieldAdjustAction) String() string { return "field-adjust(" + a.meta.ReaderField.Name + ")" }

// fieldOrderAction is reserved for the trailing drain Parser.
// ProcessTrailingImplicitActions performs: a record resolution that needs to
// report bookkeeping after its last field (currently none does, since
// defaults are compiled as ordinary production slots) still gets this type
// so future additions to the record epilogue have a home without changing
// Parser's contract again.
type fieldOrderAction struct{}

func (a *fieldOrderAction) Execute(p *Parser) (*Symbol, error) { return nil, nil }
func (a *fieldOrderAction) String() string                     { return "field-order" }

// skipFieldSymbol and defaultFieldSymbol are thin constructors for the two
// non-matched field slot kinds.
func skipFieldSymbol(writerField *SchemaField) *Symbol {
	meta := &FieldResolution{ReaderIndex: -1, SkipSchema: writerField.Type, ReaderField: &SchemaField{Name: writerField.Name}}
	return &Symbol{Kind: KindImplicitAction, Action: &fieldAdjustAction{meta: meta}, Label: "skip:" + writerField.Name, FieldMeta: meta}
}

func defaultFieldSymbol(readerIndex int, readerField *SchemaField) *Symbol {
	meta := &FieldResolution{ReaderIndex: readerIndex, ReaderField: readerField, DefaultOnly: true, DefaultValue: readerField.Default}
	return &Symbol{Kind: KindImplicitAction, Action: &fieldAdjustAction{meta: meta}, Label: "default:" + readerField.Name, FieldMeta: meta}
}

// recordPairKey identifies a (writer, reader) record pair by identity for
// the resolving-grammar compile cache, letting cyclic/mutually-recursive
// records resolve to a finite graph the same way compileSchema does.
type recordPairKey struct {
	writer *RecordSchema
	reader *RecordSchema
}

// resolveScope threads the per-pair compile cache through one
// CompileResolution call.
type resolveScope struct {
	cache map[recordPairKey]*Symbol
}

// CompileResolution builds the resolving grammar for reading data written
// with writer and handed to code expecting reader (spec.md section 4.5).
// It also serves the case where writer and reader are the same schema: the
// datum readers in datum.go always read through a resolving grammar, since
// the plain grammar from compileSchema carries no field markers for them.
func CompileResolution(writer, reader Schema) (*Grammar, error) {
	scope := &resolveScope{cache: make(map[recordPairKey]*Symbol)}
	root, err := scope.resolve(writer, reader)
	if err != nil {
		return nil, err
	}
	return &Grammar{Root: root, Schema: reader}, nil
}

// ResolutionCache memoizes compiled resolving grammars by the
// (writer,reader) fingerprint pair, per spec.md's "compiled once per
// (writer,reader) fingerprint pair and cacheable". It is owned by a single
// Context (see datum.go), never package-global.
type ResolutionCache struct {
	mu    sync.Mutex
	byKey map[[2]uint64]*Grammar
}

func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{byKey: make(map[[2]uint64]*Grammar)}
}

func (c *ResolutionCache) Get(writer, reader Schema) (*Grammar, error) {
	key := [2]uint64{writer.Fingerprint(), reader.Fingerprint()}
	c.mu.Lock()
	g, ok := c.byKey[key]
	c.mu.Unlock()
	if ok {
		return g, nil
	}
	g, err := CompileResolution(writer, reader)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byKey[key] = g
	c.mu.Unlock()
	return g, nil
}

func (s *resolveScope) resolve(writer, reader Schema) (*Symbol, error) {
	writer = unwrapRecursive(writer)
	reader = unwrapRecursive(reader)

	if wr, ok := writer.(*RecordSchema); ok {
		if rr, ok := reader.(*RecordSchema); ok {
			return s.resolveRecord(wr, rr)
		}
	}
	if wu, ok := writer.(*UnionSchema); ok {
		return s.resolveWriterUnion(wu, reader)
	}
	if ru, ok := reader.(*UnionSchema); ok {
		return s.resolveReaderUnion(writer, ru)
	}
	if wr, ok := writer.(*RecordSchema); ok {
		return nil, &TypeMismatchError{Expected: reader.GetName(), Actual: GetFullName(wr)}
	}
	if we, ok := writer.(*EnumSchema); ok {
		if re, ok := reader.(*EnumSchema); ok {
			return resolveEnum(we, re)
		}
		return nil, &UnresolvedSchemaError{Name: we.Name}
	}
	if wf, ok := writer.(*FixedSchema); ok {
		if rf, ok := reader.(*FixedSchema); ok {
			if wf.Size != rf.Size || GetFullName(wf) != GetFullName(rf) {
				return nil, &TypeMismatchError{Expected: GetFullName(rf), Actual: GetFullName(wf)}
			}
			return &Symbol{Kind: KindTerminal, Terminal: TFixed, Label: GetFullName(rf), FixedSchema: rf, ReaderSchema: rf}, nil
		}
		return nil, &TypeMismatchError{Expected: reader.GetName(), Actual: GetFullName(wf)}
	}
	if wa, ok := writer.(*ArraySchema); ok {
		ra, ok := reader.(*ArraySchema)
		if !ok {
			return nil, &TypeMismatchError{Expected: reader.GetName(), Actual: typeArray}
		}
		item, err := s.resolve(wa.Items, ra.Items)
		if err != nil {
			return nil, err
		}
		return &Symbol{Kind: KindRepeater, Repeater: &Repeater{Start: symArrayStart, End: symArrayEnd, Item: item}, ReaderSchema: ra}, nil
	}
	if wm, ok := writer.(*MapSchema); ok {
		rm, ok := reader.(*MapSchema)
		if !ok {
			return nil, &TypeMismatchError{Expected: reader.GetName(), Actual: typeMap}
		}
		values, err := s.resolve(wm.Values, rm.Values)
		if err != nil {
			return nil, err
		}
		return &Symbol{Kind: KindRepeater, Repeater: &Repeater{Start: symMapStart, End: symMapEnd, Item: values}, ReaderSchema: rm}, nil
	}

	return resolvePrimitive(writer, reader)
}

func unwrapRecursive(s Schema) Schema {
	if r, ok := s.(*RecursiveSchema); ok {
		return r.Actual
	}
	return s
}

// promotable lists the legal primitive widenings (spec.md section 4.5):
// int->long,float,double; long->float,double; float->double;
// string<->bytes. Identity (same Type()) is always legal and carries no
// Promotion marker.
var promotable = map[int]map[int]bool{
	Int:    {Long: true, Float: true, Double: true},
	Long:   {Float: true, Double: true},
	Float:  {Double: true},
	String: {Bytes: true},
	Bytes:  {String: true},
}

func resolvePrimitive(writer, reader Schema) (*Symbol, error) {
	wt, rt := writer.Type(), reader.Type()
	term := compileSchemaCached(writer, nil)
	clone := *term
	clone.ReaderSchema = reader
	if wt == rt {
		return &clone, nil
	}
	if promotable[wt] != nil && promotable[wt][rt] {
		clone.Promote = &Promotion{ReaderType: rt}
		return &clone, nil
	}
	return nil, &TypeMismatchError{Expected: reader.GetName(), Actual: writer.GetName()}
}

// resolveEnum builds the writer-ordinal -> reader-ordinal table. Each
// writer symbol is matched to the reader symbol of the exact same name; a
// writer symbol absent from the reader resolves to the reader's declared
// default symbol if one exists, and is an error otherwise. Symbols have no
// aliases, and the enums' own names and aliases are not compared.
func resolveEnum(writer, reader *EnumSchema) (*Symbol, error) {
	adjust := make([]int, len(writer.Symbols))
	for i, sym := range writer.Symbols {
		if idx, ok := reader.IndexOf(sym); ok {
			adjust[i] = idx
			continue
		}
		if reader.HasDefault {
			idx, ok := reader.IndexOf(reader.Default)
			if !ok {
				return nil, &UnresolvedSchemaError{Name: reader.Default}
			}
			adjust[i] = idx
			continue
		}
		return nil, &UnresolvedSchemaError{Name: sym}
	}
	return &Symbol{Kind: KindTerminal, Terminal: TEnum, Label: GetFullName(reader), EnumSchema: reader, EnumAdjust: adjust, ReaderSchema: reader}, nil
}

func (s *resolveScope) resolveWriterUnion(writer *UnionSchema, reader Schema) (*Symbol, error) {
	labels := make([]string, len(writer.Types))
	symbols := make([]*Symbol, len(writer.Types))
	for i, branch := range writer.Types {
		sym, err := s.resolve(branch, reader)
		if err != nil {
			return nil, err
		}
		labels[i] = BranchLabel(branch)
		symbols[i] = sym
	}
	return &Symbol{Kind: KindAlternative, Alternative: &Alternative{Labels: labels, Symbols: symbols}, ReaderSchema: reader}, nil
}

// resolveReaderUnion picks, for a non-union writer, the first reader branch
// the writer schema resolves against, per the standard Avro compatibility
// rule (schema whose type matches, or the first promotable numeric/string
// branch).
func (s *resolveScope) resolveReaderUnion(writer Schema, reader *UnionSchema) (*Symbol, error) {
	var lastErr error
	for _, branch := range reader.Types {
		sym, err := s.resolve(writer, branch)
		if err == nil {
			return sym, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &TypeMismatchError{Expected: "union", Actual: writer.GetName()}
	}
	return nil, lastErr
}

func (s *resolveScope) resolveRecord(writer, reader *RecordSchema) (*Symbol, error) {
	key := recordPairKey{writer, reader}
	if sym, ok := s.cache[key]; ok {
		return sym, nil
	}
	seq := &Symbol{Kind: KindSequence, Label: "resolve:" + GetFullName(writer) + "->" + GetFullName(reader), ReaderSchema: reader}
	s.cache[key] = seq

	matchedReaderIdx := make(map[int]bool, len(reader.Fields))
	production := make([]*Symbol, 0, len(writer.Fields)+len(reader.Fields)+2)
	production = append(production, symRecordStart)

	for _, wf := range writer.Fields {
		ri, rf, ok := findReaderField(reader, wf)
		if !ok {
			production = append(production, skipFieldSymbol(wf))
			continue
		}
		matchedReaderIdx[ri] = true
		valueSym, err := s.resolve(wf.Type, rf.Type)
		if err != nil {
			return nil, err
		}
		meta := &FieldResolution{ReaderIndex: ri, ReaderField: rf, ValueSymbol: valueSym}
		production = append(production, &Symbol{Kind: KindImplicitAction, Action: &fieldAdjustAction{meta: meta}, Label: "field:" + rf.Name, FieldMeta: meta})
	}

	for i, rf := range reader.Fields {
		if matchedReaderIdx[i] {
			continue
		}
		if !rf.HasDefault {
			return nil, &MissingFieldError{Field: rf.Name}
		}
		production = append(production, defaultFieldSymbol(i, rf))
	}

	production = append(production, &Symbol{Kind: KindImplicitAction, Action: &fieldOrderAction{}})
	production = append(production, symRecordEnd)
	seq.Production = production
	return seq, nil
}

// findReaderField matches a writer field to a reader field by name, then by
// any of the reader field's declared aliases (spec.md section 4.5).
func findReaderField(reader *RecordSchema, writerField *SchemaField) (int, *SchemaField, bool) {
	for i, rf := range reader.Fields {
		if rf.Name == writerField.Name {
			return i, rf, true
		}
	}
	for i, rf := range reader.Fields {
		for _, alias := range rf.Aliases {
			if alias == writerField.Name {
				return i, rf, true
			}
		}
	}
	return 0, nil, false
}
