package avro

// DatumProjector decodes data written against a writer schema into a value
// shaped like a different reader schema, for callers that have both schemas
// up front (a schema registry lookup, a migration tool) and would rather not
// pick between the generic and specific reader themselves. It is a thin
// convenience over GenericDatumReader/SpecificDatumReader: both already
// reconcile field order, renames (via alias), default-filling and type
// promotion through the resolving grammar (resolving_grammar.go), so
// DatumProjector only has to decide, from target's own type, which of the
// two to delegate to.
type DatumProjector struct {
	ctx          *Context
	readerSchema Schema
	writerSchema Schema
}

// NewDatumProjector builds a projector from writerSchema (what the bytes
// were encoded with) to readerSchema (what Read's target is shaped like).
func NewDatumProjector(readerSchema, writerSchema Schema, ctx ...*Context) *DatumProjector {
	return &DatumProjector{
		ctx:          resolveCtx(ctx),
		readerSchema: readerSchema,
		writerSchema: writerSchema,
	}
}

// Read decodes one value into target: a *GenericRecord goes through
// GenericDatumReader, anything else (a pointer to a Go struct) goes through
// SpecificDatumReader.
func (p *DatumProjector) Read(target interface{}, dec Decoder) error {
	if _, ok := target.(*GenericRecord); ok {
		return NewGenericDatumReader(p.ctx).SetSchemas(p.writerSchema, p.readerSchema).Read(target, dec)
	}
	return NewSpecificDatumReader(p.ctx).SetSchemas(p.writerSchema, p.readerSchema).Read(target, dec)
}
