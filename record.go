package avro

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// GenericRecord is the schema-driven, map-backed value type C8's generic
// datum reader/writer produces and consumes (spec.md section 5: "no
// generated code required"). Field values use the nil-or-pointer-to-value
// convention for {null, T} unions: Set(name, nil) for the null branch,
// Set(name, &v) for the non-null branch, matching the convention Go structs
// use for the same shape in the specific path.
type GenericRecord struct {
	schema *RecordSchema
	values map[string]interface{}
}

// NewGenericRecord allocates an empty record for schema, which must be a
// *RecordSchema (or a *RecursiveSchema wrapping one).
func NewGenericRecord(schema Schema) *GenericRecord {
	rs := recordSchemaOf(schema)
	if rs == nil {
		panic(fmt.Sprintf("avro: NewGenericRecord requires a record schema, got %T", schema))
	}
	return &GenericRecord{schema: rs, values: make(map[string]interface{}, len(rs.Fields))}
}

func recordSchemaOf(schema Schema) *RecordSchema {
	switch s := schema.(type) {
	case *RecordSchema:
		return s
	case *RecursiveSchema:
		return s.Actual
	default:
		return nil
	}
}

func (r *GenericRecord) Schema() Schema { return r.schema }

// Set binds name to value. value follows the union convention described on
// GenericRecord: nil for a null branch, a pointer for a non-null optional
// branch, a bare value for a non-union field.
func (r *GenericRecord) Set(name string, value interface{}) { r.values[name] = value }

// Get returns the bound value for name, or nil if it was never set (which,
// for a {null, T} field, is indistinguishable from an explicit null — callers
// that care should check Has).
func (r *GenericRecord) Get(name string) interface{} { return r.values[name] }

// Has reports whether name has been explicitly bound (including to nil),
// which the generic datum writer needs to tell "unset, fall back to
// default" apart from "explicitly set to null".
func (r *GenericRecord) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

func (r *GenericRecord) String() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("avro.GenericRecord{%v}", r.values)
	}
	return string(b)
}

// MarshalJSON renders the record's bound fields as a JSON object of plain
// Go values, with keys sorted by name rather than in schema order; it is a
// convenience for String()/debugging, not the Avro JSON encoding that
// json_codec.go's Encoder/Decoder implement.
func (r *GenericRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.schema.Fields))
	for _, f := range r.schema.Fields {
		if v, ok := r.values[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return json.Marshal(out)
}

// GenericEnum is the generic value type for an enum symbol: an index into
// the schema's Symbols slice, kept alongside the schema so Symbol() can
// render the textual form without a second lookup table.
type GenericEnum struct {
	schema *EnumSchema
	index  int
}

func NewGenericEnum(schema Schema) *GenericEnum {
	es, ok := schema.(*EnumSchema)
	if !ok {
		panic(fmt.Sprintf("avro: NewGenericEnum requires an enum schema, got %T", schema))
	}
	return &GenericEnum{schema: es}
}

func (e *GenericEnum) Schema() Schema { return e.schema }
func (e *GenericEnum) GetIndex() int  { return e.index }
func (e *GenericEnum) SetIndex(i int) {
	if i < 0 || i >= len(e.schema.Symbols) {
		panic(fmt.Sprintf("avro: enum index %d out of range for %s", i, GetFullName(e.schema)))
	}
	e.index = i
}

func (e *GenericEnum) Symbol() string { return e.schema.Symbols[e.index] }

// SetSymbol looks symbol up in the schema and binds to its index, returning
// an *UnresolvedSchemaError if symbol is not one of the schema's symbols.
func (e *GenericEnum) SetSymbol(symbol string) error {
	idx, ok := e.schema.IndexOf(symbol)
	if !ok {
		return &UnresolvedSchemaError{Name: symbol}
	}
	e.index = idx
	return nil
}

func (e *GenericEnum) String() string { return e.Symbol() }

// GenericFixed is the generic value type for a fixed-size byte value carried
// alongside its schema, used wherever a bare []byte would be ambiguous
// between bytes and fixed (e.g. inside the `any` logical type's embedded
// content, or a map/array of fixed values with no per-slot schema hint).
type GenericFixed struct {
	schema *FixedSchema
	value  []byte
}

func NewGenericFixed(schema Schema, value []byte) *GenericFixed {
	fs, ok := schema.(*FixedSchema)
	if !ok {
		panic(fmt.Sprintf("avro: NewGenericFixed requires a fixed schema, got %T", schema))
	}
	if len(value) != fs.Size {
		panic(fmt.Sprintf("avro: fixed value has %d bytes, schema %s wants %d", len(value), GetFullName(fs), fs.Size))
	}
	return &GenericFixed{schema: fs, value: value}
}

func (f *GenericFixed) Schema() Schema { return f.schema }
func (f *GenericFixed) Value() []byte  { return f.value }
func (f *GenericFixed) String() string { return fmt.Sprintf("%s(%x)", GetFullName(f.schema), f.value) }

// MarshalJSON renders the fixed value the way a []byte of the same bytes
// marshals, so a record holding it prints like one holding plain bytes.
func (f *GenericFixed) MarshalJSON() ([]byte, error) { return json.Marshal(f.value) }

// exportedFieldName maps an Avro field name to the Go struct field name the
// specific datum reader/writer looks for, following the teacher's
// reflect-based projection convention (datum_projector.go): capitalize the
// first rune, leave the rest (including underscores) untouched.
func exportedFieldName(name string) string {
	return strings.Title(name)
}
