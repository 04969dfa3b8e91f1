// ***********************
// NOTICE this file was changed beginning in November 2016 by the team maintaining
// https://github.com/go-avro/avro. This notice is required to be here due to the
// terms of the Apache license, see LICENSE for details.
// ***********************

package avro

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/exp/slices"
)

// Schema type constants, identifying the tagged variant a Schema node belongs to.
const (
	Record int = iota
	Enum
	Array
	Map
	Union
	Fixed
	String
	Bytes
	Int
	Long
	Float
	Double
	Boolean
	Null
	// Recursive is an artificial type standing in for a record reference that
	// has not yet been linked back to its definition during parsing.
	Recursive
)

const (
	typeRecord  = "record"
	typeError   = "error"
	typeEnum    = "enum"
	typeArray   = "array"
	typeMap     = "map"
	typeFixed   = "fixed"
	typeString  = "string"
	typeBytes   = "bytes"
	typeInt     = "int"
	typeLong    = "long"
	typeFloat   = "float"
	typeDouble  = "double"
	typeBoolean = "boolean"
	typeNull    = "null"
)

const (
	schemaAliasesField     = "aliases"
	schemaDefaultField     = "default"
	schemaDocField         = "doc"
	schemaFieldsField      = "fields"
	schemaItemsField       = "items"
	schemaNameField        = "name"
	schemaNamespaceField   = "namespace"
	schemaOrderField       = "order"
	schemaSizeField        = "size"
	schemaSymbolsField     = "symbols"
	schemaTypeField        = "type"
	schemaValuesField      = "values"
	schemaLogicalTypeField = "logicalType"
	schemaScaleField       = "scale"
	schemaPrecisionField   = "precision"
)

// FieldOrder controls how a record field participates in Avro's sort-order
// comparison. The codec itself does not compare records; this is metadata
// carried through for consumers that do.
type FieldOrder int

const (
	OrderAscending FieldOrder = iota
	OrderDescending
	OrderIgnore
)

func parseFieldOrder(raw string) FieldOrder {
	switch raw {
	case "descending":
		return OrderDescending
	case "ignore":
		return OrderIgnore
	default:
		return OrderAscending
	}
}

// Properties is an open, free-form JSON property bag. Values are the tagged
// variant produced by decoding JSON (map[string]any, []any, string, float64,
// bool, nil) rather than opaque strings, because logical-type parameters
// (precision, scale, format) are consumed structurally by C7.
type Properties map[string]interface{}

func (p Properties) clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// LogicalType is the schema-side binding of a logical type name plus its
// structural parameters (precision/scale/format/...). The Conversion that
// actually serializes/deserializes values is looked up by Name in a
// ConversionRegistry (see logical.go); LogicalType itself carries no code.
type LogicalType struct {
	Name       string
	Properties Properties
}

// Schema is the interface implemented by every node in the Avro schema AST.
type Schema interface {
	// Type returns the tagged variant constant (Record, Enum, ...).
	Type() int
	// GetName returns the node's simple (non-qualified) name, or the
	// primitive type name for unnamed types.
	GetName() string
	// Prop looks up a custom JSON property attached to this node.
	Prop(key string) (interface{}, bool)
	// Logical returns the logical-type binding for this node, if any.
	Logical() *LogicalType
	// Fingerprint returns the 64-bit Rabin fingerprint of this schema's
	// parsing canonical form.
	Fingerprint() uint64
	// Canonical returns the parsing canonical form bytes (see fingerprint.go).
	Canonical() ([]byte, error)
	fmt.Stringer
	json.Marshaler
}

// hashable provides the shared Fingerprint/String/MarshalJSON scaffolding
// that every concrete Schema type embeds.
type hashable struct {
	cachedFingerprint uint64
	fingerprinted     bool
}

func (h *hashable) getFingerprint(schema Schema) uint64 {
	if h.fingerprinted {
		return h.cachedFingerprint
	}
	canon, err := schema.Canonical()
	if err != nil {
		return 0
	}
	h.cachedFingerprint = rabinFingerprint(canon)
	h.fingerprinted = true
	return h.cachedFingerprint
}

// --- primitive schemas ---

type NullSchema struct{ hashable }

func (s *NullSchema) Type() int                      { return Null }
func (s *NullSchema) GetName() string                { return typeNull }
func (s *NullSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *NullSchema) Logical() *LogicalType           { return nil }
func (s *NullSchema) Fingerprint() uint64             { return s.getFingerprint(s) }
func (s *NullSchema) Canonical() ([]byte, error)      { return []byte(`"null"`), nil }
func (s *NullSchema) String() string                  { return `{"type": "null"}` }
func (s *NullSchema) MarshalJSON() ([]byte, error)    { return []byte(`"null"`), nil }

type BooleanSchema struct{ hashable }

func (s *BooleanSchema) Type() int                      { return Boolean }
func (s *BooleanSchema) GetName() string                { return typeBoolean }
func (s *BooleanSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *BooleanSchema) Logical() *LogicalType           { return nil }
func (s *BooleanSchema) Fingerprint() uint64             { return s.getFingerprint(s) }
func (s *BooleanSchema) Canonical() ([]byte, error)      { return []byte(`"boolean"`), nil }
func (s *BooleanSchema) String() string                  { return `{"type": "boolean"}` }
func (s *BooleanSchema) MarshalJSON() ([]byte, error)    { return []byte(`"boolean"`), nil }

type IntSchema struct{ hashable }

func (s *IntSchema) Type() int                      { return Int }
func (s *IntSchema) GetName() string                { return typeInt }
func (s *IntSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *IntSchema) Logical() *LogicalType           { return nil }
func (s *IntSchema) Fingerprint() uint64             { return s.getFingerprint(s) }
func (s *IntSchema) Canonical() ([]byte, error)      { return []byte(`"int"`), nil }
func (s *IntSchema) String() string                  { return `{"type": "int"}` }
func (s *IntSchema) MarshalJSON() ([]byte, error)    { return []byte(`"int"`), nil }

// LongSchema is Avro's long; it optionally carries a timestamp-millis or
// timestamp-micros logical type, the only primitive in this corpus with a
// logical type commonly attached directly to the bare type name.
type LongSchema struct {
	hashable
	logicalType string
}

func (s *LongSchema) Type() int                      { return Long }
func (s *LongSchema) GetName() string                { return typeLong }
func (s *LongSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *LongSchema) Logical() *LogicalType {
	if s.logicalType == "" {
		return nil
	}
	return &LogicalType{Name: s.logicalType}
}
func (s *LongSchema) Fingerprint() uint64 { return s.getFingerprint(s) }
func (s *LongSchema) Canonical() ([]byte, error) {
	return []byte(`"long"`), nil
}
func (s *LongSchema) String() string {
	if s.logicalType != "" {
		return fmt.Sprintf(`{"type": "long", "logicalType": %q}`, s.logicalType)
	}
	return `{"type": "long"}`
}
func (s *LongSchema) MarshalJSON() ([]byte, error) {
	if s.logicalType != "" {
		return json.Marshal(struct {
			Type        string `json:"type"`
			LogicalType string `json:"logicalType"`
		}{typeLong, s.logicalType})
	}
	return []byte(`"long"`), nil
}

type FloatSchema struct{ hashable }

func (s *FloatSchema) Type() int                      { return Float }
func (s *FloatSchema) GetName() string                { return typeFloat }
func (s *FloatSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *FloatSchema) Logical() *LogicalType           { return nil }
func (s *FloatSchema) Fingerprint() uint64             { return s.getFingerprint(s) }
func (s *FloatSchema) Canonical() ([]byte, error)      { return []byte(`"float"`), nil }
func (s *FloatSchema) String() string                  { return `{"type": "float"}` }
func (s *FloatSchema) MarshalJSON() ([]byte, error)    { return []byte(`"float"`), nil }

type DoubleSchema struct{ hashable }

func (s *DoubleSchema) Type() int                      { return Double }
func (s *DoubleSchema) GetName() string                { return typeDouble }
func (s *DoubleSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *DoubleSchema) Logical() *LogicalType           { return nil }
func (s *DoubleSchema) Fingerprint() uint64             { return s.getFingerprint(s) }
func (s *DoubleSchema) Canonical() ([]byte, error)      { return []byte(`"double"`), nil }
func (s *DoubleSchema) String() string                  { return `{"type": "double"}` }
func (s *DoubleSchema) MarshalJSON() ([]byte, error)    { return []byte(`"double"`), nil }

type StringSchema struct{ hashable }

func (s *StringSchema) Type() int                      { return String }
func (s *StringSchema) GetName() string                { return typeString }
func (s *StringSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *StringSchema) Logical() *LogicalType           { return nil }
func (s *StringSchema) Fingerprint() uint64             { return s.getFingerprint(s) }
func (s *StringSchema) Canonical() ([]byte, error)      { return []byte(`"string"`), nil }
func (s *StringSchema) String() string                  { return `{"type": "string"}` }
func (s *StringSchema) MarshalJSON() ([]byte, error)    { return []byte(`"string"`), nil }

// BytesSchema optionally carries the decimal or big-integer logical type.
type BytesSchema struct {
	hashable
	LogicalTypeName string
	Scale           int
	Precision       int
}

func (s *BytesSchema) Type() int                      { return Bytes }
func (s *BytesSchema) GetName() string                { return typeBytes }
func (s *BytesSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *BytesSchema) Logical() *LogicalType {
	if s.LogicalTypeName == "" {
		return nil
	}
	return &LogicalType{Name: s.LogicalTypeName, Properties: Properties{"precision": s.Precision, "scale": s.Scale}}
}
func (s *BytesSchema) Fingerprint() uint64 { return s.getFingerprint(s) }
func (s *BytesSchema) Canonical() ([]byte, error) {
	return []byte(`"bytes"`), nil
}
func (s *BytesSchema) String() string {
	if s.LogicalTypeName != "" {
		return fmt.Sprintf(`{"type": "bytes", "logicalType": %q, "precision": %d, "scale": %d}`, s.LogicalTypeName, s.Precision, s.Scale)
	}
	return `{"type": "bytes"}`
}
func (s *BytesSchema) MarshalJSON() ([]byte, error) {
	if s.LogicalTypeName == "" {
		return []byte(`"bytes"`), nil
	}
	return json.Marshal(struct {
		Type        string `json:"type"`
		LogicalType string `json:"logicalType"`
		Precision   int    `json:"precision,omitempty"`
		Scale       int    `json:"scale,omitempty"`
	}{typeBytes, s.LogicalTypeName, s.Precision, s.Scale})
}

// --- named/complex schemas ---

type RecordSchema struct {
	hashable
	Name       string
	Namespace  string
	Doc        string
	Aliases    []string
	Fields     []*SchemaField
	IsError    bool
	Properties Properties
}

func (s *RecordSchema) Type() int { return Record }
func (s *RecordSchema) GetName() string { return s.Name }
func (s *RecordSchema) Prop(key string) (interface{}, bool) {
	v, ok := s.Properties[key]
	return v, ok
}
func (s *RecordSchema) Logical() *LogicalType { return nil }
func (s *RecordSchema) Fingerprint() uint64   { return s.getFingerprint(s) }
func (s *RecordSchema) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	nameJSON, _ := json.Marshal(GetFullName(s))
	buf.Write(nameJSON)
	buf.WriteString(`,"type":"record","fields":[`)
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteRune(',')
		}
		buf.WriteString(`{"name":`)
		fn, _ := json.Marshal(f.Name)
		buf.Write(fn)
		buf.WriteString(`,"type":`)
		ft, err := f.Type.Canonical()
		if err != nil {
			return nil, err
		}
		buf.Write(ft)
		buf.WriteRune('}')
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}
func (s *RecordSchema) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}
func (s *RecordSchema) MarshalJSON() ([]byte, error) {
	recordType := typeRecord
	if s.IsError {
		recordType = typeError
	}
	return json.Marshal(struct {
		Type      string         `json:"type"`
		Name      string         `json:"name"`
		Namespace string         `json:"namespace,omitempty"`
		Doc       string         `json:"doc,omitempty"`
		Aliases   []string       `json:"aliases,omitempty"`
		Fields    []*SchemaField `json:"fields"`
	}{recordType, s.Name, s.Namespace, s.Doc, s.Aliases, s.Fields})
}

// RecursiveSchema is a placeholder for a named-type reference that has not
// yet been linked back to its definition while the enclosing scope is still
// being parsed (self- or mutually-recursive records).
type RecursiveSchema struct {
	hashable
	Actual *RecordSchema
}

func newRecursiveSchema(actual *RecordSchema) *RecursiveSchema { return &RecursiveSchema{Actual: actual} }

func (s *RecursiveSchema) Type() int                      { return Recursive }
func (s *RecursiveSchema) GetName() string                { return s.Actual.Name }
func (s *RecursiveSchema) Prop(string) (interface{}, bool) { return nil, false }
func (s *RecursiveSchema) Logical() *LogicalType           { return nil }
func (s *RecursiveSchema) Fingerprint() uint64             { return s.Actual.Fingerprint() }
func (s *RecursiveSchema) Canonical() ([]byte, error)      { return s.Actual.Canonical() }
func (s *RecursiveSchema) String() string                  { return s.Actual.String() }
func (s *RecursiveSchema) MarshalJSON() ([]byte, error)    { return json.Marshal(GetFullName(s.Actual)) }

// SchemaField is a single record field declaration. Position is the
// zero-indexed declaration slot, equal to the field's index in the
// record's Fields slice; the resolving grammar works from that slice index.
type SchemaField struct {
	Name       string
	Doc        string
	Type       Schema
	Default    interface{}
	HasDefault bool
	Order      FieldOrder
	Aliases    []string
	Position   int
	Properties Properties
}

func (f *SchemaField) Prop(key string) (interface{}, bool) {
	v, ok := f.Properties[key]
	return v, ok
}

func (f *SchemaField) MarshalJSON() ([]byte, error) {
	type alias struct {
		Name    string      `json:"name"`
		Type    Schema      `json:"type"`
		Doc     string      `json:"doc,omitempty"`
		Default interface{} `json:"default,omitempty"`
		Aliases []string    `json:"aliases,omitempty"`
	}
	return json.Marshal(alias{f.Name, f.Type, f.Doc, f.Default, f.Aliases})
}

type EnumSchema struct {
	hashable
	Name       string
	Namespace  string
	Doc        string
	Aliases    []string
	Symbols    []string
	Default    string
	HasDefault bool
	Properties Properties
}

func (s *EnumSchema) Type() int         { return Enum }
func (s *EnumSchema) GetName() string   { return s.Name }
func (s *EnumSchema) Prop(key string) (interface{}, bool) {
	v, ok := s.Properties[key]
	return v, ok
}
func (s *EnumSchema) Logical() *LogicalType { return nil }
func (s *EnumSchema) Fingerprint() uint64   { return s.getFingerprint(s) }
func (s *EnumSchema) Canonical() ([]byte, error) {
	symbolsJSON, _ := json.Marshal(s.Symbols)
	nameJSON, _ := json.Marshal(GetFullName(s))
	return []byte(fmt.Sprintf(`{"name":%s,"type":"enum","symbols":%s}`, nameJSON, symbolsJSON)), nil
}
func (s *EnumSchema) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}
func (s *EnumSchema) IndexOf(symbol string) (int, bool) {
	i := slices.Index(s.Symbols, symbol)
	return i, i >= 0
}
func (s *EnumSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string   `json:"type"`
		Name      string   `json:"name"`
		Namespace string   `json:"namespace,omitempty"`
		Doc       string   `json:"doc,omitempty"`
		Aliases   []string `json:"aliases,omitempty"`
		Symbols   []string `json:"symbols"`
		Default   string   `json:"default,omitempty"`
	}{typeEnum, s.Name, s.Namespace, s.Doc, s.Aliases, s.Symbols, s.Default})
}

type ArraySchema struct {
	hashable
	Items      Schema
	Properties Properties
}

func (s *ArraySchema) Type() int       { return Array }
func (s *ArraySchema) GetName() string { return typeArray }
func (s *ArraySchema) Prop(key string) (interface{}, bool) {
	v, ok := s.Properties[key]
	return v, ok
}
func (s *ArraySchema) Logical() *LogicalType { return nil }
func (s *ArraySchema) Fingerprint() uint64   { return s.getFingerprint(s) }
func (s *ArraySchema) Canonical() ([]byte, error) {
	items, err := s.Items.Canonical()
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`{"type":"array","items":%s}`, items)), nil
}
func (s *ArraySchema) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}
func (s *ArraySchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Items Schema `json:"items"`
	}{typeArray, s.Items})
}

type MapSchema struct {
	hashable
	Values     Schema
	Properties Properties
}

func (s *MapSchema) Type() int       { return Map }
func (s *MapSchema) GetName() string { return typeMap }
func (s *MapSchema) Prop(key string) (interface{}, bool) {
	v, ok := s.Properties[key]
	return v, ok
}
func (s *MapSchema) Logical() *LogicalType { return nil }
func (s *MapSchema) Fingerprint() uint64   { return s.getFingerprint(s) }
func (s *MapSchema) Canonical() ([]byte, error) {
	values, err := s.Values.Canonical()
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`{"type":"map","values":%s}`, values)), nil
}
func (s *MapSchema) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}
func (s *MapSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Values Schema `json:"values"`
	}{typeMap, s.Values})
}

type UnionSchema struct {
	hashable
	Types []Schema
}

func (s *UnionSchema) Type() int                       { return Union }
func (s *UnionSchema) GetName() string                 { return "union" } // unions have no name of their own
func (s *UnionSchema) Prop(string) (interface{}, bool)  { return nil, false }
func (s *UnionSchema) Logical() *LogicalType            { return nil }
func (s *UnionSchema) Fingerprint() uint64              { return s.getFingerprint(s) }
func (s *UnionSchema) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteRune('[')
	for i, t := range s.Types {
		if i > 0 {
			buf.WriteRune(',')
		}
		c, err := t.Canonical()
		if err != nil {
			return nil, err
		}
		buf.Write(c)
	}
	buf.WriteRune(']')
	return buf.Bytes(), nil
}
func (s *UnionSchema) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

// NullableUnion reports whether this is a {null, T} union with exactly one
// non-null branch, the shape the extended JSON codec unwraps (spec.md S5).
func (s *UnionSchema) NullableUnion() (Schema, bool) {
	if len(s.Types) != 2 {
		return nil, false
	}
	if s.Types[0].Type() == Null {
		return s.Types[1], true
	}
	if s.Types[1].Type() == Null {
		return s.Types[0], true
	}
	return nil, false
}

// BranchLabel is the JSON tag used for a non-unwrapped union branch: the
// primitive type name, or the named type's full name.
func BranchLabel(s Schema) string {
	switch s.Type() {
	case Record, Enum, Fixed:
		return GetFullName(s)
	default:
		return s.GetName()
	}
}

func (s *UnionSchema) GetType(v interface{}) (int, bool) {
	for i, t := range s.Types {
		if valueMatchesSchema(v, t) {
			return i, true
		}
	}
	return 0, false
}

func (s *UnionSchema) MarshalJSON() ([]byte, error) { return json.Marshal(s.Types) }

type FixedSchema struct {
	hashable
	Name            string
	Namespace       string
	Aliases         []string
	Size            int
	LogicalTypeName string
	Scale           int
	Precision       int
	Properties      Properties
}

func (s *FixedSchema) Type() int       { return Fixed }
func (s *FixedSchema) GetName() string { return s.Name }
func (s *FixedSchema) Prop(key string) (interface{}, bool) {
	v, ok := s.Properties[key]
	return v, ok
}
func (s *FixedSchema) Logical() *LogicalType {
	if s.LogicalTypeName == "" {
		return nil
	}
	return &LogicalType{Name: s.LogicalTypeName, Properties: Properties{"precision": s.Precision, "scale": s.Scale}}
}
func (s *FixedSchema) Fingerprint() uint64 { return s.getFingerprint(s) }
func (s *FixedSchema) Canonical() ([]byte, error) {
	nameJSON, _ := json.Marshal(GetFullName(s))
	return []byte(fmt.Sprintf(`{"name":%s,"type":"fixed","size":%d}`, nameJSON, s.Size)), nil
}
func (s *FixedSchema) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}
func (s *FixedSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string `json:"type"`
		Size        int    `json:"size"`
		Name        string `json:"name"`
		LogicalType string `json:"logicalType,omitempty"`
		Scale       int    `json:"scale,omitempty"`
		Precision   int    `json:"precision,omitempty"`
	}{typeFixed, s.Size, s.Name, s.LogicalTypeName, s.Scale, s.Precision})
}

// GetFullName returns a fully-qualified name for a schema: namespace.name.
func GetFullName(schema Schema) string {
	switch sch := schema.(type) {
	case *RecordSchema:
		return getFullName(sch.Name, sch.Namespace)
	case *EnumSchema:
		return getFullName(sch.Name, sch.Namespace)
	case *FixedSchema:
		return getFullName(sch.Name, sch.Namespace)
	case *RecursiveSchema:
		return GetFullName(sch.Actual)
	default:
		return schema.GetName()
	}
}

func getFullName(name, namespace string) string {
	if len(namespace) > 0 && !strings.ContainsRune(name, '.') {
		return namespace + "." + name
	}
	return name
}
