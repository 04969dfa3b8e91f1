package avro

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/exp/slices"
)

// parseScope tracks named-type registration for a single ParseSchema call so
// that invariant (ii) in spec.md section 3 ("named types within one parse
// scope are unique") can be enforced, and so a forward reference to a type
// later in the document can be linked once its definition is seen.
type parseScope struct {
	registry map[string]Schema
}

func newParseScope(seed map[string]Schema) *parseScope {
	if seed == nil {
		seed = make(map[string]Schema)
	}
	return &parseScope{registry: seed}
}

// ParseSchemaFile parses a schema document from disk.
func ParseSchemaFile(path string) (Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSchema(string(raw))
}

// ParseSchema parses a standalone Avro JSON schema document.
func ParseSchema(rawSchema string) (Schema, error) {
	return ParseSchemaWithRegistry(rawSchema, make(map[string]Schema))
}

// ParseSchemaWithRegistry parses rawSchema, resolving and populating named
// types against the supplied registry so that later ParseSchemaWithRegistry
// calls can reference types defined here.
func ParseSchemaWithRegistry(rawSchema string, registry map[string]Schema) (Schema, error) {
	var decoded interface{}
	if err := json.Unmarshal([]byte(rawSchema), &decoded); err != nil {
		decoded = rawSchema
	}
	scope := newParseScope(registry)
	return scope.parse(decoded, "")
}

// MustParseSchema is ParseSchema but panics on error, a convenience for
// tests and package-level schema literals (mirrors the teacher's own
// MustParseSchema, kept for the same reason: schema text is nearly always
// a compile-time constant in calling code).
func MustParseSchema(rawSchema string) Schema {
	s, err := ParseSchema(rawSchema)
	if err != nil {
		panic(err)
	}
	return s
}

func (scope *parseScope) parse(i interface{}, namespace string) (Schema, error) {
	switch v := i.(type) {
	case nil:
		return new(NullSchema), nil
	case string:
		return scope.parsePrimitiveOrRef(v, namespace)
	case map[string]interface{}:
		return scope.parseComplex(v, namespace)
	case []interface{}:
		return scope.parseUnion(v, namespace)
	}
	return nil, fmt.Errorf("avro: invalid schema fragment %#v", i)
}

func (scope *parseScope) parsePrimitiveOrRef(name, namespace string) (Schema, error) {
	switch name {
	case typeNull:
		return new(NullSchema), nil
	case typeBoolean:
		return new(BooleanSchema), nil
	case typeInt:
		return new(IntSchema), nil
	case typeLong:
		return new(LongSchema), nil
	case typeFloat:
		return new(FloatSchema), nil
	case typeDouble:
		return new(DoubleSchema), nil
	case typeBytes:
		return new(BytesSchema), nil
	case typeString:
		return new(StringSchema), nil
	default:
		fullName := name
		if !strings.ContainsRune(fullName, '.') {
			fullName = getFullName(name, namespace)
		}
		if s, ok := scope.registry[fullName]; ok {
			return s, nil
		}
		if s, ok := scope.registry[name]; ok {
			return s, nil
		}
		return nil, &UnresolvedSchemaError{Name: name}
	}
}

func (scope *parseScope) parseComplex(v map[string]interface{}, namespace string) (Schema, error) {
	typeField, _ := v[schemaTypeField].(string)
	switch typeField {
	case typeNull:
		return new(NullSchema), nil
	case typeBoolean:
		return new(BooleanSchema), nil
	case typeInt:
		return new(IntSchema), nil
	case typeLong:
		logicalType, _ := v[schemaLogicalTypeField].(string)
		return &LongSchema{logicalType: logicalType}, nil
	case typeFloat:
		return new(FloatSchema), nil
	case typeDouble:
		return new(DoubleSchema), nil
	case typeBytes:
		return scope.parseBytes(v)
	case typeString:
		return new(StringSchema), nil
	case "array":
		items, err := scope.parse(v[schemaItemsField], namespace)
		if err != nil {
			return nil, err
		}
		return &ArraySchema{Items: items, Properties: getProperties(v)}, nil
	case "map":
		values, err := scope.parse(v[schemaValuesField], namespace)
		if err != nil {
			return nil, err
		}
		return &MapSchema{Values: values, Properties: getProperties(v)}, nil
	case "enum":
		return scope.parseEnum(v, namespace)
	case "fixed":
		return scope.parseFixed(v, namespace)
	case typeRecord, typeError:
		return scope.parseRecord(v, namespace, typeField == typeError)
	case "":
		// {"type": {...}} style nesting.
		if nested, ok := v[schemaTypeField]; ok {
			return scope.parse(nested, namespace)
		}
		return nil, fmt.Errorf("avro: schema object missing \"type\"")
	default:
		// {"type": "SomeName"}: a reference to an already-defined named type.
		return scope.parsePrimitiveOrRef(typeField, namespace)
	}
}

func (scope *parseScope) parseBytes(v map[string]interface{}) (Schema, error) {
	logicalType, scale, precision, err := parseLogicalType(v)
	if err != nil {
		return nil, err
	}
	return &BytesSchema{LogicalTypeName: logicalType, Scale: scale, Precision: precision}, nil
}

func (scope *parseScope) parseEnum(v map[string]interface{}, namespace string) (Schema, error) {
	rawSymbols, _ := v[schemaSymbolsField].([]interface{})
	symbols := make([]string, len(rawSymbols))
	for i, sym := range rawSymbols {
		s, ok := sym.(string)
		if !ok {
			return nil, fmt.Errorf("avro: enum symbol %d is not a string", i)
		}
		symbols[i] = s
	}
	if dup := firstDuplicate(symbols); dup != "" {
		return nil, fmt.Errorf("avro: enum %v declares duplicate symbol %q", v[schemaNameField], dup)
	}
	name, _ := v[schemaNameField].(string)
	schema := &EnumSchema{Name: name, Symbols: symbols, Properties: getProperties(v)}
	setOptionalField(&schema.Namespace, v, schemaNamespaceField)
	setOptionalField(&schema.Doc, v, schemaDocField)
	if err := setOptionalStringListField(&schema.Aliases, v, schemaAliasesField); err != nil {
		return nil, err
	}
	if def, ok := v[schemaDefaultField].(string); ok {
		schema.Default = def
		schema.HasDefault = true
	}
	if err := scope.register(getFullName(name, namespace), schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (scope *parseScope) parseFixed(v map[string]interface{}, namespace string) (Schema, error) {
	size, ok := v[schemaSizeField].(float64)
	if !ok {
		return nil, fmt.Errorf("avro: fixed schema missing numeric \"size\"")
	}
	logicalType, scale, precision, err := parseLogicalType(v)
	if err != nil {
		return nil, err
	}
	name, _ := v[schemaNameField].(string)
	schema := &FixedSchema{
		Name:            name,
		Size:            int(size),
		LogicalTypeName: logicalType,
		Scale:           scale,
		Precision:       precision,
		Properties:      getProperties(v),
	}
	setOptionalField(&schema.Namespace, v, schemaNamespaceField)
	if err := setOptionalStringListField(&schema.Aliases, v, schemaAliasesField); err != nil {
		return nil, err
	}
	if err := scope.register(getFullName(name, namespace), schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (scope *parseScope) parseRecord(v map[string]interface{}, namespace string, isError bool) (Schema, error) {
	name, _ := v[schemaNameField].(string)
	schema := &RecordSchema{Name: name, IsError: isError, Properties: getProperties(v)}
	setOptionalField(&schema.Namespace, v, schemaNamespaceField)
	setOptionalField(&namespace, v, schemaNamespaceField)
	setOptionalField(&schema.Doc, v, schemaDocField)
	if err := setOptionalStringListField(&schema.Aliases, v, schemaAliasesField); err != nil {
		return nil, err
	}
	fullName := getFullName(name, namespace)
	if err := scope.register(fullName, newRecursiveSchema(schema)); err != nil {
		return nil, err
	}

	rawFields, _ := v[schemaFieldsField].([]interface{})
	fields := make([]*SchemaField, len(rawFields))
	seen := make(map[string]bool, len(rawFields))
	for i, rf := range rawFields {
		field, err := scope.parseField(rf, namespace, i)
		if err != nil {
			return nil, err
		}
		if seen[field.Name] {
			return nil, fmt.Errorf("avro: record %s declares duplicate field %q", fullName, field.Name)
		}
		seen[field.Name] = true
		fields[i] = field
	}
	// The forward reference registered above must now resolve to the fully
	// populated schema so that self-referential fields link correctly.
	scope.registry[fullName] = schema
	schema.Fields = fields
	return schema, nil
}

func (scope *parseScope) parseField(i interface{}, namespace string, position int) (*SchemaField, error) {
	v, ok := i.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("avro: invalid field declaration %#v", i)
	}
	name, ok := v[schemaNameField].(string)
	if !ok {
		return nil, fmt.Errorf("avro: schema field missing \"name\"")
	}
	field := &SchemaField{Name: name, Position: position, Properties: getProperties(v)}
	setOptionalField(&field.Doc, v, schemaDocField)
	if order, ok := v[schemaOrderField].(string); ok {
		field.Order = parseFieldOrder(order)
	}
	fieldType, err := scope.parse(v[schemaTypeField], namespace)
	if err != nil {
		return nil, err
	}
	if err := validateSchemaShape(fieldType); err != nil {
		return nil, err
	}
	field.Type = fieldType
	if err := setOptionalStringListField(&field.Aliases, v, schemaAliasesField); err != nil {
		return nil, err
	}
	if def, exists := v[schemaDefaultField]; exists {
		field.Default = coerceDefault(def, fieldType)
		field.HasDefault = true
	}
	return field, nil
}

// coerceDefault narrows a JSON-decoded default (always float64 for numbers)
// to the representation the field's declared type expects, per invariant
// (iii): a default must be JSON-compatible with the field's first branch.
func coerceDefault(def interface{}, fieldType Schema) interface{} {
	t := fieldType
	if u, ok := t.(*UnionSchema); ok && len(u.Types) > 0 {
		t = u.Types[0]
	}
	if f, ok := def.(float64); ok {
		switch t.Type() {
		case Int:
			return int32(f)
		case Long:
			return int64(f)
		case Float:
			return float32(f)
		}
	}
	return def
}

func (scope *parseScope) parseUnion(v []interface{}, namespace string) (Schema, error) {
	types := make([]Schema, len(v))
	seenUnnamed := make(map[int]bool)
	seenNamed := make(map[string]bool)
	for i := range v {
		t, err := scope.parse(v[i], namespace)
		if err != nil {
			return nil, err
		}
		if t.Type() == Union {
			return nil, fmt.Errorf("avro: union may not immediately contain another union")
		}
		if isNamedType(t.Type()) {
			full := GetFullName(t)
			if seenNamed[full] {
				return nil, fmt.Errorf("avro: union contains duplicate named type %q", full)
			}
			seenNamed[full] = true
		} else {
			if seenUnnamed[t.Type()] {
				return nil, fmt.Errorf("avro: union contains more than one %q branch", typeNameOf(t))
			}
			seenUnnamed[t.Type()] = true
		}
		types[i] = t
	}
	return &UnionSchema{Types: types}, nil
}

func isNamedType(t int) bool {
	return t == Record || t == Enum || t == Fixed || t == Recursive
}

func typeNameOf(s Schema) string {
	switch s.Type() {
	case Null:
		return typeNull
	case Boolean:
		return typeBoolean
	case Int:
		return typeInt
	case Long:
		return typeLong
	case Float:
		return typeFloat
	case Double:
		return typeDouble
	case Bytes:
		return typeBytes
	case String:
		return typeString
	case Array:
		return "array"
	case Map:
		return "map"
	default:
		return s.GetName()
	}
}

func validateSchemaShape(s Schema) error {
	if _, ok := s.(*UnionSchema); ok {
		// already validated at parseUnion time
		return nil
	}
	return nil
}

func parseLogicalType(v map[string]interface{}) (logicalType string, scale, precision int, err error) {
	logicalType, _ = v[schemaLogicalTypeField].(string)
	if logicalType == "decimal" {
		if f, ok := v[schemaScaleField].(float64); ok {
			scale = int(f)
		}
		if f, ok := v[schemaPrecisionField].(float64); ok {
			precision = int(f)
		} else {
			return "", 0, 0, fmt.Errorf("avro: decimal logical type requires \"precision\"")
		}
	}
	return
}

func (scope *parseScope) register(name string, schema Schema) error {
	if existing, ok := scope.registry[name]; ok {
		if _, recursive := existing.(*RecursiveSchema); !recursive {
			return fmt.Errorf("avro: named type %q declared more than once in this parse scope", name)
		}
	}
	scope.registry[name] = schema
	return nil
}

func setOptionalField(where *string, v map[string]interface{}, fieldName string) {
	if field, exists := v[fieldName]; exists {
		if s, ok := field.(string); ok {
			*where = s
		}
	}
}

func setOptionalStringListField(where *[]string, v map[string]interface{}, fieldName string) error {
	field, exists := v[fieldName]
	if !exists {
		return nil
	}
	boxed, ok := field.([]interface{})
	if !ok {
		return fmt.Errorf("avro: %q must be an array of strings", fieldName)
	}
	out := make([]string, len(boxed))
	for i, b := range boxed {
		s, ok := b.(string)
		if !ok {
			return fmt.Errorf("avro: %q entry %d is not a string", fieldName, i)
		}
		out[i] = s
	}
	*where = out
	return nil
}

func getProperties(v map[string]interface{}) Properties {
	props := make(Properties)
	for name, value := range v {
		if !isReservedField(name) {
			props[name] = value
		}
	}
	return props
}

var reservedFields = []string{
	schemaAliasesField, schemaDefaultField, schemaDocField, schemaFieldsField, schemaItemsField,
	schemaNameField, schemaNamespaceField, schemaOrderField, schemaSizeField, schemaSymbolsField,
	schemaTypeField, schemaValuesField, schemaLogicalTypeField, schemaPrecisionField, schemaScaleField,
}

func isReservedField(name string) bool {
	return slices.Contains(reservedFields, name)
}

func firstDuplicate(values []string) string {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return v
		}
		seen[v] = true
	}
	return ""
}
