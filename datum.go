package avro

import (
	"reflect"

	"github.com/mohae/deepcopy"
)

// Context is the explicit, non-global home for everything a datum
// reader/writer needs beyond the schema pair at hand (spec.md Design Notes
// section 9: "re-architect global mutable state as an explicit datum-model
// context"). A zero Context is not usable; NewContext fills in the defaults
// every constructor below falls back to when the caller passes none.
type Context struct {
	Conversions *ConversionRegistry
	Resolutions *ResolutionCache
	// Capacity bounds the total item count an array or map declares across
	// all of its blocks on the binary read path (0 means unbounded), guarding
	// a generic reader against a corrupt or adversarial length prefix asking
	// it to preallocate unreasonably.
	Capacity int64
	// Lenient governs the JSON record reader's unknown-field behavior
	// (spec.md section 4.6/6(i), property 7, S7): true silently drops JSON
	// keys the reader schema doesn't declare, false raises
	// UnknownFieldError. Binary reading has no notion of unknown fields (the
	// writer schema drives the resolving grammar), so this only affects
	// readGenericJSONRaw's record case.
	Lenient bool
}

func NewContext() *Context {
	return &Context{Conversions: DefaultConversionRegistry(), Resolutions: NewResolutionCache(), Lenient: true}
}

// resolveCtx implements the "zero or one *Context" variadic constructor
// pattern every Generic/Specific reader and writer below uses: callers that
// don't care get NewContext(), callers wiring their own conversion registry
// or resolution cache (or sharing one across many readers) pass it once.
func resolveCtx(ctx []*Context) *Context {
	if len(ctx) > 0 && ctx[0] != nil {
		return ctx[0]
	}
	return NewContext()
}

// valueMatchesSchema decides whether v is a plausible value for s, resolving
// schema.go's UnionSchema.GetType forward reference. Fixed and bytes both
// present as []byte at the generic-value layer; a plain []byte of the right
// length also matches a Fixed branch (the specific struct path has no
// *GenericFixed to offer), so when a union mixes bytes and fixed branches, a
// bare []byte resolves to whichever branch comes first in schema order. A
// *GenericFixed/*GenericRecord/*GenericEnum is matched by identity against
// its own schema's full name, not merely its Go type.
func valueMatchesSchema(v interface{}, s Schema) bool {
	if v == nil {
		return s.Type() == Null
	}
	switch val := v.(type) {
	case *GenericRecord:
		return s.Type() == Record && GetFullName(val.Schema()) == GetFullName(s)
	case *GenericEnum:
		return s.Type() == Enum && GetFullName(val.Schema()) == GetFullName(s)
	case *GenericFixed:
		return s.Type() == Fixed && GetFullName(val.Schema()) == GetFullName(s)
	case *AnyValue:
		return s.Logical() != nil && s.Logical().Name == "any"
	}
	if s.Logical() != nil {
		return logicalValueMatches(v, s.Logical().Name)
	}
	switch s.Type() {
	case Null:
		return false
	case Boolean:
		_, ok := v.(bool)
		return ok
	case Int:
		_, ok := v.(int32)
		return ok
	case Long:
		_, ok := v.(int64)
		return ok
	case Float:
		_, ok := v.(float32)
		return ok
	case Double:
		_, ok := v.(float64)
		return ok
	case String:
		_, ok := v.(string)
		return ok
	case Bytes:
		_, ok := v.([]byte)
		return ok
	case Fixed:
		b, ok := v.([]byte)
		return ok && len(b) == s.(*FixedSchema).Size
	case Record:
		// A Go struct (the specific path) matches a record branch; its Go
		// type is not checked against the record's name.
		return reflect.ValueOf(v).Kind() == reflect.Struct
	case Enum:
		return false // only *GenericEnum above matches an enum
	case Array:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8
	case Map:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Map
	default:
		return false
	}
}

func logicalValueMatches(v interface{}, name string) bool {
	switch name {
	case "date", "timestamp-millis", "timestamp-micros", "instant", "any_temporal":
		_, ok := v.(interface{ UnixNano() int64 })
		return ok
	case "decimal":
		switch v.(type) {
		case string, float64:
			return true
		}
		return false
	case "big-integer":
		return reflect.TypeOf(v).String() == "*big.Int"
	case "uuid":
		_, ok := v.(string)
		return ok
	default:
		return true
	}
}

// --- local capability interfaces the write/read paths type-assert Encoder
// and Decoder values against; only the JSON codec (json_codec.go) implements
// them, so BinaryEncoder/BinaryDecoder simply fall through to the other
// branch wherever these appear. ---

type arrayEnterer interface{ EnterArray() error }
type mapEnterer interface{ EnterMap() error }
type mapValueAdvancer interface{ MapValueConsumed() }
type mapKeyWriter interface{ WriteMapKey(key string) }
type enumSymbolWriter interface{ WriteEnumSymbol(symbol string) }
type enumSymbolReader interface{ ReadEnumSymbol() (string, error) }
type unionLabelCloser interface{ CloseUnionLabel(isNull bool) }

// ============================================================================
// Write path. Writing bypasses the Parser/Symbol grammar entirely: the
// writer always has both the schema and the value in hand together, so there
// is no second schema to reconcile against and no need for the resolving
// grammar's bookkeeping (that machinery exists purely to let a read
// reconcile two independently-chosen schemas). writeValue is one reflect-
// plus-schema recursion shared by both the Generic and Specific writers,
// since reflect already handles *GenericRecord/*GenericEnum/*GenericFixed
// specially and falls through to plain Go values uniformly otherwise.
// ============================================================================

func writeValue(ctx *Context, schema Schema, value interface{}, enc Encoder) error {
	schema = unwrapRecursive(schema)
	if lt := schema.Logical(); lt != nil {
		if conv, ok := ctx.Conversions.Get(lt.Name); ok {
			if conv.DirectJSON != nil {
				if rjw, isJSON := enc.(RawJSONWriter); isJSON {
					raw, handled, err := conv.DirectJSON(value, schema)
					if err != nil {
						return err
					}
					if handled {
						rjw.WriteRawJSON(raw)
						return checkErr(enc)
					}
				}
			}
			wire, err := conv.ToWire(value, schema)
			if err != nil {
				return err
			}
			return writeRaw(ctx, schema, wire, enc)
		}
	}
	return writeRaw(ctx, schema, value, enc)
}

// writeRaw writes value (already past any logical-type conversion) against
// schema's underlying wire shape.
func writeRaw(ctx *Context, schema Schema, value interface{}, enc Encoder) error {
	switch t := schema.(type) {
	case *NullSchema:
		enc.WriteNull()
		return checkErr(enc)
	case *BooleanSchema:
		b, err := toBool(value)
		if err != nil {
			return err
		}
		enc.WriteBoolean(b)
		return checkErr(enc)
	case *IntSchema:
		i, err := toInt32(value)
		if err != nil {
			return err
		}
		enc.WriteInt(i)
		return checkErr(enc)
	case *LongSchema:
		i, err := toInt64(value)
		if err != nil {
			return err
		}
		enc.WriteLong(i)
		return checkErr(enc)
	case *FloatSchema:
		f, err := toFloat32(value)
		if err != nil {
			return err
		}
		enc.WriteFloat(f)
		return checkErr(enc)
	case *DoubleSchema:
		f, err := toFloat64(value)
		if err != nil {
			return err
		}
		enc.WriteDouble(f)
		return checkErr(enc)
	case *StringSchema:
		s, err := toStringValue(value)
		if err != nil {
			return err
		}
		enc.WriteString(s)
		return checkErr(enc)
	case *BytesSchema:
		b, err := toBytes(value)
		if err != nil {
			return err
		}
		enc.WriteBytes(b)
		return checkErr(enc)
	case *FixedSchema:
		return writeFixed(t, value, enc)
	case *EnumSchema:
		return writeEnum(t, value, enc)
	case *ArraySchema:
		return writeArray(ctx, t, value, enc)
	case *MapSchema:
		return writeMap(ctx, t, value, enc)
	case *UnionSchema:
		return writeUnion(ctx, t, value, enc)
	case *RecordSchema:
		return writeRecord(ctx, t, value, enc)
	default:
		return newMalformed("cannot write unknown schema type")
	}
}

func writeFixed(schema *FixedSchema, value interface{}, enc Encoder) error {
	var b []byte
	switch v := value.(type) {
	case *GenericFixed:
		b = v.Value()
	case []byte:
		b = v
	default:
		return &TypeMismatchError{Expected: "fixed", Actual: describeValue(value)}
	}
	if len(b) != schema.Size {
		return newMalformed("fixed value has wrong length for schema " + GetFullName(schema))
	}
	enc.WriteFixed(b)
	return checkErr(enc)
}

func writeEnum(schema *EnumSchema, value interface{}, enc Encoder) error {
	var symbol string
	switch v := value.(type) {
	case *GenericEnum:
		symbol = v.Symbol()
	case string:
		symbol = v
	default:
		return &TypeMismatchError{Expected: "enum", Actual: describeValue(value)}
	}
	idx, ok := schema.IndexOf(symbol)
	if !ok {
		return &UnresolvedSchemaError{Name: symbol}
	}
	if esw, ok := enc.(enumSymbolWriter); ok {
		esw.WriteEnumSymbol(symbol)
	} else {
		enc.WriteEnum(idx)
	}
	return checkErr(enc)
}

func writeArray(ctx *Context, schema *ArraySchema, value interface{}, enc Encoder) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return &TypeMismatchError{Expected: "array", Actual: describeValue(value)}
	}
	enc.WriteArrayStart()
	n := rv.Len()
	if n > 0 {
		enc.WriteArrayBlock(int64(n))
		for i := 0; i < n; i++ {
			if err := writeValue(ctx, schema.Items, rv.Index(i).Interface(), enc); err != nil {
				return err
			}
		}
	}
	enc.WriteArrayEnd()
	return checkErr(enc)
}

func writeMap(ctx *Context, schema *MapSchema, value interface{}, enc Encoder) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return &TypeMismatchError{Expected: "map", Actual: describeValue(value)}
	}
	enc.WriteMapStart()
	keys := rv.MapKeys()
	if len(keys) > 0 {
		enc.WriteMapBlock(int64(len(keys)))
		for _, k := range keys {
			key := k.String()
			if mkw, ok := enc.(mapKeyWriter); ok {
				mkw.WriteMapKey(key)
			} else {
				enc.WriteString(key)
			}
			if err := writeValue(ctx, schema.Values, rv.MapIndex(k).Interface(), enc); err != nil {
				return err
			}
		}
	}
	enc.WriteMapEnd()
	return checkErr(enc)
}

func writeUnion(ctx *Context, schema *UnionSchema, value interface{}, enc Encoder) error {
	deref := dereferenceForBranch(value)
	idx, ok := schema.GetType(deref)
	if !ok {
		return &UnionBranchError{Reason: "no union branch matches value " + describeValue(value)}
	}
	branch := schema.Types[idx]
	isNull := branch.Type() == Null
	if lur, ok := enc.(LabeledUnionWriter); ok {
		// {null,T} unwraps to a bare value or bare null, never the
		// `{"branchLabel": value}` wrapper (spec.md section 4.6/6(iii), S5).
		if _, nullable := schema.NullableUnion(); nullable {
			if isNull {
				enc.WriteNull()
				return checkErr(enc)
			}
			return writeValue(ctx, branch, deref, enc)
		}
		lur.WriteUnionLabel(BranchLabel(branch), isNull)
		if !isNull {
			if err := writeValue(ctx, branch, deref, enc); err != nil {
				return err
			}
		}
		if ulc, ok := enc.(unionLabelCloser); ok {
			ulc.CloseUnionLabel(isNull)
		}
		return checkErr(enc)
	}
	enc.WriteUnionIndex(idx)
	if isNull {
		return checkErr(enc)
	}
	return writeValue(ctx, branch, deref, enc)
}

// dereferenceForBranch implements the generic record's nil-or-pointer union
// convention (record.go): nil stays nil (selects the null branch), a
// pointer is dereferenced to the value it points at, anything else passes
// through unchanged (already a bare non-union-shaped value, or a
// *GenericRecord/*GenericEnum/*GenericFixed which are reference types by
// design and never need dereferencing).
func dereferenceForBranch(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	switch value.(type) {
	case *GenericRecord, *GenericEnum, *GenericFixed, *AnyValue:
		return value
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Ptr {
		return value
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}

func writeRecord(ctx *Context, schema *RecordSchema, value interface{}, enc Encoder) error {
	rfw, isJSON := enc.(RecordFieldWriter)
	if isJSON {
		rfw.WriteRecordStart()
	}
	getter, err := fieldAccessor(value)
	if err != nil {
		return err
	}
	for _, f := range schema.Fields {
		v, present := getter(f)
		if !present {
			if !f.HasDefault {
				return &MissingFieldError{Field: f.Name}
			}
			v = f.Default
		}
		if isJSON {
			rfw.WriteFieldName(f.Name)
		}
		if err := writeValue(ctx, f.Type, v, enc); err != nil {
			return err
		}
	}
	if isJSON {
		rfw.WriteRecordEnd()
	}
	return checkErr(enc)
}

// fieldAccessor adapts either a *GenericRecord (looked up by Avro field
// name via Has/Get) or a plain Go struct/map (looked up via
// exportedFieldName's reflect convention, matching datum_projector.go's
// original field-matching rule) into one uniform (field) -> (value, found)
// closure writeRecord drives.
func fieldAccessor(value interface{}) (func(f *SchemaField) (interface{}, bool), error) {
	switch v := value.(type) {
	case *GenericRecord:
		return func(f *SchemaField) (interface{}, bool) {
			if !v.Has(f.Name) {
				return nil, false
			}
			return v.Get(f.Name), true
		}, nil
	case map[string]interface{}:
		return func(f *SchemaField) (interface{}, bool) {
			val, ok := v[f.Name]
			return val, ok
		}, nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, &TypeMismatchError{Expected: "record", Actual: "nil pointer"}
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, &TypeMismatchError{Expected: "record", Actual: describeValue(value)}
	}
	return func(f *SchemaField) (interface{}, bool) {
		fv := rv.FieldByName(exportedFieldName(f.Name))
		if !fv.IsValid() {
			return nil, false
		}
		return fv.Interface(), true
	}, nil
}

func checkErr(enc Encoder) error { return enc.Error() }

func describeValue(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

// --- numeric/string coercion: a generic writer's value came off a
// GenericRecord (where callers may have stashed any of Go's numeric types);
// a specific writer's value came off a struct field, which should already
// be exactly-typed, but coercing costs nothing and matches the teacher's
// datum_projector.go leniency for numeric widening on write. ---

func toBool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &TypeMismatchError{Expected: "boolean", Actual: describeValue(v)}
	}
	return b, nil
}

func toInt32(v interface{}) (int32, error) {
	switch n := v.(type) {
	case int32:
		return n, nil
	case int:
		return int32(n), nil
	case int64:
		return int32(n), nil
	default:
		return 0, &TypeMismatchError{Expected: "int", Actual: describeValue(v)}
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, &TypeMismatchError{Expected: "long", Actual: describeValue(v)}
	}
}

func toFloat32(v interface{}) (float32, error) {
	switch n := v.(type) {
	case float32:
		return n, nil
	case float64:
		return float32(n), nil
	case int32:
		return float32(n), nil
	case int64:
		return float32(n), nil
	default:
		return 0, &TypeMismatchError{Expected: "float", Actual: describeValue(v)}
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, &TypeMismatchError{Expected: "double", Actual: describeValue(v)}
	}
}

func toStringValue(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", &TypeMismatchError{Expected: "string", Actual: describeValue(v)}
	}
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, &TypeMismatchError{Expected: "bytes", Actual: describeValue(v)}
	}
}

// ============================================================================
// Read path, binary. Every read — including writer==reader "self-resolution"
// — compiles and drives the resolving grammar (spec.md section 4.5), which
// eliminates a second plain-vs-resolving branch in the reader; compileSchema
// remains reachable directly for schema-shape validation/tests but is off
// the hot read path. Records/unions/primitives/enums are Parser/Symbol-
// driven because reconciling writer-vs-reader field order/skip/default/
// promotion fundamentally needs the compiled grammar's metadata. Arrays and
// maps instead bypass Parser/Symbol entirely, mirroring
// BinaryDecoder.SkipValue's existing schema-tree-walk: Avro's block-count
// framing is driven by the Decoder, not by any grammar state, and a
// resolved item shape is already fully self-describing via its own Symbol.
//
// Invariant every function below upholds: a call is responsible for pushing
// its own sym onto the Parser exactly once, and nothing pre-pushes it for
// the call (no use of NewParser's auto-push, no reliance on
// Parser.SelectBranch's push) — this lets record/union/array/map nesting
// compose through one shared Parser stack without ever double-pushing.
// ============================================================================

func newBareParser() *Parser { return &Parser{} }

func readGenericBinary(ctx *Context, p *Parser, sym *Symbol, dec Decoder) (interface{}, error) {
	switch sym.Kind {
	case KindRepeater:
		return readRepeaterBinary(ctx, p, sym, dec)
	case KindAlternative:
		return readUnionBinary(ctx, p, sym, dec)
	case KindSequence, KindRoot:
		return readRecordBinary(ctx, p, sym, dec)
	case KindTerminal:
		return readTerminalBinary(ctx, p, sym, dec)
	default:
		return nil, newMalformed("unexpected symbol kind in read position")
	}
}

func readTerminalBinary(ctx *Context, p *Parser, sym *Symbol, dec Decoder) (interface{}, error) {
	p.push(sym)
	if _, err := p.Advance(sym); err != nil {
		return nil, err
	}
	raw, err := readWireTerminal(sym, dec)
	if err != nil {
		return nil, err
	}
	raw = applyPromotion(raw, sym.Promote)
	return applyLogical(ctx, sym.ReaderSchema, raw)
}

func readWireTerminal(sym *Symbol, dec Decoder) (interface{}, error) {
	switch sym.Terminal {
	case TNull:
		return nil, dec.ReadNull()
	case TBoolean:
		return dec.ReadBoolean()
	case TInt:
		return dec.ReadInt()
	case TLong:
		return dec.ReadLong()
	case TFloat:
		return dec.ReadFloat()
	case TDouble:
		return dec.ReadDouble()
	case TBytes:
		return dec.ReadBytes()
	case TString:
		return dec.ReadString()
	case TFixed:
		if sym.FixedSchema == nil {
			return nil, newMalformed("fixed terminal missing its schema")
		}
		raw, err := dec.ReadFixed(sym.FixedSchema.Size)
		if err != nil {
			return nil, err
		}
		return NewGenericFixed(sym.FixedSchema, raw), nil
	case TEnum:
		if sym.EnumSchema == nil {
			return nil, newMalformed("enum terminal missing its schema")
		}
		if esr, ok := dec.(enumSymbolReader); ok {
			name, err := esr.ReadEnumSymbol()
			if err != nil {
				return nil, err
			}
			idx, ok := sym.EnumSchema.IndexOf(name)
			if !ok {
				return nil, &UnresolvedSchemaError{Name: name}
			}
			return newGenericEnumAt(sym.EnumSchema, idx), nil
		}
		idx, err := dec.ReadEnum()
		if err != nil {
			return nil, err
		}
		if sym.EnumAdjust != nil {
			if idx < 0 || idx >= len(sym.EnumAdjust) {
				return nil, newMalformed("enum ordinal out of range for writer schema")
			}
			idx = sym.EnumAdjust[idx]
		}
		if idx < 0 || idx >= len(sym.EnumSchema.Symbols) {
			return nil, newMalformed("resolved enum ordinal out of range for reader schema")
		}
		return newGenericEnumAt(sym.EnumSchema, idx), nil
	default:
		return nil, newMalformed("unexpected terminal in value position: " + sym.Terminal.String())
	}
}

func newGenericEnumAt(schema *EnumSchema, idx int) *GenericEnum {
	return &GenericEnum{schema: schema, index: idx}
}

// applyPromotion widens a just-read wire value to the reader's promoted
// type (spec.md section 4.5's promotion table), a no-op when promote is nil.
func applyPromotion(raw interface{}, promote *Promotion) interface{} {
	if promote == nil {
		return raw
	}
	switch promote.ReaderType {
	case Long:
		if v, ok := raw.(int32); ok {
			return int64(v)
		}
	case Float:
		switch v := raw.(type) {
		case int32:
			return float32(v)
		case int64:
			return float32(v)
		}
	case Double:
		switch v := raw.(type) {
		case int32:
			return float64(v)
		case int64:
			return float64(v)
		case float32:
			return float64(v)
		}
	case Bytes:
		if v, ok := raw.(string); ok {
			return []byte(v)
		}
	case String:
		if v, ok := raw.([]byte); ok {
			return string(v)
		}
	}
	return raw
}

func applyLogical(ctx *Context, schema Schema, raw interface{}) (interface{}, error) {
	if schema == nil {
		return raw, nil
	}
	lt := schema.Logical()
	if lt == nil {
		return raw, nil
	}
	conv, ok := ctx.Conversions.Get(lt.Name)
	if !ok {
		return raw, nil
	}
	return conv.FromWire(raw, schema)
}

func checkCapacity(ctx *Context, count int64) error {
	if ctx.Capacity <= 0 {
		return nil
	}
	if count > ctx.Capacity {
		return &CapacityError{Declared: count, Limit: ctx.Capacity}
	}
	return nil
}

func readRepeaterBinary(ctx *Context, p *Parser, sym *Symbol, dec Decoder) (interface{}, error) {
	if sym.Repeater.Start.Terminal == TMapStart {
		out := make(map[string]interface{})
		var total int64
		for {
			n, err := dec.ReadBlockCount()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			total += n
			if err := checkCapacity(ctx, total); err != nil {
				return nil, err
			}
			for i := int64(0); i < n; i++ {
				key, err := dec.ReadString()
				if err != nil {
					return nil, err
				}
				v, err := readGenericBinary(ctx, p, sym.Repeater.Item, dec)
				if err != nil {
					return nil, err
				}
				out[key] = v
			}
		}
		return out, nil
	}
	out := make([]interface{}, 0)
	var total int64
	for {
		n, err := dec.ReadBlockCount()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		total += n
		if err := checkCapacity(ctx, total); err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			v, err := readGenericBinary(ctx, p, sym.Repeater.Item, dec)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// isNullableShape reports whether sym's ReaderSchema is a {null, T} union,
// the only shape whose non-null branch the generic reader wraps in a
// pointer (wrapOptional) to mirror GenericRecord.Set's write-side
// convention. A union with no null branch (or three-plus branches) has no
// "unset" signal to carry and is returned as a bare value instead.
func isNullableShape(sym *Symbol) bool {
	us, ok := sym.ReaderSchema.(*UnionSchema)
	if !ok {
		return false
	}
	_, ok = us.NullableUnion()
	return ok
}

func wrapOptional(v interface{}) interface{} {
	switch v.(type) {
	case *GenericRecord, *GenericEnum, *GenericFixed:
		return v
	}
	rv := reflect.ValueOf(v)
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return ptr.Interface()
}

func readUnionBinary(ctx *Context, p *Parser, sym *Symbol, dec Decoder) (interface{}, error) {
	p.push(sym)
	alt, err := p.Advance(symUnion)
	if err != nil {
		return nil, err
	}
	idx, err := dec.ReadUnionIndex()
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(alt.Alternative.Symbols) {
		return nil, newMalformed("union index out of range")
	}
	branchSym := alt.Alternative.Symbols[idx]
	if branchSym.Kind == KindTerminal && branchSym.Terminal == TNull {
		p.push(branchSym)
		if _, err := p.Advance(symNull); err != nil {
			return nil, err
		}
		return nil, dec.ReadNull()
	}
	v, err := readGenericBinary(ctx, p, branchSym, dec)
	if err != nil {
		return nil, err
	}
	if isNullableShape(sym) {
		return wrapOptional(v), nil
	}
	return v, nil
}

func readRecordBinary(ctx *Context, p *Parser, sym *Symbol, dec Decoder) (interface{}, error) {
	rs, ok := sym.ReaderSchema.(*RecordSchema)
	if !ok {
		return nil, newMalformed("record symbol missing its reader schema")
	}
	rec := NewGenericRecord(rs)
	p.push(sym)
	if _, err := p.Advance(symRecordStart); err != nil {
		return nil, err
	}
	for {
		next, err := p.Advance(symRecordEnd)
		if err != nil {
			return nil, err
		}
		if next.Kind == KindTerminal && next.Terminal == TRecordEnd {
			break
		}
		meta := next.FieldMeta
		if meta == nil {
			return nil, newMalformed("resolving grammar yielded an unlabeled marker mid-record")
		}
		switch {
		case meta.SkipSchema != nil:
			if err := dec.SkipValue(meta.SkipSchema); err != nil {
				return nil, err
			}
		case meta.DefaultOnly:
			// DefaultValue is the schema's own stored default (resolving_grammar.go);
			// for an array/map default it is a slice/map shared by every record this
			// grammar ever resolves, so it is deep-copied per record to keep one
			// caller's in-place edit from leaking into the next decode.
			rec.Set(meta.ReaderField.Name, deepcopy.Copy(meta.DefaultValue))
		default:
			v, err := readGenericBinary(ctx, p, meta.ValueSymbol, dec)
			if err != nil {
				return nil, err
			}
			rec.Set(meta.ReaderField.Name, v)
		}
	}
	return rec, nil
}

// ============================================================================
// Read path, JSON. JSON is self-describing by key, so record/union/array/
// map reading here is schema-driven rather than Parser/Symbol-driven: there
// is no writer-order to reconcile, only a lookup by field name (or union
// label). A dedicated resolving grammar isn't needed for JSON at all;
// default-filling and promotion both fall out of the same schema-driven
// walk (readGenericJSONRaw), with logical-type conversion layered on in
// readGenericJSON exactly as the binary path layers it in applyLogical.
// ============================================================================

func readGenericJSON(ctx *Context, schema Schema, dec Decoder) (interface{}, error) {
	schema = unwrapRecursive(schema)
	if lt := schema.Logical(); lt != nil {
		if conv, ok := ctx.Conversions.Get(lt.Name); ok && conv.DirectFromJSON != nil {
			if rjr, isJSON := dec.(RawJSONReader); isJSON {
				raw, err := rjr.PopRawJSON()
				if err != nil {
					return nil, err
				}
				v, handled, err := conv.DirectFromJSON(raw, schema)
				if err != nil {
					return nil, err
				}
				if handled {
					return v, nil
				}
				rjr.PushRawJSON(raw)
			}
		}
	}
	raw, err := readGenericJSONRaw(ctx, schema, dec)
	if err != nil {
		return nil, err
	}
	return applyLogical(ctx, schema, raw)
}

func readGenericJSONRaw(ctx *Context, schema Schema, dec Decoder) (interface{}, error) {
	switch t := schema.(type) {
	case *NullSchema:
		return nil, dec.ReadNull()
	case *BooleanSchema:
		return dec.ReadBoolean()
	case *IntSchema:
		return dec.ReadInt()
	case *LongSchema:
		return dec.ReadLong()
	case *FloatSchema:
		return dec.ReadFloat()
	case *DoubleSchema:
		return dec.ReadDouble()
	case *StringSchema:
		return dec.ReadString()
	case *BytesSchema:
		return dec.ReadBytes()
	case *FixedSchema:
		raw, err := dec.ReadFixed(t.Size)
		if err != nil {
			return nil, err
		}
		return NewGenericFixed(t, raw), nil
	case *EnumSchema:
		esr, ok := dec.(enumSymbolReader)
		if !ok {
			return nil, newMalformed("json decoder missing enum symbol support")
		}
		name, err := esr.ReadEnumSymbol()
		if err != nil {
			return nil, err
		}
		idx, ok := t.IndexOf(name)
		if !ok {
			return nil, &UnresolvedSchemaError{Name: name}
		}
		return newGenericEnumAt(t, idx), nil
	case *ArraySchema:
		ae, ok := dec.(arrayEnterer)
		if !ok {
			return nil, newMalformed("json decoder missing array support")
		}
		if err := ae.EnterArray(); err != nil {
			return nil, err
		}
		out := make([]interface{}, 0)
		for {
			n, err := dec.ReadBlockCount()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			for i := int64(0); i < n; i++ {
				v, err := readGenericJSON(ctx, t.Items, dec)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		}
		return out, nil
	case *MapSchema:
		me, ok := dec.(mapEnterer)
		if !ok {
			return nil, newMalformed("json decoder missing map support")
		}
		if err := me.EnterMap(); err != nil {
			return nil, err
		}
		out := make(map[string]interface{})
		for {
			n, err := dec.ReadBlockCount()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			for i := int64(0); i < n; i++ {
				key, err := dec.ReadString()
				if err != nil {
					return nil, err
				}
				v, err := readGenericJSON(ctx, t.Values, dec)
				if err != nil {
					return nil, err
				}
				out[key] = v
				if adv, ok := dec.(mapValueAdvancer); ok {
					adv.MapValueConsumed()
				}
			}
		}
		return out, nil
	case *UnionSchema:
		// {null,T} appears as bare null or a bare value of T, never the
		// `{"branchLabel": value}` wrapper (spec.md section 4.6/6(iii), S5);
		// NullPeeker tells the two apart without a schema-blind ReadUnionLabel
		// call, which would otherwise reject the unwrapped shape outright.
		if nonNull, nullable := t.NullableUnion(); nullable {
			np, ok := dec.(NullPeeker)
			if !ok {
				return nil, newMalformed("json decoder missing null-peek support")
			}
			if np.PeekNull() {
				return nil, dec.ReadNull()
			}
			v, err := readGenericJSON(ctx, nonNull, dec)
			if err != nil {
				return nil, err
			}
			return wrapOptional(v), nil
		}
		lur, ok := dec.(LabeledUnionReader)
		if !ok {
			return nil, newMalformed("json decoder missing union label support")
		}
		label, wasNull, err := lur.ReadUnionLabel()
		if err != nil {
			return nil, err
		}
		if wasNull {
			return nil, nil
		}
		for _, branch := range t.Types {
			if BranchLabel(branch) == label {
				return readGenericJSON(ctx, branch, dec)
			}
		}
		return nil, newMalformed("unknown union branch while reading: " + label)
	case *RecordSchema:
		rfr, ok := dec.(RecordFieldReader)
		if !ok {
			return nil, newMalformed("json decoder missing record support")
		}
		if err := rfr.EnterRecord(); err != nil {
			return nil, err
		}
		rec := NewGenericRecord(t)
		jd, _ := dec.(*JsonDecoder)
		for _, f := range t.Fields {
			if jd != nil && jd.FieldValue(f.Name) {
				v, err := readGenericJSON(ctx, f.Type, dec)
				if err != nil {
					return nil, err
				}
				rec.Set(f.Name, v)
				continue
			}
			if f.HasDefault {
				rec.Set(f.Name, deepcopy.Copy(f.Default))
				continue
			}
			return nil, &MissingFieldError{Field: f.Name}
		}
		if !ctx.Lenient {
			if ufs, ok := dec.(UnknownFieldScanner); ok {
				if unknown := ufs.UnknownFieldNames(); len(unknown) > 0 {
					return nil, &UnknownFieldError{Field: unknown[0]}
				}
			}
		}
		if err := rfr.ExitRecord(); err != nil {
			return nil, err
		}
		return rec, nil
	case *RecursiveSchema:
		return readGenericJSONRaw(ctx, t.Actual, dec)
	default:
		return nil, newMalformed("unsupported schema in JSON read")
	}
}

// ============================================================================
// assignGeneric projects a generically-decoded value tree (GenericRecord,
// GenericEnum, GenericFixed, []interface{}, map[string]interface{}, native
// scalars) onto a caller-supplied Go value, the way SpecificDatumReader.Read
// hands off after decoding. This keeps the decode recursion singular
// (generic-producing only) rather than maintained twice over.
// ============================================================================

func assignGeneric(value interface{}, target reflect.Value) error {
	if value == nil {
		if target.Kind() == reflect.Ptr && target.CanSet() {
			target.Set(reflect.Zero(target.Type()))
		}
		return nil
	}
	for target.Kind() == reflect.Ptr {
		if target.IsNil() {
			if !target.CanSet() {
				return newMalformed("assignGeneric: cannot allocate through a non-settable nil pointer")
			}
			target.Set(reflect.New(target.Type().Elem()))
		}
		target = target.Elem()
	}
	if value == nil {
		return nil
	}
	// An optional field's decoded value arrives pointer-wrapped (wrapOptional,
	// mirroring GenericRecord's nil-or-pointer union convention) except for
	// the reference types below, which are already unwrapped by target's own
	// pointer-chasing above; unwrap the value side to match.
	switch value.(type) {
	case *GenericRecord, *GenericEnum, *GenericFixed:
	default:
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return nil
			}
			value = rv.Elem().Interface()
		}
	}
	switch v := value.(type) {
	case *GenericRecord:
		if target.Kind() != reflect.Struct {
			return &TypeMismatchError{Expected: "struct", Actual: target.Kind().String()}
		}
		for _, f := range v.schema.Fields {
			if !v.Has(f.Name) {
				continue
			}
			fv := target.FieldByName(exportedFieldName(f.Name))
			if !fv.IsValid() || !fv.CanSet() {
				continue
			}
			if err := assignGeneric(v.Get(f.Name), fv); err != nil {
				return err
			}
		}
		return nil
	case *GenericEnum:
		if target.Kind() != reflect.String {
			return &TypeMismatchError{Expected: "string", Actual: target.Kind().String()}
		}
		target.SetString(v.Symbol())
		return nil
	case *GenericFixed:
		if target.Kind() != reflect.Slice || target.Type().Elem().Kind() != reflect.Uint8 {
			return &TypeMismatchError{Expected: "[]byte", Actual: target.Kind().String()}
		}
		target.SetBytes(v.Value())
		return nil
	case []interface{}:
		if target.Kind() != reflect.Slice {
			return &TypeMismatchError{Expected: "slice", Actual: target.Kind().String()}
		}
		out := reflect.MakeSlice(target.Type(), len(v), len(v))
		for i, item := range v {
			if err := assignGeneric(item, out.Index(i)); err != nil {
				return err
			}
		}
		target.Set(out)
		return nil
	case map[string]interface{}:
		if target.Kind() != reflect.Map {
			return &TypeMismatchError{Expected: "map", Actual: target.Kind().String()}
		}
		out := reflect.MakeMapWithSize(target.Type(), len(v))
		for k, item := range v {
			elem := reflect.New(target.Type().Elem()).Elem()
			if err := assignGeneric(item, elem); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k), elem)
		}
		target.Set(out)
		return nil
	default:
		return assignScalar(value, target)
	}
}

func assignScalar(value interface{}, target reflect.Value) error {
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target.Type()) {
		target.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(target.Type()) {
		switch target.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Float32, reflect.Float64, reflect.String:
			target.Set(rv.Convert(target.Type()))
			return nil
		}
	}
	return &TypeMismatchError{Expected: target.Type().String(), Actual: describeValue(value)}
}

// ============================================================================
// Public reader/writer types. Constructors take zero or one *Context
// (resolveCtx) so existing zero-arg call sites keep compiling; SetSchema and
// SetSchemas both return the receiver for fluent chaining.
// ============================================================================

// GenericDatumWriter writes GenericRecord/GenericEnum/GenericFixed (or plain
// Go values) against schema using Write's enc argument to pick the binary or
// JSON wire form.
type GenericDatumWriter struct {
	ctx    *Context
	schema Schema
}

func NewGenericDatumWriter(ctx ...*Context) *GenericDatumWriter {
	return &GenericDatumWriter{ctx: resolveCtx(ctx)}
}

func (w *GenericDatumWriter) SetSchema(schema Schema) *GenericDatumWriter {
	w.schema = schema
	return w
}

func (w *GenericDatumWriter) Write(value interface{}, enc Encoder) error {
	if w.schema == nil {
		return newMalformed("GenericDatumWriter: no schema set")
	}
	if err := writeValue(w.ctx, w.schema, value, enc); err != nil {
		return err
	}
	return checkErr(enc)
}

// GenericDatumReader reads a GenericRecord/GenericEnum/GenericFixed (or a
// native scalar/[]interface{}/map[string]interface{}) per ReaderSchema,
// reconciling against WriterSchema when the two differ (schema evolution).
type GenericDatumReader struct {
	ctx          *Context
	writerSchema Schema
	readerSchema Schema
}

func NewGenericDatumReader(ctx ...*Context) *GenericDatumReader {
	return &GenericDatumReader{ctx: resolveCtx(ctx)}
}

// SetSchema sets both the writer and reader schema to schema (the common
// case: reading data written with the same schema the caller wants it
// shaped as).
func (r *GenericDatumReader) SetSchema(schema Schema) *GenericDatumReader {
	r.writerSchema = schema
	r.readerSchema = schema
	return r
}

// SetSchemas sets distinct writer/reader schemas for an explicit
// schema-evolution read.
func (r *GenericDatumReader) SetSchemas(writer, reader Schema) *GenericDatumReader {
	r.writerSchema = writer
	r.readerSchema = reader
	return r
}

// Read decodes one value per WriterSchema/ReaderSchema and stores it into
// reuse, following the classic Avro reuse-parameter convention: reuse is
// populated in place rather than replaced, so callers can reuse one
// *GenericRecord allocation across many reads. reuse may be nil when the
// caller only wants side effects (none here) or is going through read
// directly (the `any` logical type's embedded-value decode, logical.go).
func (r *GenericDatumReader) Read(reuse interface{}, dec Decoder) error {
	value, err := r.read(dec)
	if err != nil {
		return err
	}
	return populateReuse(reuse, value)
}

// read is the internal decode entry point, returning the freshly-built
// generic value rather than writing it into a reuse target. Read wraps it
// for the public, reuse-populating API; logical.go's `any` conversion calls
// it directly since an embedded value has nowhere pre-allocated to reuse.
func (r *GenericDatumReader) read(dec Decoder) (interface{}, error) {
	if r.writerSchema == nil || r.readerSchema == nil {
		return nil, newMalformed("GenericDatumReader: schema not set")
	}
	if _, isJSON := dec.(RecordFieldReader); isJSON {
		return readGenericJSON(r.ctx, r.readerSchema, dec)
	}
	grammar, err := r.ctx.Resolutions.Get(r.writerSchema, r.readerSchema)
	if err != nil {
		return nil, err
	}
	p := newBareParser()
	return readGenericBinary(r.ctx, p, grammar.Root, dec)
}

// populateReuse writes value into reuse in place. A *GenericRecord reuse
// target has its backing map merged in (preserving the pointer identity the
// caller passed in); anything else is treated as a pointer to the decoded
// shape and set directly.
func populateReuse(reuse interface{}, value interface{}) error {
	if reuse == nil {
		return nil
	}
	if target, ok := reuse.(*GenericRecord); ok {
		source, ok := value.(*GenericRecord)
		if !ok {
			return &TypeMismatchError{Expected: "record", Actual: describeValue(value)}
		}
		for k, v := range source.values {
			target.values[k] = v
		}
		return nil
	}
	rv := reflect.ValueOf(reuse)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return newMalformed("GenericDatumReader.Read: reuse must be a non-nil pointer or *GenericRecord")
	}
	elem := rv.Elem()
	if value == nil {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
			elem.Set(reflect.Zero(elem.Type()))
			return nil
		}
		return newMalformed("GenericDatumReader.Read: cannot assign null to " + elem.Type().String())
	}
	vv := reflect.ValueOf(value)
	if !vv.Type().AssignableTo(elem.Type()) {
		return &TypeMismatchError{Expected: elem.Type().String(), Actual: describeValue(value)}
	}
	elem.Set(vv)
	return nil
}

// SpecificDatumWriter writes a plain Go struct (matched to schema fields via
// exportedFieldName, datum_projector.go's original convention) using the
// same writeValue recursion GenericDatumWriter uses — reflect already
// handles both shapes without a second code path.
type SpecificDatumWriter struct {
	inner *GenericDatumWriter
}

func NewSpecificDatumWriter(ctx ...*Context) *SpecificDatumWriter {
	return &SpecificDatumWriter{inner: NewGenericDatumWriter(ctx...)}
}

func (w *SpecificDatumWriter) SetSchema(schema Schema) *SpecificDatumWriter {
	w.inner.SetSchema(schema)
	return w
}

func (w *SpecificDatumWriter) Write(value interface{}, enc Encoder) error {
	return w.inner.Write(value, enc)
}

// SpecificDatumReader decodes generically, then projects the result onto
// the caller's struct via assignGeneric — avoiding a second,
// struct-populating decode recursion running in lockstep with the generic
// one.
type SpecificDatumReader struct {
	inner *GenericDatumReader
}

func NewSpecificDatumReader(ctx ...*Context) *SpecificDatumReader {
	return &SpecificDatumReader{inner: NewGenericDatumReader(ctx...)}
}

func (r *SpecificDatumReader) SetSchema(schema Schema) *SpecificDatumReader {
	r.inner.SetSchema(schema)
	return r
}

func (r *SpecificDatumReader) SetSchemas(writer, reader Schema) *SpecificDatumReader {
	r.inner.SetSchemas(writer, reader)
	return r
}

func (r *SpecificDatumReader) Read(reuse interface{}, dec Decoder) error {
	value, err := r.inner.read(dec)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(reuse)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return newMalformed("SpecificDatumReader.Read: reuse must be a non-nil pointer")
	}
	return assignGeneric(value, rv)
}
