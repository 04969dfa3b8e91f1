package avro

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Conversion is the bidirectional mapping between a typed value and its
// underlying wire value for one logical type (spec.md section 3). Direct*
// hooks let a conversion take over JSON representation entirely (e.g.
// decimal emits a bare JSON number, not a bytes string);
// returning (nil, false, nil) from either declines and falls back to the
// primitive JSON codec plus ToWire/FromWire.
type Conversion struct {
	Name           string
	ToWire         func(typed interface{}, schema Schema) (interface{}, error)
	FromWire       func(wire interface{}, schema Schema) (interface{}, error)
	DirectJSON     func(value interface{}, schema Schema) (interface{}, bool, error)
	DirectFromJSON func(raw interface{}, schema Schema) (interface{}, bool, error)
}

// ConversionRegistry maps logical-type name to Conversion. Per spec.md
// section 9 ("re-architect global mutable state as an explicit datum-model
// context"), a registry is owned by a single Context (see datum.go) and is
// never package-global; DefaultConversionRegistry returns a fresh populated
// instance rather than a shared singleton.
type ConversionRegistry struct {
	byName map[string]*Conversion
}

func NewConversionRegistry() *ConversionRegistry {
	return &ConversionRegistry{byName: make(map[string]*Conversion)}
}

// DefaultConversionRegistry installs the standard catalogue (spec.md
// section 4.7 / external interface "defaults()").
func DefaultConversionRegistry() *ConversionRegistry {
	r := NewConversionRegistry()
	r.LoadDefaults()
	return r
}

func (r *ConversionRegistry) Add(c *Conversion) { r.byName[c.Name] = c }
func (r *ConversionRegistry) Remove(name string) { delete(r.byName, name) }
func (r *ConversionRegistry) Clear() { r.byName = make(map[string]*Conversion) }
func (r *ConversionRegistry) Get(name string) (*Conversion, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *ConversionRegistry) LoadDefaults() {
	r.Add(dateConversion)
	r.Add(timestampMillisConversion)
	r.Add(timestampMicrosConversion)
	r.Add(decimalConversion)
	r.Add(bigIntegerConversion)
	r.Add(uuidConversion)
	r.Add(instantConversion)
	r.Add(anyTemporalConversion)
	r.Add(anyConversion)
}

const epochDate = "1970-01-01"

var dateConversion = &Conversion{
	Name: "date",
	ToWire: func(typed interface{}, _ Schema) (interface{}, error) {
		t, err := asTime(typed)
		if err != nil {
			return nil, err
		}
		days := t.UTC().Sub(epochUTC()).Hours() / 24
		return int32(days), nil
	},
	FromWire: func(wire interface{}, _ Schema) (interface{}, error) {
		days, err := asInt64(wire)
		if err != nil {
			return nil, err
		}
		return epochUTC().AddDate(0, 0, int(days)), nil
	},
}

var timestampMillisConversion = &Conversion{
	Name: "timestamp-millis",
	ToWire: func(typed interface{}, _ Schema) (interface{}, error) {
		t, err := asTime(typed)
		if err != nil {
			return nil, err
		}
		return t.UTC().UnixMilli(), nil
	},
	FromWire: func(wire interface{}, _ Schema) (interface{}, error) {
		ms, err := asInt64(wire)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	},
}

var timestampMicrosConversion = &Conversion{
	Name: "timestamp-micros",
	ToWire: func(typed interface{}, _ Schema) (interface{}, error) {
		t, err := asTime(typed)
		if err != nil {
			return nil, err
		}
		return t.UTC().UnixMicro(), nil
	},
	FromWire: func(wire interface{}, _ Schema) (interface{}, error) {
		us, err := asInt64(wire)
		if err != nil {
			return nil, err
		}
		return time.UnixMicro(us).UTC(), nil
	},
}

// decimalConversion encodes/decodes math/big.Rat-free decimals as a scaled
// big.Int, two's-complement big-endian, per spec.md S4. Scale comes from
// the schema (bytes or fixed), never from the value.
var decimalConversion = &Conversion{
	Name: "decimal",
	ToWire: func(typed interface{}, schema Schema) (interface{}, error) {
		scale := schemaScale(schema)
		unscaled, err := decimalUnscaled(typed, scale)
		if err != nil {
			return nil, &LogicalTypeError{LogicalType: "decimal", Reason: "cannot scale value", Cause: err}
		}
		return twosComplementBytes(unscaled), nil
	},
	FromWire: func(wire interface{}, schema Schema) (interface{}, error) {
		raw, ok := wire.([]byte)
		if !ok {
			return nil, &LogicalTypeError{LogicalType: "decimal", Reason: "wire value is not bytes"}
		}
		scale := schemaScale(schema)
		unscaled := new(big.Int).SetBytes(raw)
		if len(raw) > 0 && raw[0]&0x80 != 0 {
			// two's complement negative: subtract 2^(8*len)
			twoPow := new(big.Int).Lsh(big.NewInt(1), uint(8*len(raw)))
			unscaled.Sub(unscaled, twoPow)
		}
		return decimalFromUnscaled(unscaled, scale), nil
	},
	// DirectJSON/DirectFromJSON carry decimal's JSON projection, a bare
	// number like 123.45 (spec.md S4), which the bytes-as-ISO-8859-1-string
	// primitive path has no way to produce.
	DirectJSON: func(value interface{}, schema Schema) (interface{}, bool, error) {
		scale := schemaScale(schema)
		unscaled, err := decimalUnscaled(value, scale)
		if err != nil {
			return nil, false, &LogicalTypeError{LogicalType: "decimal", Reason: "cannot scale value", Cause: err}
		}
		return json.Number(formatScaledDecimal(unscaled, scale)), true, nil
	},
	DirectFromJSON: func(raw interface{}, schema Schema) (interface{}, bool, error) {
		var literal string
		switch v := raw.(type) {
		case json.Number:
			literal = string(v)
		case string:
			literal = v
		default:
			return nil, false, nil
		}
		scale := schemaScale(schema)
		unscaled, err := decimalUnscaled(literal, scale)
		if err != nil {
			return nil, false, &LogicalTypeError{LogicalType: "decimal", Reason: "invalid decimal literal", Cause: err}
		}
		return decimalFromUnscaled(unscaled, scale), true, nil
	},
}

var bigIntegerConversion = &Conversion{
	Name: "big-integer",
	ToWire: func(typed interface{}, _ Schema) (interface{}, error) {
		bi, ok := typed.(*big.Int)
		if !ok {
			return nil, &LogicalTypeError{LogicalType: "big-integer", Reason: "value is not *big.Int"}
		}
		return twosComplementBytes(bi), nil
	},
	FromWire: func(wire interface{}, _ Schema) (interface{}, error) {
		raw, ok := wire.([]byte)
		if !ok {
			return nil, &LogicalTypeError{LogicalType: "big-integer", Reason: "wire value is not bytes"}
		}
		v := new(big.Int).SetBytes(raw)
		if len(raw) > 0 && raw[0]&0x80 != 0 {
			twoPow := new(big.Int).Lsh(big.NewInt(1), uint(8*len(raw)))
			v.Sub(v, twoPow)
		}
		return v, nil
	},
}

var uuidConversion = &Conversion{
	Name: "uuid",
	ToWire: func(typed interface{}, _ Schema) (interface{}, error) {
		switch v := typed.(type) {
		case string:
			return v, nil
		case [16]byte:
			return formatUUID(v), nil
		default:
			return nil, &LogicalTypeError{LogicalType: "uuid", Reason: "unsupported value type"}
		}
	},
	FromWire: func(wire interface{}, _ Schema) (interface{}, error) {
		s, ok := wire.(string)
		if !ok {
			return nil, &LogicalTypeError{LogicalType: "uuid", Reason: "wire value is not string"}
		}
		return s, nil
	},
}

func formatUUID(b [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// instantConversion supports the three shapes spec.md section 4.7 names:
// long millis, a record {epochSecond, nano} (or {millis}), or a string with
// an optional format property (ISO-8601 default). The wire schema decides
// which shape applies; ToWire always emits the shape the schema declares.
var instantConversion = &Conversion{
	Name: "instant",
	ToWire: func(typed interface{}, schema Schema) (interface{}, error) {
		t, err := asTime(typed)
		if err != nil {
			return nil, err
		}
		switch schema.Type() {
		case Long:
			return t.UTC().UnixMilli(), nil
		case String:
			format, _ := schema.Prop("format")
			layout := time.RFC3339Nano
			if f, ok := format.(string); ok && f != "" {
				layout = f
			}
			return t.UTC().Format(layout), nil
		case Record:
			return map[string]interface{}{
				"epochSecond": t.Unix(),
				"nano":        int32(t.Nanosecond()),
			}, nil
		default:
			return nil, &LogicalTypeError{LogicalType: "instant", Reason: "unsupported underlying schema"}
		}
	},
	FromWire: func(wire interface{}, schema Schema) (interface{}, error) {
		switch v := wire.(type) {
		case int64:
			return time.UnixMilli(v).UTC(), nil
		case string:
			format, _ := schema.Prop("format")
			layout := time.RFC3339Nano
			if f, ok := format.(string); ok && f != "" {
				layout = f
			}
			return time.Parse(layout, v)
		case map[string]interface{}:
			if millis, ok := v["millis"]; ok {
				ms, err := asInt64(millis)
				if err != nil {
					return nil, err
				}
				return time.UnixMilli(ms).UTC(), nil
			}
			sec, _ := asInt64(v["epochSecond"])
			nano, _ := asInt64(v["nano"])
			return time.Unix(sec, nano).UTC(), nil
		default:
			return nil, &LogicalTypeError{LogicalType: "instant", Reason: "unsupported wire representation"}
		}
	},
}

// anyTemporalConversion parses the narrowest of {date, year-month, year,
// date-time, time} that round-trips, per spec.md section 4.7.
var anyTemporalConversion = &Conversion{
	Name: "any_temporal",
	ToWire: func(typed interface{}, _ Schema) (interface{}, error) {
		t, err := asTime(typed)
		if err != nil {
			return nil, err
		}
		u := t.UTC()
		switch {
		case u.Year() != 0 && u.Month() == 1 && u.Day() == 1 && isMidnight(u):
			return fmt.Sprintf("%04d", u.Year()), nil
		case u.Day() == 1 && isMidnight(u):
			return u.Format("2006-01"), nil
		case isMidnight(u):
			return u.Format("2006-01-02"), nil
		default:
			return u.Format(time.RFC3339Nano), nil
		}
	},
	FromWire: func(wire interface{}, _ Schema) (interface{}, error) {
		s, ok := wire.(string)
		if !ok {
			return nil, &LogicalTypeError{LogicalType: "any_temporal", Reason: "wire value is not string"}
		}
		for _, layout := range []string{"2006", "2006-01", "2006-01-02", time.RFC3339Nano, time.RFC3339, "15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, &LogicalTypeError{LogicalType: "any_temporal", Reason: "unparseable temporal string: " + s}
	},
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// AnyValue is the typed view of the `any` escape hatch (spec.md section
// 4.7/6): an arbitrary value embedded alongside the schema it was written
// with, so a reader lacking that schema can still round-trip it opaquely.
type AnyValue struct {
	Schema  Schema
	Content interface{}
}

// anyEnvelope is the bytes-carrier wire shape for the `any` escape hatch on
// the binary codec: the embedded schema's JSON form plus the content
// binary-encoded against it, itself JSON-marshaled into the bytes primitive
// (`any` decorates a BytesSchema; RecordSchema.Logical() is always nil in
// this schema model, schema.go, so there is no record shape to reuse here).
// The JSON codec instead uses DirectJSON/DirectFromJSON below, since S6
// requires an actual `{"avsc":"...","content":<value>}` object rather than
// a bytes-primitive string carrying a nested encoding.
type anyEnvelope struct {
	Avsc    string `json:"avsc"`
	Content []byte `json:"content"`
}

var anyConversion = &Conversion{
	Name: "any",
	ToWire: func(typed interface{}, _ Schema) (interface{}, error) {
		av, ok := typed.(*AnyValue)
		if !ok {
			return nil, &LogicalTypeError{LogicalType: "any", Reason: "value is not *AnyValue"}
		}
		avsc, err := json.Marshal(av.Schema)
		if err != nil {
			return nil, err
		}
		w := NewGenericDatumWriter().SetSchema(av.Schema)
		var bw bytes.Buffer
		if err := w.Write(av.Content, NewBinaryEncoder(&bw)); err != nil {
			return nil, err
		}
		envelope, err := json.Marshal(anyEnvelope{Avsc: string(avsc), Content: bw.Bytes()})
		if err != nil {
			return nil, err
		}
		return envelope, nil
	},
	FromWire: func(wire interface{}, _ Schema) (interface{}, error) {
		raw, ok := wire.([]byte)
		if !ok {
			return nil, &LogicalTypeError{LogicalType: "any", Reason: "wire value is not bytes"}
		}
		var env anyEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, &LogicalTypeError{LogicalType: "any", Reason: "malformed envelope", Cause: err}
		}
		embeddedSchema, err := ParseSchema(env.Avsc)
		if err != nil {
			return nil, &LogicalTypeError{LogicalType: "any", Reason: "embedded schema invalid", Cause: err}
		}
		r := NewGenericDatumReader().SetSchema(embeddedSchema)
		value, err := r.read(NewBinaryDecoder(env.Content))
		if err != nil {
			return nil, err
		}
		return &AnyValue{Schema: embeddedSchema, Content: value}, nil
	},
	// DirectJSON/DirectFromJSON give `any` its own JSON object shape,
	// {"avsc": "...", "content": <value>} with content recursively
	// JSON-encoded against the embedded schema (spec.md S6) — the bytes
	// primitive's ISO-8859-1 string has no way to nest a JSON value inside
	// another JSON document, so ToWire/FromWire's binary envelope cannot
	// serve this representation.
	DirectJSON: func(value interface{}, _ Schema) (interface{}, bool, error) {
		av, ok := value.(*AnyValue)
		if !ok {
			return nil, false, &LogicalTypeError{LogicalType: "any", Reason: "value is not *AnyValue"}
		}
		avsc, err := json.Marshal(av.Schema)
		if err != nil {
			return nil, false, err
		}
		w := NewJsonEncoder()
		if err := NewGenericDatumWriter().SetSchema(av.Schema).Write(av.Content, w); err != nil {
			return nil, false, err
		}
		contentJSON, err := w.Build()
		if err != nil {
			return nil, false, err
		}
		var content interface{}
		if err := json.Unmarshal(contentJSON, &content); err != nil {
			return nil, false, err
		}
		return map[string]interface{}{"avsc": string(avsc), "content": content}, true, nil
	},
	DirectFromJSON: func(raw interface{}, _ Schema) (interface{}, bool, error) {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, false, nil
		}
		avscRaw, hasAvsc := m["avsc"]
		contentRaw, hasContent := m["content"]
		if !hasAvsc || !hasContent {
			return nil, false, nil
		}
		avsc, ok := avscRaw.(string)
		if !ok {
			return nil, false, &LogicalTypeError{LogicalType: "any", Reason: "avsc is not a string"}
		}
		embeddedSchema, err := ParseSchema(avsc)
		if err != nil {
			return nil, false, &LogicalTypeError{LogicalType: "any", Reason: "embedded schema invalid", Cause: err}
		}
		contentJSON, err := json.Marshal(contentRaw)
		if err != nil {
			return nil, false, err
		}
		dec, err := NewJsonDecoder(contentJSON)
		if err != nil {
			return nil, false, err
		}
		r := NewGenericDatumReader().SetSchema(embeddedSchema)
		value, err := r.read(dec)
		if err != nil {
			return nil, false, err
		}
		return &AnyValue{Schema: embeddedSchema, Content: value}, true, nil
	},
}

// --- shared numeric/time helpers ---

func epochUTC() time.Time { return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC) }

func asTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	default:
		return time.Time{}, &LogicalTypeError{LogicalType: "temporal", Reason: fmt.Sprintf("value %T is not time.Time", v)}
	}
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, &LogicalTypeError{LogicalType: "temporal", Reason: "value is not a number"}
	}
}

func schemaScale(s Schema) int {
	switch t := s.(type) {
	case *BytesSchema:
		return t.Scale
	case *FixedSchema:
		return t.Scale
	default:
		return 0
	}
}

func decimalUnscaled(v interface{}, scale int) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case string:
		parsed, parsedScale, err := parseDecimalScaled(n)
		if err != nil {
			return nil, err
		}
		if parsedScale == scale {
			return parsed, nil
		}
		if parsedScale < scale {
			return new(big.Int).Mul(parsed, pow10(scale-parsedScale)), nil
		}
		return new(big.Int).Quo(parsed, pow10(parsedScale-scale)), nil
	case float64:
		return scaledBigInt(big.NewFloat(n), scale), nil
	default:
		return nil, fmt.Errorf("unsupported decimal value type %T", v)
	}
}

func scaledBigInt(f *big.Float, scale int) *big.Int {
	factor := new(big.Float).SetInt(pow10(scale))
	scaled := new(big.Float).Mul(f, factor)
	i, _ := scaled.Int(nil)
	return i
}

func decimalFromUnscaled(unscaled *big.Int, scale int) *big.Float {
	factor := new(big.Float).SetInt(pow10(scale))
	result := new(big.Float).SetInt(unscaled)
	return result.Quo(result, factor)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// formatScaledDecimal renders unscaled/10^scale as a plain decimal literal
// (e.g. unscaled=12345, scale=2 -> "123.45"), the shape decimal's
// DirectJSON hook needs as a bare JSON number.
func formatScaledDecimal(unscaled *big.Int, scale int) string {
	s := unscaled.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if scale <= 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	for len(s) <= scale {
		s = "0" + s
	}
	whole, frac := s[:len(s)-scale], s[len(s)-scale:]
	out := whole + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// twosComplementBytes returns the minimal-length big-endian two's
// complement encoding of v, per spec.md section 4.7 ("writer encoding is
// minimal-length big-endian").
func twosComplementBytes(v *big.Int) []byte {
	if v.Sign() == 0 {
		return []byte{0}
	}
	if v.Sign() > 0 {
		b := v.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	// negative: two's complement of the smallest byte width that fits.
	nBytes := new(big.Int).Sub(new(big.Int).Neg(v), big.NewInt(1)).BitLen()/8 + 1
	twoPow := new(big.Int).Lsh(big.NewInt(1), uint(8*nBytes))
	comp := new(big.Int).Add(twoPow, v)
	b := comp.Bytes()
	for len(b) < nBytes {
		b = append([]byte{0}, b...)
	}
	return b
}

func parseDecimalScaled(s string) (*big.Int, int, error) {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, 0, fmt.Errorf("invalid decimal %q", s)
		}
		return v, 0, nil
	}
	scale := len(s) - dot - 1
	digits := s[:dot] + s[dot+1:]
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, 0, fmt.Errorf("invalid decimal %q", s)
	}
	return v, scale, nil
}
