package avro

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalJSONEmitsBareNumber(t *testing.T) {
	schema := MustParseSchema(`{"type":"bytes","logicalType":"decimal","precision":6,"scale":2}`)

	enc := NewJsonEncoder()
	require.NoError(t, NewGenericDatumWriter().SetSchema(schema).Write("123.45", enc))
	out, err := enc.Build()
	require.NoError(t, err)

	// S4: a bare JSON number, never a quoted ISO-8859-1 byte string.
	assert.Equal(t, "123.45", string(out))
}

func TestDecimalJSONRoundTripsThroughNumberToken(t *testing.T) {
	schema := MustParseSchema(`{"type":"bytes","logicalType":"decimal","precision":6,"scale":2}`)

	dec, err := NewJsonDecoder([]byte(`123.45`))
	require.NoError(t, err)
	var out interface{}
	require.NoError(t, NewGenericDatumReader().SetSchema(schema).Read(&out, dec))

	f, ok := out.(*big.Float)
	require.True(t, ok)
	got, _ := f.Float64()
	assert.InDelta(t, 123.45, got, 0.0001)
}

func TestDecimalJSONRoundTripInsideRecord(t *testing.T) {
	schema := MustParseSchema(`{"type":"record","name":"Invoice","fields":[
		{"name":"total","type":{"type":"bytes","logicalType":"decimal","precision":6,"scale":2}}
	]}`)
	rec := NewGenericRecord(schema)
	rec.Set("total", "99.90")

	enc := NewJsonEncoder()
	require.NoError(t, NewGenericDatumWriter().SetSchema(schema).Write(rec, enc))
	out, err := enc.Build()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":99.90}`, string(out))

	dec, err := NewJsonDecoder(out)
	require.NoError(t, err)
	decoded := NewGenericRecord(schema)
	require.NoError(t, NewGenericDatumReader().SetSchema(schema).Read(decoded, dec))
	f, ok := decoded.Get("total").(*big.Float)
	require.True(t, ok)
	got, _ := f.Float64()
	assert.InDelta(t, 99.90, got, 0.0001)
}

func TestDecimalBinaryRoundTripUnaffectedByJSONHooks(t *testing.T) {
	schema := MustParseSchema(`{"type":"bytes","logicalType":"decimal","precision":6,"scale":2}`)

	var buf bytes.Buffer
	require.NoError(t, NewGenericDatumWriter().SetSchema(schema).Write("123.45", NewBinaryEncoder(&buf)))

	var out interface{}
	require.NoError(t, NewGenericDatumReader().SetSchema(schema).Read(&out, NewBinaryDecoder(buf.Bytes())))
	f, ok := out.(*big.Float)
	require.True(t, ok)
	got, _ := f.Float64()
	assert.InDelta(t, 123.45, got, 0.0001)
}

func TestAnyJSONProducesAvscContentObject(t *testing.T) {
	schema := MustParseSchema(`{"type":"bytes","logicalType":"any"}`)
	embedded := MustParseSchema(`{"type":"record","name":"Point","fields":[
		{"name":"x","type":"int"},
		{"name":"y","type":"int"}
	]}`)
	inner := NewGenericRecord(embedded)
	inner.Set("x", int32(3))
	inner.Set("y", int32(4))
	av := &AnyValue{Schema: embedded, Content: inner}

	enc := NewJsonEncoder()
	require.NoError(t, NewGenericDatumWriter().SetSchema(schema).Write(av, enc))
	out, err := enc.Build()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Contains(t, doc, "avsc")
	assert.Contains(t, doc, "content")

	content, ok := doc["content"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, content["x"])
	assert.EqualValues(t, 4, content["y"])
}

func TestAnyJSONRoundTripsBackToAnyValue(t *testing.T) {
	schema := MustParseSchema(`{"type":"bytes","logicalType":"any"}`)
	embedded := MustParseSchema(`{"type":"record","name":"Point","fields":[
		{"name":"x","type":"int"},
		{"name":"y","type":"int"}
	]}`)
	inner := NewGenericRecord(embedded)
	inner.Set("x", int32(3))
	inner.Set("y", int32(4))
	av := &AnyValue{Schema: embedded, Content: inner}

	enc := NewJsonEncoder()
	require.NoError(t, NewGenericDatumWriter().SetSchema(schema).Write(av, enc))
	out, err := enc.Build()
	require.NoError(t, err)

	dec, err := NewJsonDecoder(out)
	require.NoError(t, err)
	var decoded interface{}
	require.NoError(t, NewGenericDatumReader().SetSchema(schema).Read(&decoded, dec))

	got, ok := decoded.(*AnyValue)
	require.True(t, ok)
	gotRec, ok := got.Content.(*GenericRecord)
	require.True(t, ok)
	assert.EqualValues(t, 3, gotRec.Get("x"))
	assert.EqualValues(t, 4, gotRec.Get("y"))
}

func TestAnyBinaryEnvelopeUnaffectedByJSONHooks(t *testing.T) {
	schema := MustParseSchema(`{"type":"bytes","logicalType":"any"}`)
	embedded := MustParseSchema(`"string"`)
	av := &AnyValue{Schema: embedded, Content: "hello"}

	var buf bytes.Buffer
	require.NoError(t, NewGenericDatumWriter().SetSchema(schema).Write(av, NewBinaryEncoder(&buf)))

	var out interface{}
	require.NoError(t, NewGenericDatumReader().SetSchema(schema).Read(&out, NewBinaryDecoder(buf.Bytes())))
	got, ok := out.(*AnyValue)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)
}

func TestDateTimestampJSONRoundTripViaOrdinaryConversionPath(t *testing.T) {
	schema := MustParseSchema(`{"type":"long","logicalType":"timestamp-millis"}`)
	when, err := time.Parse(time.RFC3339, "2024-03-05T12:30:00Z")
	require.NoError(t, err)

	enc := NewJsonEncoder()
	require.NoError(t, NewGenericDatumWriter().SetSchema(schema).Write(when, enc))
	out, buildErr := enc.Build()
	require.NoError(t, buildErr)

	dec, err := NewJsonDecoder(out)
	require.NoError(t, err)
	var decoded interface{}
	require.NoError(t, NewGenericDatumReader().SetSchema(schema).Read(&decoded, dec))
	got, ok := decoded.(time.Time)
	require.True(t, ok)
	assert.True(t, when.Equal(got))
}
