package avro

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripResolve writes value against writerSchema, then reads it back
// through CompileResolution's grammar with readerSchema as the reader,
// returning the decoded generic value.
func roundTripResolve(t *testing.T, writerSchema, readerSchema Schema, value interface{}) interface{} {
	t.Helper()
	var buf bytes.Buffer
	w := NewGenericDatumWriter().SetSchema(writerSchema)
	require.NoError(t, w.Write(value, NewBinaryEncoder(&buf)))

	r := NewGenericDatumReader().SetSchemas(writerSchema, readerSchema)
	var out interface{}
	require.NoError(t, r.Read(&out, NewBinaryDecoder(buf.Bytes())))
	return out
}

func TestResolveFieldAddedWithDefault(t *testing.T) {
	writer := MustParseSchema(`{"type":"record","name":"Widget","fields":[
		{"name":"id","type":"long"}
	]}`)
	reader := MustParseSchema(`{"type":"record","name":"Widget","fields":[
		{"name":"id","type":"long"},
		{"name":"tag","type":"string","default":"unset"}
	]}`)

	rec := NewGenericRecord(writer)
	rec.Set("id", int64(42))

	var buf bytes.Buffer
	require.NoError(t, NewGenericDatumWriter().SetSchema(writer).Write(rec, NewBinaryEncoder(&buf)))

	r := NewGenericDatumReader().SetSchemas(writer, reader)
	decoded := NewGenericRecord(reader)
	require.NoError(t, r.Read(decoded, NewBinaryDecoder(buf.Bytes())))

	assert.Equal(t, int64(42), decoded.Get("id"))
	assert.Equal(t, "unset", decoded.Get("tag"))
}

func TestResolveFieldDroppedIsSkipped(t *testing.T) {
	writer := MustParseSchema(`{"type":"record","name":"Widget","fields":[
		{"name":"id","type":"long"},
		{"name":"legacy","type":"string"}
	]}`)
	reader := MustParseSchema(`{"type":"record","name":"Widget","fields":[
		{"name":"id","type":"long"}
	]}`)

	rec := NewGenericRecord(writer)
	rec.Set("id", int64(7))
	rec.Set("legacy", "discard me")

	var buf bytes.Buffer
	require.NoError(t, NewGenericDatumWriter().SetSchema(writer).Write(rec, NewBinaryEncoder(&buf)))

	r := NewGenericDatumReader().SetSchemas(writer, reader)
	decoded := NewGenericRecord(reader)
	require.NoError(t, r.Read(decoded, NewBinaryDecoder(buf.Bytes())))

	assert.Equal(t, int64(7), decoded.Get("id"))
	assert.False(t, decoded.Has("legacy"))
}

func TestResolveMissingFieldWithNoDefaultFails(t *testing.T) {
	writer := MustParseSchema(`{"type":"record","name":"Widget","fields":[
		{"name":"id","type":"long"}
	]}`)
	reader := MustParseSchema(`{"type":"record","name":"Widget","fields":[
		{"name":"id","type":"long"},
		{"name":"required","type":"string"}
	]}`)

	_, err := CompileResolution(writer, reader)
	require.Error(t, err)
	var mfe *MissingFieldError
	assert.ErrorAs(t, err, &mfe)
}

func TestResolvePromotionIntToLongFloatDouble(t *testing.T) {
	writer := MustParseSchema(`"int"`)
	for _, readerJSON := range []string{`"long"`, `"float"`, `"double"`} {
		reader := MustParseSchema(readerJSON)
		out := roundTripResolve(t, writer, reader, int32(9))
		switch reader.Type() {
		case Long:
			assert.EqualValues(t, 9, out)
		case Float:
			assert.EqualValues(t, 9, out)
		case Double:
			assert.EqualValues(t, 9, out)
		}
	}
}

func TestResolveStringBytesPromotion(t *testing.T) {
	writer := MustParseSchema(`"string"`)
	reader := MustParseSchema(`"bytes"`)
	out := roundTripResolve(t, writer, reader, "hello")
	assert.Equal(t, []byte("hello"), out)
}

func TestResolveIncompatiblePrimitivesFail(t *testing.T) {
	writer := MustParseSchema(`"boolean"`)
	reader := MustParseSchema(`"long"`)
	_, err := CompileResolution(writer, reader)
	require.Error(t, err)
	var tme *TypeMismatchError
	assert.ErrorAs(t, err, &tme)
}

func TestResolveEnumUnknownSymbolFallsBackToDefault(t *testing.T) {
	writer := MustParseSchema(`{"type":"enum","name":"Suit","symbols":["CLUBS","HEARTS"]}`)
	reader := MustParseSchema(`{"type":"enum","name":"Suit","symbols":["CLUBS","SPADES"],"default":"SPADES"}`)

	enum := NewGenericEnum(writer)
	enum.SetIndex(1) // HEARTS, absent from reader

	var buf bytes.Buffer
	require.NoError(t, NewGenericDatumWriter().SetSchema(writer).Write(enum, NewBinaryEncoder(&buf)))

	r := NewGenericDatumReader().SetSchemas(writer, reader)
	var out interface{}
	require.NoError(t, r.Read(&out, NewBinaryDecoder(buf.Bytes())))

	ge, ok := out.(*GenericEnum)
	require.True(t, ok)
	assert.Equal(t, "SPADES", ge.Symbol())
}

func TestResolveEnumUnknownSymbolNoDefaultFails(t *testing.T) {
	writer := MustParseSchema(`{"type":"enum","name":"Suit","symbols":["CLUBS","HEARTS"]}`)
	reader := MustParseSchema(`{"type":"enum","name":"Suit","symbols":["CLUBS","SPADES"]}`)
	_, err := CompileResolution(writer, reader)
	require.Error(t, err)
	var use *UnresolvedSchemaError
	assert.ErrorAs(t, err, &use)
}

func TestResolveArrayItemsRecurse(t *testing.T) {
	writer := MustParseSchema(`{"type":"array","items":"int"}`)
	reader := MustParseSchema(`{"type":"array","items":"long"}`)
	out := roundTripResolve(t, writer, reader, []int32{1, 2, 3})
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, out)
}

func TestResolveMapValuesRecurse(t *testing.T) {
	writer := MustParseSchema(`{"type":"map","values":"int"}`)
	reader := MustParseSchema(`{"type":"map","values":"long"}`)
	out := roundTripResolve(t, writer, reader, map[string]int32{"a": 5})
	assert.Equal(t, map[string]interface{}{"a": int64(5)}, out)
}

func TestResolveReaderUnionPicksMatchingBranch(t *testing.T) {
	writer := MustParseSchema(`"string"`)
	reader := MustParseSchema(`["null","string"]`)
	out := roundTripResolve(t, writer, reader, "picked")
	assert.Equal(t, "picked", out)
}

func TestResolutionCacheReusesCompiledGrammar(t *testing.T) {
	writer := MustParseSchema(`{"type":"record","name":"Cached","fields":[{"name":"n","type":"int"}]}`)
	reader := writer

	cache := NewResolutionCache()
	g1, err := cache.Get(writer, reader)
	require.NoError(t, err)
	g2, err := cache.Get(writer, reader)
	require.NoError(t, err)
	assert.Same(t, g1, g2)
}

func TestResolveNestedRecordFieldOrderIndependentOfWriterOrder(t *testing.T) {
	writer := MustParseSchema(`{"type":"record","name":"Nested","fields":[
		{"name":"inner","type":{"type":"record","name":"Inner","fields":[
			{"name":"b","type":"int"},
			{"name":"a","type":"int"}
		]}}
	]}`)
	reader := MustParseSchema(`{"type":"record","name":"Nested","fields":[
		{"name":"inner","type":{"type":"record","name":"Inner","fields":[
			{"name":"a","type":"int"},
			{"name":"b","type":"int"}
		]}}
	]}`)

	inner := NewGenericRecord((writer.(*RecordSchema)).Fields[0].Type)
	inner.Set("a", int32(1))
	inner.Set("b", int32(2))
	outer := NewGenericRecord(writer)
	outer.Set("inner", inner)

	var buf bytes.Buffer
	require.NoError(t, NewGenericDatumWriter().SetSchema(writer).Write(outer, NewBinaryEncoder(&buf)))

	r := NewGenericDatumReader().SetSchemas(writer, reader)
	decoded := NewGenericRecord(reader)
	require.NoError(t, r.Read(decoded, NewBinaryDecoder(buf.Bytes())))

	decodedInner, ok := decoded.Get("inner").(*GenericRecord)
	require.True(t, ok)
	assert.EqualValues(t, 1, decodedInner.Get("a"))
	assert.EqualValues(t, 2, decodedInner.Get("b"))
}
