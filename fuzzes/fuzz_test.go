package fuzzes

import (
	"bytes"
	"math"
	"testing"

	avro "github.com/dunzoit/avro"
)

// seedCorpus encodes a handful of representative Complex values against
// ComplexSchema, replacing the old generate_inputs_test.go's corpus-file
// writer: the bytes now seed testing.F directly instead of landing on disk.
func seedCorpus() [][]byte {
	fixed16 := []byte("0123456789abcdef")
	enum := NewComplexEnumField()
	enum.SetIndex(3)

	samples := []*Complex{
		{FixedField: fixed16, EnumField: enum, StringArray: []string{"abc", "def", "ghi", "jkl"}},
		{FixedField: fixed16, EnumField: enum, LongArray: []int64{978, -1, math.MaxInt64, math.MinInt64}},
		{FixedField: fixed16, EnumField: enum, MapOfInts: map[string]int32{
			"aaa": 485, "bbb": math.MaxInt32, "ccc": math.MinInt32,
		}},
		{FixedField: fixed16, EnumField: enum, UnionField: "AAAAAAAAAABCDEF"},
		{FixedField: fixed16, EnumField: enum, UnionField: true},
		{
			FixedField:  fixed16,
			EnumField:   enum,
			RecordField: &TestRecord{LongRecordField: 42, StringRecordField: "nested", IntRecordField: 7, FloatRecordField: 1.5},
			MapOfRecord: map[string]*TestRecord{
				"x": {LongRecordField: 1, StringRecordField: "y", IntRecordField: 2, FloatRecordField: 3},
			},
		},
	}

	w := avro.NewSpecificDatumWriter().SetSchema(ComplexSchema)
	out := make([][]byte, 0, len(samples))
	for _, s := range samples {
		var buf bytes.Buffer
		if err := w.Write(s, avro.NewBinaryEncoder(&buf)); err != nil {
			panic(err)
		}
		out = append(out, append([]byte(nil), buf.Bytes()...))
	}
	return out
}

// FuzzGenericComplex replaces the old `+build gofuzz` genericreader.Fuzz
// corpus runner: arbitrary bytes fed to the generic reader against
// ComplexSchema should error cleanly on corrupted input, never panic.
func FuzzGenericComplex(f *testing.F) {
	for _, seed := range seedCorpus() {
		f.Add(seed)
	}
	r := avro.NewGenericDatumReader().SetSchema(ComplexSchema)
	f.Fuzz(func(t *testing.T, data []byte) {
		dest := avro.NewGenericRecord(ComplexSchema)
		_ = r.Read(dest, avro.NewBinaryDecoder(data))
	})
}

// FuzzSpecificComplex is the Complex-struct counterpart, replacing the old
// `+build gofuzz` specificreadercomplex.Fuzz corpus runner.
func FuzzSpecificComplex(f *testing.F) {
	for _, seed := range seedCorpus() {
		f.Add(seed)
	}
	r := avro.NewSpecificDatumReader().SetSchema(ComplexSchema)
	f.Fuzz(func(t *testing.T, data []byte) {
		var dest Complex
		_ = r.Read(&dest, avro.NewBinaryDecoder(data))
	})
}
