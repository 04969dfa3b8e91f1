package avro

import (
	"encoding/binary"
	"io"
	"math"
)

// Encoder is the write-side half of the binary codec capability record
// (spec.md Design Notes section 9: "capability record" instead of a class
// hierarchy). JsonEncoder implements the same interface for C6.
type Encoder interface {
	WriteNull()
	WriteBoolean(v bool)
	WriteInt(v int32)
	WriteLong(v int64)
	WriteFloat(v float32)
	WriteDouble(v float64)
	WriteBytes(v []byte)
	WriteString(v string)
	WriteFixed(v []byte)
	WriteEnum(index int)
	WriteArrayStart()
	WriteArrayBlock(count int64)
	WriteArrayEnd()
	WriteMapStart()
	WriteMapBlock(count int64)
	WriteMapEnd()
	WriteUnionIndex(index int)
	Error() error
}

// Decoder is the read-side half of the binary codec capability record.
type Decoder interface {
	ReadNull() error
	ReadBoolean() (bool, error)
	ReadInt() (int32, error)
	ReadLong() (int64, error)
	ReadFloat() (float32, error)
	ReadDouble() (float64, error)
	ReadBytes() ([]byte, error)
	ReadString() (string, error)
	ReadFixed(size int) ([]byte, error)
	ReadEnum() (int, error)
	// ReadBlockCount reads one array/map block header, returning the number
	// of items in the block (0 means end-of-collection). A negative count
	// read from the wire is translated to its absolute value after the
	// byte-size prefix that follows it is consumed, per spec.md section 4.2.
	ReadBlockCount() (int64, error)
	ReadUnionIndex() (int, error)
	// SkipValue discards one value of the given schema without surfacing
	// it, used by the resolving grammar's SkipAction (spec.md section 4.5).
	SkipValue(s Schema) error
}

const maxVarintBytes = 10

// BinaryEncoder writes the Avro binary encoding (spec.md section 6) to an
// io.Writer: zigzag varint ints/longs, little-endian IEEE-754 floats/
// doubles, length-prefixed bytes/strings, and blocked arrays/maps.
type BinaryEncoder struct {
	w   io.Writer
	err error
	buf [binary.MaxVarintLen64]byte
}

func NewBinaryEncoder(w io.Writer) *BinaryEncoder { return &BinaryEncoder{w: w} }

func (e *BinaryEncoder) Error() error { return e.err }

func (e *BinaryEncoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *BinaryEncoder) WriteNull() {}

func (e *BinaryEncoder) WriteBoolean(v bool) {
	if v {
		e.write([]byte{1})
	} else {
		e.write([]byte{0})
	}
}

func zigzagEncode(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func zigzagDecode(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

func (e *BinaryEncoder) writeVarint(v uint64) {
	n := binary.PutUvarint(e.buf[:], v)
	e.write(e.buf[:n])
}

func (e *BinaryEncoder) WriteInt(v int32)  { e.writeVarint(zigzagEncode(int64(v))) }
func (e *BinaryEncoder) WriteLong(v int64) { e.writeVarint(zigzagEncode(v)) }

func (e *BinaryEncoder) WriteFloat(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	e.write(b[:])
}

func (e *BinaryEncoder) WriteDouble(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.write(b[:])
}

func (e *BinaryEncoder) WriteBytes(v []byte) {
	e.WriteLong(int64(len(v)))
	e.write(v)
}

func (e *BinaryEncoder) WriteString(v string) {
	e.WriteLong(int64(len(v)))
	e.write([]byte(v))
}

func (e *BinaryEncoder) WriteFixed(v []byte) { e.write(v) }

func (e *BinaryEncoder) WriteEnum(index int) { e.WriteInt(int32(index)) }

func (e *BinaryEncoder) WriteArrayStart() {}
func (e *BinaryEncoder) WriteArrayBlock(count int64) { e.WriteLong(count) }
func (e *BinaryEncoder) WriteArrayEnd()               { e.WriteLong(0) }

func (e *BinaryEncoder) WriteMapStart() {}
func (e *BinaryEncoder) WriteMapBlock(count int64) { e.WriteLong(count) }
func (e *BinaryEncoder) WriteMapEnd()               { e.WriteLong(0) }

func (e *BinaryEncoder) WriteUnionIndex(index int) { e.WriteLong(int64(index)) }

// BinaryDecoder reads the Avro binary encoding from a byte slice.
type BinaryDecoder struct {
	buf []byte
	pos int
}

func NewBinaryDecoder(buf []byte) *BinaryDecoder { return &BinaryDecoder{buf: buf} }

func (d *BinaryDecoder) remaining() int { return len(d.buf) - d.pos }

func (d *BinaryDecoder) readByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, newMalformed("unexpected end of input")
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *BinaryDecoder) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, newMalformed("negative length")
	}
	if d.remaining() < n {
		return nil, newMalformed("unexpected end of input")
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *BinaryDecoder) readVarint() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxVarintBytes; i++ {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, newMalformed("varint exceeds 10 bytes")
}

func (d *BinaryDecoder) ReadNull() error { return nil }

func (d *BinaryDecoder) ReadBoolean() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	if b != 0 && b != 1 {
		return false, newMalformed("invalid boolean byte")
	}
	return b == 1, nil
}

func (d *BinaryDecoder) ReadInt() (int32, error) {
	v, err := d.readVarint()
	if err != nil {
		return 0, err
	}
	return int32(zigzagDecode(v)), nil
}

func (d *BinaryDecoder) ReadLong() (int64, error) {
	v, err := d.readVarint()
	if err != nil {
		return 0, err
	}
	return zigzagDecode(v), nil
}

func (d *BinaryDecoder) ReadFloat() (float32, error) {
	b, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (d *BinaryDecoder) ReadDouble() (float64, error) {
	b, err := d.readN(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (d *BinaryDecoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadLong()
	if err != nil {
		return nil, err
	}
	raw, err := d.readN(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (d *BinaryDecoder) ReadString() (string, error) {
	raw, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (d *BinaryDecoder) ReadFixed(size int) ([]byte, error) {
	raw, err := d.readN(size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (d *BinaryDecoder) ReadEnum() (int, error) {
	v, err := d.ReadInt()
	return int(v), err
}

func (d *BinaryDecoder) ReadUnionIndex() (int, error) {
	v, err := d.ReadLong()
	return int(v), err
}

// ReadBlockCount reads a single array/map block header. A negative count
// signals that a byte-size prefix follows (enabling a consumer to skip the
// whole block without decoding items); BinaryDecoder consumes and discards
// that size since it is only useful to a skipping reader, which computes it
// independently via SkipValue.
func (d *BinaryDecoder) ReadBlockCount() (int64, error) {
	count, err := d.ReadLong()
	if err != nil {
		return 0, err
	}
	if count < 0 {
		if _, err := d.ReadLong(); err != nil { // block byte size, unused here
			return 0, err
		}
		count = -count
	}
	return count, nil
}

// SkipValue discards one value of schema s without surfacing it to the
// caller, walking the schema tree directly (see DESIGN.md for why this
// does not thread back through the interned grammar).
func (d *BinaryDecoder) SkipValue(s Schema) error {
	switch t := s.(type) {
	case *NullSchema:
		return nil
	case *BooleanSchema:
		_, err := d.ReadBoolean()
		return err
	case *IntSchema:
		_, err := d.ReadInt()
		return err
	case *LongSchema:
		_, err := d.ReadLong()
		return err
	case *FloatSchema:
		_, err := d.ReadFloat()
		return err
	case *DoubleSchema:
		_, err := d.ReadDouble()
		return err
	case *BytesSchema:
		_, err := d.ReadBytes()
		return err
	case *StringSchema:
		_, err := d.ReadString()
		return err
	case *FixedSchema:
		_, err := d.ReadFixed(t.Size)
		return err
	case *EnumSchema:
		_, err := d.ReadEnum()
		return err
	case *ArraySchema:
		for {
			n, err := d.ReadBlockCount()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			for i := int64(0); i < n; i++ {
				if err := d.SkipValue(t.Items); err != nil {
					return err
				}
			}
		}
	case *MapSchema:
		for {
			n, err := d.ReadBlockCount()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			for i := int64(0); i < n; i++ {
				if _, err := d.ReadString(); err != nil {
					return err
				}
				if err := d.SkipValue(t.Values); err != nil {
					return err
				}
			}
		}
	case *UnionSchema:
		idx, err := d.ReadUnionIndex()
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(t.Types) {
			return newMalformed("union index out of range while skipping")
		}
		return d.SkipValue(t.Types[idx])
	case *RecordSchema:
		for _, f := range t.Fields {
			if err := d.SkipValue(f.Type); err != nil {
				return err
			}
		}
		return nil
	case *RecursiveSchema:
		return d.SkipValue(t.Actual)
	default:
		return newMalformed("cannot skip unknown schema type")
	}
}
