package avro

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// RecordFieldWriter and RecordFieldReader are the JSON-only additions to
// the Encoder/Decoder capability records: Avro's JSON encoding names
// record fields and wraps non-{null,T} union branches in a single-key
// object, neither of which the binary codec has any use for. The generic
// datum reader/writer (datum.go) type-asserts for these before using them,
// so BinaryEncoder/BinaryDecoder need not implement (and do not implement)
// either interface.
type RecordFieldWriter interface {
	WriteRecordStart()
	WriteFieldName(name string)
	WriteRecordEnd()
}

type RecordFieldReader interface {
	EnterRecord() error
	NextFieldName() (string, bool, error)
	ExitRecord() error
}

// LabeledUnionWriter and LabeledUnionReader let the JSON codec express a
// union branch as its label rather than its ordinal (spec.md section 4.6:
// `{null,T}` unwraps to a bare value or null; anything else wraps as
// `{"branchLabel": value}`).
type LabeledUnionWriter interface {
	WriteUnionLabel(label string, isNull bool)
}

type LabeledUnionReader interface {
	// ReadUnionLabel reports which label is present at the cursor. wasNull
	// is true when the union was encoded as bare JSON null (only legal for
	// the null branch of a {null,T} union).
	ReadUnionLabel() (label string, wasNull bool, err error)
}

// NullPeeker lets the {null,T} union read path (datum.go) tell a bare JSON
// null from a bare non-null value without consuming it: that shape skips
// ReadUnionLabel's single-key-object unwrapping entirely (spec.md section
// 4.6, S5).
type NullPeeker interface{ PeekNull() bool }

// UnknownFieldScanner reports the keys of the record frame currently open
// that were never looked up via FieldValue, for strict-mode unknown-field
// rejection (spec.md section 4.6, S7). Must be called before ExitRecord.
type UnknownFieldScanner interface{ UnknownFieldNames() []string }

// RawJSONWriter and RawJSONReader let a logical-type Conversion's
// DirectJSON/DirectFromJSON hook attach or pull a whole JSON subtree at the
// current cursor position, bypassing the primitive wire-shape codec
// entirely (spec.md section 4.7, S4/S6: decimal's bare-number JSON form and
// any's {"avsc","content"} envelope neither project through bytes).
type RawJSONWriter interface{ WriteRawJSON(value interface{}) }

type RawJSONReader interface {
	PopRawJSON() (interface{}, error)
	PushRawJSON(value interface{})
}

// jsonFrame is one entry of the JsonDecoder's cursor stack. A decoder call
// that descends into a structure (array/map/record/union) pushes a frame
// recording where it is within that structure; ascending pops it.
type jsonFrame struct {
	kind      jsonFrameKind
	arr       []interface{}
	arrIdx    int
	mapKeys   []string
	mapVals   map[string]interface{}
	mapIdx    int
	expectKey bool
	consumed  map[string]bool // record frames only: names looked up via FieldValue
}

type jsonFrameKind uint8

const (
	frameArray jsonFrameKind = iota
	frameMap
)

// JsonDecoder implements Decoder (plus RecordFieldReader/LabeledUnionReader)
// over a value tree produced by goccy/go-json. Numbers are decoded with
// UseNumber so that longs outside float64's exact range still round-trip.
type JsonDecoder struct {
	pending []interface{} // stack of single pending values, top = next to read
	frames  []*jsonFrame
}

func NewJsonDecoder(data []byte) (*JsonDecoder, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, &MalformedError{Reason: "invalid JSON", Cause: err}
	}
	return &JsonDecoder{pending: []interface{}{root}}, nil
}

func (d *JsonDecoder) popPending() (interface{}, error) {
	if len(d.pending) == 0 {
		return nil, newMalformed("json decoder: no pending value")
	}
	v := d.pending[len(d.pending)-1]
	d.pending = d.pending[:len(d.pending)-1]
	return v, nil
}

func (d *JsonDecoder) pushPending(v interface{}) { d.pending = append(d.pending, v) }

// PopRawJSON and PushRawJSON expose the pending-value stack to a logical
// type's DirectFromJSON hook: pop pulls the next JSON subtree (string,
// json.Number, bool, nil, []interface{}, or map[string]interface{})
// unparsed; push puts one back when the hook declines.
func (d *JsonDecoder) PopRawJSON() (interface{}, error) { return d.popPending() }
func (d *JsonDecoder) PushRawJSON(v interface{})        { d.pushPending(v) }

// PeekNull reports whether the pending value is JSON null without
// consuming it.
func (d *JsonDecoder) PeekNull() bool {
	if len(d.pending) == 0 {
		return false
	}
	return d.pending[len(d.pending)-1] == nil
}

func (d *JsonDecoder) ReadNull() error {
	v, err := d.popPending()
	if err != nil {
		return err
	}
	if v != nil {
		return &TypeMismatchError{Expected: "null", Actual: fmt.Sprintf("%T", v)}
	}
	return nil
}

func (d *JsonDecoder) ReadBoolean() (bool, error) {
	v, err := d.popPending()
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeMismatchError{Expected: "boolean", Actual: fmt.Sprintf("%T", v)}
	}
	return b, nil
}

func (d *JsonDecoder) readJSONNumber() (json.Number, error) {
	v, err := d.popPending()
	if err != nil {
		return "", err
	}
	n, ok := v.(json.Number)
	if !ok {
		return "", &TypeMismatchError{Expected: "number", Actual: fmt.Sprintf("%T", v)}
	}
	return n, nil
}

func (d *JsonDecoder) ReadInt() (int32, error) {
	n, err := d.readJSONNumber()
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(string(n), 10, 32)
	if err != nil {
		return 0, &TypeMismatchError{Expected: "int", Actual: string(n)}
	}
	return int32(i), nil
}

func (d *JsonDecoder) ReadLong() (int64, error) {
	n, err := d.readJSONNumber()
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0, &TypeMismatchError{Expected: "long", Actual: string(n)}
	}
	return i, nil
}

func (d *JsonDecoder) ReadFloat() (float32, error) {
	n, err := d.readJSONNumber()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(n), 32)
	if err != nil {
		return 0, &TypeMismatchError{Expected: "float", Actual: string(n)}
	}
	return float32(f), nil
}

func (d *JsonDecoder) ReadDouble() (float64, error) {
	n, err := d.readJSONNumber()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, &TypeMismatchError{Expected: "double", Actual: string(n)}
	}
	return f, nil
}

// ReadBytes decodes Avro JSON's bytes/fixed representation. The ordinary
// form is a string whose runes are each one byte in [0, 255] (ISO-8859-1);
// a number token is accepted too, which a conversion's DirectFromJSON hook
// normally intercepts before this method is reached. An integer token
// becomes its minimal big-endian two's-complement bytes (the big-integer
// wire form); a token with a fraction or exponent is returned as the bytes
// of its literal text, with no scale attached.
func (d *JsonDecoder) ReadBytes() ([]byte, error) {
	v, err := d.popPending()
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case string:
		out := make([]byte, 0, len(val))
		for _, r := range val {
			if r > 0xff {
				return nil, newMalformed("byte string contains a rune outside Latin-1")
			}
			out = append(out, byte(r))
		}
		return out, nil
	case json.Number:
		if i, ok := new(big.Int).SetString(val.String(), 10); ok {
			return twosComplementBytes(i), nil
		}
		return []byte(val.String()), nil
	default:
		return nil, &TypeMismatchError{Expected: "bytes", Actual: fmt.Sprintf("%T", v)}
	}
}

func (d *JsonDecoder) ReadString() (string, error) {
	if len(d.frames) > 0 {
		top := d.frames[len(d.frames)-1]
		if top.kind == frameMap && top.expectKey {
			if top.mapIdx >= len(top.mapKeys) {
				return "", newMalformed("json decoder: map key requested past end")
			}
			key := top.mapKeys[top.mapIdx]
			top.expectKey = false
			d.pushPending(top.mapVals[key])
			return key, nil
		}
	}
	v, err := d.popPending()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeMismatchError{Expected: "string", Actual: fmt.Sprintf("%T", v)}
	}
	return s, nil
}

func (d *JsonDecoder) ReadFixed(size int) ([]byte, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, newMalformed(fmt.Sprintf("fixed size mismatch: want %d got %d", size, len(b)))
	}
	return b, nil
}

func (d *JsonDecoder) ReadEnum() (int, error) {
	return 0, newMalformed("ReadEnum: JSON enum resolution requires the schema, use ReadEnumSymbol")
}

// ReadEnumSymbol reads the JSON string naming an enum symbol; the datum
// reader looks up its ordinal against the relevant EnumSchema.
func (d *JsonDecoder) ReadEnumSymbol() (string, error) { return d.ReadString() }

func (d *JsonDecoder) ReadBlockCount() (int64, error) {
	if len(d.frames) == 0 {
		return 0, newMalformed("json decoder: no open array/map")
	}
	top := d.frames[len(d.frames)-1]
	switch top.kind {
	case frameArray:
		if top.arrIdx >= len(top.arr) {
			d.frames = d.frames[:len(d.frames)-1]
			return 0, nil
		}
		remaining := int64(len(top.arr) - top.arrIdx)
		for i := len(top.arr) - 1; i >= top.arrIdx; i-- {
			d.pushPending(top.arr[i])
		}
		top.arrIdx = len(top.arr)
		return remaining, nil
	case frameMap:
		if top.mapIdx >= len(top.mapKeys) {
			d.frames = d.frames[:len(d.frames)-1]
			return 0, nil
		}
		top.expectKey = true
		return 1, nil
	default:
		return 0, newMalformed("json decoder: unknown frame kind")
	}
}

// EnterArray and EnterMap push a new frame sourced from the current
// pending value; the datum reader calls these before the first
// ReadBlockCount of a collection instead of relying on block byte counts
// (JSON has no binary framing to skip).
func (d *JsonDecoder) EnterArray() error {
	v, err := d.popPending()
	if err != nil {
		return err
	}
	arr, ok := v.([]interface{})
	if !ok {
		return &TypeMismatchError{Expected: "array", Actual: fmt.Sprintf("%T", v)}
	}
	d.frames = append(d.frames, &jsonFrame{kind: frameArray, arr: arr})
	return nil
}

func (d *JsonDecoder) EnterMap() error {
	v, err := d.popPending()
	if err != nil {
		return err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return &TypeMismatchError{Expected: "map", Actual: fmt.Sprintf("%T", v)}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	d.frames = append(d.frames, &jsonFrame{kind: frameMap, mapKeys: keys, mapVals: m, mapIdx: 0})
	return nil
}

// MapValueConsumed advances past the value half of a map entry once the
// datum reader finishes decoding it; called by the generic datum reader
// right after it reads a map entry's value.
func (d *JsonDecoder) MapValueConsumed() {
	if len(d.frames) == 0 {
		return
	}
	top := d.frames[len(d.frames)-1]
	if top.kind == frameMap {
		top.mapIdx++
	}
}

func (d *JsonDecoder) ReadUnionIndex() (int, error) {
	return 0, newMalformed("ReadUnionIndex: JSON union resolution requires labels, use ReadUnionLabel")
}

// ReadUnionLabel implements LabeledUnionReader for a union with no {null,T}
// unwrap shape (spec.md section 4.6): it appears as `{"branchLabel":
// value}`, or bare null if the branch at hand happens to be a lone null
// among three-plus branches. The {null,T} unwrap itself (bare null or bare
// T, never wrapped) is handled by the caller via NullPeeker before
// ReadUnionLabel is ever reached for that shape.
func (d *JsonDecoder) ReadUnionLabel() (string, bool, error) {
	v, err := d.popPending()
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "null", true, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return "", false, &UnionBranchError{Reason: "union value must be null or a single-key object"}
	}
	for k, inner := range m {
		d.pushPending(inner)
		return k, false, nil
	}
	return "", false, newMalformed("unreachable")
}

func (d *JsonDecoder) EnterRecord() error {
	v, err := d.popPending()
	if err != nil {
		return err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return &TypeMismatchError{Expected: "record", Actual: fmt.Sprintf("%T", v)}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	d.frames = append(d.frames, &jsonFrame{kind: frameMap, mapKeys: keys, mapVals: m})
	return nil
}

// NextFieldName returns the next JSON key of the current record frame, in
// the frame's own key order, and advances past it. The datum reader does
// not call it: it looks reader fields up by name (FieldValue) and finds the
// leftover keys with UnknownFieldNames.
func (d *JsonDecoder) NextFieldName() (string, bool, error) {
	if len(d.frames) == 0 {
		return "", false, newMalformed("json decoder: no open record")
	}
	top := d.frames[len(d.frames)-1]
	if top.mapIdx >= len(top.mapKeys) {
		return "", false, nil
	}
	name := top.mapKeys[top.mapIdx]
	top.mapIdx++
	return name, true, nil
}

// FieldValue looks up a field by name within the current record frame
// without disturbing NextFieldName's scan cursor, and pushes it as the
// pending value for the next Read* call. ok is false when the field is
// absent (the caller must then fall back to the schema default).
func (d *JsonDecoder) FieldValue(name string) (ok bool) {
	if len(d.frames) == 0 {
		return false
	}
	top := d.frames[len(d.frames)-1]
	v, present := top.mapVals[name]
	if !present {
		return false
	}
	if top.consumed == nil {
		top.consumed = make(map[string]bool, len(top.mapVals))
	}
	top.consumed[name] = true
	d.pushPending(v)
	return true
}

// UnknownFieldNames implements UnknownFieldScanner: the JSON keys of the
// currently open record frame that no reader field ever claimed via
// FieldValue. Must run before ExitRecord pops the frame.
func (d *JsonDecoder) UnknownFieldNames() []string {
	if len(d.frames) == 0 {
		return nil
	}
	top := d.frames[len(d.frames)-1]
	var out []string
	for _, k := range top.mapKeys {
		if !top.consumed[k] {
			out = append(out, k)
		}
	}
	return out
}

func (d *JsonDecoder) ExitRecord() error {
	if len(d.frames) == 0 {
		return newMalformed("json decoder: no open record to exit")
	}
	d.frames = d.frames[:len(d.frames)-1]
	return nil
}

// SkipValue discards one value of schema s from the current cursor
// position without materializing it.
func (d *JsonDecoder) SkipValue(s Schema) error {
	switch t := s.(type) {
	case *RecordSchema:
		if err := d.EnterRecord(); err != nil {
			return err
		}
		for _, f := range t.Fields {
			if d.FieldValue(f.Name) {
				if err := d.SkipValue(f.Type); err != nil {
					return err
				}
			}
		}
		return d.ExitRecord()
	case *ArraySchema:
		if err := d.EnterArray(); err != nil {
			return err
		}
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
		if err := d.EnterMap(); err != nil {
			return err
		}
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
				d.MapValueConsumed()
			}
		}
	case *UnionSchema:
		label, wasNull, err := d.ReadUnionLabel()
		if err != nil {
			return err
		}
		if wasNull {
			return nil
		}
		for _, branch := range t.Types {
			if BranchLabel(branch) == label {
				return d.SkipValue(branch)
			}
		}
		return newMalformed("unknown union branch while skipping: " + label)
	case *RecursiveSchema:
		return d.SkipValue(t.Actual)
	case *FixedSchema:
		_, err := d.ReadFixed(t.Size)
		return err
	case *EnumSchema:
		_, err := d.ReadEnumSymbol()
		return err
	default:
		_, err := d.popPending()
		return err
	}
}

// jsonContainer is one still-open array/map/record/union-wrapper the
// encoder is accumulating. It is not attached to its parent until Close
// produces its finished value, so arrays and maps never need a pointer
// placeholder patched in after the fact.
type jsonContainer struct {
	arr     []interface{}
	m       map[string]interface{}
	isArray bool
}

// JsonEncoder builds a goccy/go-json-serializable value tree while the
// datum writer drives it, emitting the final document in one Marshal call
// once the top-level value is complete (see the Build method).
type JsonEncoder struct {
	stack []*jsonContainer
	keys  []string // pending field/map key for the next value emitted into a map container
	root  interface{}
	err   error
}

func NewJsonEncoder() *JsonEncoder { return &JsonEncoder{} }

func (e *JsonEncoder) Error() error { return e.err }

// Build returns the accumulated document serialized via goccy/go-json.
func (e *JsonEncoder) Build() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return json.Marshal(e.root)
}

// emit attaches a finished value to whatever container is currently open,
// or sets it as the document root if nothing is open yet.
func (e *JsonEncoder) emit(v interface{}) {
	if e.err != nil {
		return
	}
	if len(e.stack) == 0 {
		e.root = v
		return
	}
	top := e.stack[len(e.stack)-1]
	if top.isArray {
		top.arr = append(top.arr, v)
		return
	}
	if len(e.keys) == 0 {
		e.err = newMalformed("json encoder: map/record value with no pending key")
		return
	}
	key := e.keys[len(e.keys)-1]
	e.keys = e.keys[:len(e.keys)-1]
	top.m[key] = v
}

func (e *JsonEncoder) open(c *jsonContainer) { e.stack = append(e.stack, c) }

// close pops the current container and emits its finished value into
// whatever now becomes the top of the stack (or the document root).
func (e *JsonEncoder) close() {
	if len(e.stack) == 0 {
		e.err = newMalformed("json encoder: close with empty stack")
		return
	}
	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	if top.isArray {
		e.emit(top.arr)
	} else {
		e.emit(top.m)
	}
}

func (e *JsonEncoder) WriteNull()            { e.emit(nil) }
func (e *JsonEncoder) WriteBoolean(v bool)   { e.emit(v) }
func (e *JsonEncoder) WriteInt(v int32)      { e.emit(int64(v)) }
func (e *JsonEncoder) WriteLong(v int64)     { e.emit(v) }
func (e *JsonEncoder) WriteFloat(v float32)  { e.emit(float64(v)) }
func (e *JsonEncoder) WriteDouble(v float64) { e.emit(v) }

func (e *JsonEncoder) WriteBytes(v []byte) {
	var sb strings.Builder
	for _, b := range v {
		sb.WriteRune(rune(b))
	}
	e.emit(sb.String())
}

// WriteRawJSON implements RawJSONWriter: it attaches value (normally
// already JSON-shaped, e.g. a json.Number or a map built by a DirectJSON
// hook) exactly where an ordinary Write* call would land.
func (e *JsonEncoder) WriteRawJSON(v interface{}) { e.emit(v) }

func (e *JsonEncoder) WriteString(v string) { e.emit(v) }
func (e *JsonEncoder) WriteFixed(v []byte)  { e.WriteBytes(v) }

// WriteEnum is unused by the JSON path; the datum writer calls
// WriteEnumSymbol instead, since JSON represents enums by name.
func (e *JsonEncoder) WriteEnum(index int) { e.err = newMalformed("WriteEnum: use WriteEnumSymbol for JSON") }

func (e *JsonEncoder) WriteEnumSymbol(symbol string) { e.emit(symbol) }

func (e *JsonEncoder) WriteArrayStart() {
	e.open(&jsonContainer{arr: make([]interface{}, 0), isArray: true})
}
func (e *JsonEncoder) WriteArrayBlock(count int64) {}
func (e *JsonEncoder) WriteArrayEnd()              { e.close() }

func (e *JsonEncoder) WriteMapStart() {
	e.open(&jsonContainer{m: make(map[string]interface{})})
}
func (e *JsonEncoder) WriteMapBlock(count int64) {}
func (e *JsonEncoder) WriteMapEnd()              { e.close() }

func (e *JsonEncoder) WriteMapKey(key string) { e.keys = append(e.keys, key) }

func (e *JsonEncoder) WriteUnionIndex(index int) {
	e.err = newMalformed("WriteUnionIndex: use WriteUnionLabel for JSON")
}

// WriteUnionLabel opens the `{"branchLabel": ...}` wrapper object for a
// non-null branch, or emits a bare null directly. CloseUnionLabel must be
// called after the branch value has been written, mirroring
// WriteMapStart/WriteMapEnd.
func (e *JsonEncoder) WriteUnionLabel(label string, isNull bool) {
	if isNull {
		e.emit(nil)
		return
	}
	e.open(&jsonContainer{m: make(map[string]interface{}, 1)})
	e.keys = append(e.keys, label)
}

func (e *JsonEncoder) CloseUnionLabel(isNull bool) {
	if isNull {
		return
	}
	e.close()
}

func (e *JsonEncoder) WriteRecordStart() {
	e.open(&jsonContainer{m: make(map[string]interface{})})
}
func (e *JsonEncoder) WriteFieldName(name string) { e.keys = append(e.keys, name) }
func (e *JsonEncoder) WriteRecordEnd()             { e.close() }
