package jdwp

import (
	"encoding/binary"
	"math"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

// writer appends big-endian protocol primitives to a payload.
type writer struct {
	buf   []byte
	sizes IDSizes
}

func newWriter(sizes IDSizes) *writer {
	return &writer{sizes: sizes}
}

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) i32(v int32)  { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }
func (w *writer) i64(v int64)  { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) }
func (w *writer) f32(v float32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, math.Float32bits(v))
}
func (w *writer) f64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *writer) str(s string) {
	w.i32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// id writes the low n bytes of v, big-endian.
func (w *writer) id(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.buf = append(w.buf, byte(v>>(8*uint(i))))
	}
}

func (w *writer) objectID(v ObjectID)         { w.id(w.sizes.ObjectIDSize, uint64(v)) }
func (w *writer) refTypeID(v ReferenceTypeID) { w.id(w.sizes.ReferenceTypeIDSize, uint64(v)) }
func (w *writer) methodID(v MethodID)         { w.id(w.sizes.MethodIDSize, uint64(v)) }
func (w *writer) fieldID(v FieldID)           { w.id(w.sizes.FieldIDSize, uint64(v)) }
func (w *writer) frameID(v FrameID)           { w.id(w.sizes.FrameIDSize, uint64(v)) }

func (w *writer) location(l Location) {
	w.u8(uint8(l.TypeTag))
	var id ReferenceTypeID
	if l.Type != nil {
		id = l.Type.id
	}
	w.refTypeID(id)
	w.methodID(l.MethodID)
	w.i64(int64(l.Index))
}

// value writes a tagged value.
func (w *writer) value(v Value) {
	w.u8(uint8(v.Tag()))
	v.write(w)
}

// reader consumes big-endian protocol primitives from a payload. The first
// failure is sticky: later reads return zero values and err keeps the cause.
type reader struct {
	buf  []byte
	off  int
	conn *Conn
	err  error
}

func newReader(c *Conn, b []byte) *reader {
	return &reader{buf: b, conn: c}
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.fail(errors.ProtocolError("short read: need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) u8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) boolean() bool { return r.u8() != 0 }

func (r *reader) u16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) i32() int32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) i64() int64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *reader) f32() float32 { return math.Float32frombits(uint32(r.i32())) }
func (r *reader) f64() float64 { return math.Float64frombits(uint64(r.i64())) }

// count reads a non-negative int used as a repetition count.
func (r *reader) count() int {
	n := r.i32()
	if n < 0 {
		r.fail(errors.ProtocolError("negative count %d", n))
		return 0
	}
	if int(n) > r.remaining() {
		// Every repeated element is at least one byte.
		r.fail(errors.ProtocolError("count %d exceeds remaining %d bytes", n, r.remaining()))
		return 0
	}
	return int(n)
}

func (r *reader) str() string {
	n := r.i32()
	if n < 0 {
		r.fail(errors.ProtocolError("negative string length %d", n))
		return ""
	}
	return string(r.next(int(n)))
}

func (r *reader) id(n int) uint64 {
	b := r.next(n)
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (r *reader) objectID() ObjectID { return ObjectID(r.id(r.conn.sizes.ObjectIDSize)) }
func (r *reader) refTypeID() ReferenceTypeID {
	return ReferenceTypeID(r.id(r.conn.sizes.ReferenceTypeIDSize))
}
func (r *reader) methodID() MethodID { return MethodID(r.id(r.conn.sizes.MethodIDSize)) }
func (r *reader) fieldID() FieldID   { return FieldID(r.id(r.conn.sizes.FieldIDSize)) }
func (r *reader) frameID() FrameID   { return FrameID(r.id(r.conn.sizes.FrameIDSize)) }

func (r *reader) tag() Tag {
	t := Tag(r.u8())
	if r.err == nil && !t.Valid() {
		r.fail(errors.ProtocolError("unknown value tag %d", uint8(t)))
	}
	return t
}

func (r *reader) typeTag() TypeTag {
	t := TypeTag(r.u8())
	if r.err != nil {
		return 0
	}
	switch t {
	case TypeTagClass, TypeTagInterface, TypeTagArray:
		return t
	}
	r.fail(errors.ProtocolError("unknown type tag %d", uint8(t)))
	return 0
}

// typeRef reads a type tag followed by a reference type ID.
func (r *reader) typeRef() *TypeMirror {
	tag := r.typeTag()
	id := r.refTypeID()
	if r.err != nil {
		return nil
	}
	return r.conn.cache.typeMirror(tag, id)
}

func (r *reader) thread() *ThreadMirror {
	id := r.objectID()
	if r.err != nil || id == 0 {
		return nil
	}
	return r.conn.cache.Resolve(KindThread, uint64(id)).(*ThreadMirror)
}

// location reads a code location. An all-zero location (type tag 0) is the
// protocol's "no location", used for uncaught exceptions.
func (r *reader) location() Location {
	var l Location
	l.TypeTag = TypeTag(r.u8())
	if r.err == nil && l.TypeTag != 0 && l.TypeTag != TypeTagClass && l.TypeTag != TypeTagInterface && l.TypeTag != TypeTagArray {
		r.fail(errors.ProtocolError("unknown type tag %d in location", uint8(l.TypeTag)))
	}
	id := r.refTypeID()
	l.MethodID = r.methodID()
	l.Index = uint64(r.i64())
	if r.err == nil && id != 0 {
		l.Type = r.conn.cache.typeMirror(l.TypeTag, id)
	}
	return l
}

// value reads a tagged value.
func (r *reader) value() Value {
	return r.untagged(r.tag())
}

// untagged reads a value whose tag is known from context.
func (r *reader) untagged(t Tag) Value {
	if r.err != nil {
		return nil
	}
	switch t {
	case TagVoid:
		return VoidValue{}
	case TagBoolean:
		return BooleanValue(r.boolean())
	case TagByte:
		return ByteValue(int8(r.u8()))
	case TagChar:
		return CharValue(r.u16())
	case TagShort:
		return ShortValue(int16(r.u16()))
	case TagInt:
		return IntValue(r.i32())
	case TagLong:
		return LongValue(r.i64())
	case TagFloat:
		return FloatValue(r.f32())
	case TagDouble:
		return DoubleValue(r.f64())
	}
	if !t.IsObject() {
		r.fail(errors.ProtocolError("unknown value tag %d", uint8(t)))
		return nil
	}
	id := r.objectID()
	if r.err != nil {
		return nil
	}
	if id == 0 {
		return NullValue{T: t}
	}
	return r.conn.cache.Resolve(kindForTag(t), uint64(id)).(Value)
}

// taggedObject reads a tag followed by an object ID.
func (r *reader) taggedObject() Value {
	t := r.tag()
	if r.err == nil && !t.IsObject() {
		r.fail(errors.ProtocolError("tag %v is not an object tag", t))
		return nil
	}
	return r.untagged(t)
}
