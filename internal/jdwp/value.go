package jdwp

import (
	"fmt"
	"strconv"
)

// Value is a value held by the target VM. There is one implementation per
// tag: the primitive types below, NullValue, and the object mirrors
// (*ObjectMirror, *ArrayMirror, *StringMirror, *ThreadMirror,
// *ThreadGroupMirror, *ClassLoaderMirror, *ClassObjectMirror).
//
// A value writes itself without its tag; containers write the tag.
type Value interface {
	Tag() Tag
	write(w *writer)
}

type (
	VoidValue    struct{}
	BooleanValue bool
	ByteValue    int8
	CharValue    uint16
	ShortValue   int16
	IntValue     int32
	LongValue    int64
	FloatValue   float32
	DoubleValue  float64
)

// NullValue is a null reference with the tag of its static kind.
type NullValue struct {
	T Tag
}

func (VoidValue) Tag() Tag    { return TagVoid }
func (BooleanValue) Tag() Tag { return TagBoolean }
func (ByteValue) Tag() Tag    { return TagByte }
func (CharValue) Tag() Tag    { return TagChar }
func (ShortValue) Tag() Tag   { return TagShort }
func (IntValue) Tag() Tag     { return TagInt }
func (LongValue) Tag() Tag    { return TagLong }
func (FloatValue) Tag() Tag   { return TagFloat }
func (DoubleValue) Tag() Tag  { return TagDouble }
func (v NullValue) Tag() Tag  { return v.T }

func (VoidValue) write(*writer)        {}
func (v BooleanValue) write(w *writer) { w.boolean(bool(v)) }
func (v ByteValue) write(w *writer)    { w.u8(uint8(v)) }
func (v CharValue) write(w *writer)    { w.u16(uint16(v)) }
func (v ShortValue) write(w *writer)   { w.u16(uint16(v)) }
func (v IntValue) write(w *writer)     { w.i32(int32(v)) }
func (v LongValue) write(w *writer)    { w.i64(int64(v)) }
func (v FloatValue) write(w *writer)   { w.f32(float32(v)) }
func (v DoubleValue) write(w *writer)  { w.f64(float64(v)) }
func (v NullValue) write(w *writer)    { w.objectID(0) }

func (VoidValue) String() string      { return "void" }
func (v BooleanValue) String() string { return strconv.FormatBool(bool(v)) }
func (v ByteValue) String() string    { return strconv.Itoa(int(v)) }
func (v CharValue) String() string    { return strconv.QuoteRune(rune(v)) }
func (v ShortValue) String() string   { return strconv.Itoa(int(v)) }
func (v IntValue) String() string     { return strconv.Itoa(int(v)) }
func (v LongValue) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v FloatValue) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
func (v DoubleValue) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}
func (NullValue) String() string { return "null" }

// IsNull reports whether v is a null reference.
func IsNull(v Value) bool {
	_, ok := v.(NullValue)
	return ok
}

// ParseValue converts text to a value assignable to a slot or field of the
// given signature. Object-typed slots accept only "null" and, for
// java.lang.String, a quoted string is rejected: strings must be created in
// the target with CreateString first.
func ParseValue(signature, text string) (Value, error) {
	if signature == "" {
		return nil, fmt.Errorf("empty signature")
	}
	tag := Tag(signature[0])
	switch tag {
	case TagBoolean:
		b, err := strconv.ParseBool(text)
		return BooleanValue(b), err
	case TagByte:
		n, err := strconv.ParseInt(text, 0, 8)
		return ByteValue(n), err
	case TagChar:
		if r := []rune(text); len(r) == 1 {
			return CharValue(r[0]), nil
		}
		n, err := strconv.ParseUint(text, 0, 16)
		return CharValue(n), err
	case TagShort:
		n, err := strconv.ParseInt(text, 0, 16)
		return ShortValue(n), err
	case TagInt:
		n, err := strconv.ParseInt(text, 0, 32)
		return IntValue(n), err
	case TagLong:
		n, err := strconv.ParseInt(text, 0, 64)
		return LongValue(n), err
	case TagFloat:
		f, err := strconv.ParseFloat(text, 32)
		return FloatValue(f), err
	case TagDouble:
		f, err := strconv.ParseFloat(text, 64)
		return DoubleValue(f), err
	case TagObject, TagArray:
		if text == "null" {
			return NullValue{T: tag}, nil
		}
		return nil, fmt.Errorf("cannot assign %q to a reference of type %s", text, signature)
	}
	return nil, fmt.Errorf("unsupported signature %s", signature)
}

// assignable reports whether v may be written to a slot or field with the
// given signature.
func assignable(signature string, v Value) bool {
	if signature == "" || v == nil {
		return false
	}
	want := Tag(signature[0])
	got := v.Tag()
	if want == TagObject || want == TagArray {
		return got.IsObject()
	}
	return want == got
}
