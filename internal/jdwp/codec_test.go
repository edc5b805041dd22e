package jdwp

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

func TestFloatValueDecodesFromTaggedBits(t *testing.T) {
	r := newReader(nil, []byte{'F', 0x3F, 0x80, 0x00, 0x00})
	v := r.value()
	require.NoError(t, r.err)
	assert.Equal(t, FloatValue(1.0), v)
	assert.Equal(t, TagFloat, v.Tag())
	assert.Equal(t, 0, r.remaining())
}

func TestPrimitiveValuesRoundTrip(t *testing.T) {
	values := []Value{
		BooleanValue(true),
		ByteValue(-5),
		CharValue('x'),
		ShortValue(-300),
		IntValue(math.MinInt32),
		LongValue(math.MaxInt64),
		FloatValue(-2.5),
		DoubleValue(math.Pi),
		VoidValue{},
	}
	w := newWriter(fakeSizes)
	for _, v := range values {
		w.value(v)
	}
	r := newReader(nil, w.bytes())
	for _, want := range values {
		assert.Equal(t, want, r.value())
	}
	require.NoError(t, r.err)
	assert.Equal(t, 0, r.remaining())
}

func TestWriterEncodesBigEndian(t *testing.T) {
	w := newWriter(fakeSizes)
	w.i32(0x01020304)
	w.u16(0xA0B0)
	w.str("hi")
	w.id(3, 0x0A0B0C)
	assert.Equal(t, []byte{
		0x01, 0x02, 0x03, 0x04,
		0xA0, 0xB0,
		0x00, 0x00, 0x00, 0x02, 'h', 'i',
		0x0A, 0x0B, 0x0C,
	}, w.bytes())
}

func TestIdentifierWidthsFollowNegotiatedSizes(t *testing.T) {
	c, _ := offlineConn(t)
	w := newWriter(c.sizes)
	w.fieldID(0x11223344)
	w.methodID(0x55667788)
	w.objectID(0x0102030405060708)
	assert.Len(t, w.bytes(), 4+4+8)

	r := newReader(c, w.bytes())
	assert.Equal(t, FieldID(0x11223344), r.fieldID())
	assert.Equal(t, MethodID(0x55667788), r.methodID())
	assert.Equal(t, ObjectID(0x0102030405060708), r.objectID())
	require.NoError(t, r.err)
}

func TestReaderErrorIsSticky(t *testing.T) {
	r := newReader(nil, []byte{0x00, 0x01})
	assert.Equal(t, int32(0), r.i32())
	require.Error(t, r.err)
	assert.True(t, stderrors.Is(r.err, errors.ErrProtocol))

	first := r.err
	assert.Equal(t, uint8(0), r.u8())
	assert.Equal(t, "", r.str())
	assert.Same(t, first, r.err)
}

func TestReaderRejectsUnknownTags(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(r *reader)
	}{
		{"value tag", []byte{'X', 0, 0, 0, 0}, func(r *reader) { r.value() }},
		{"type tag", []byte{7}, func(r *reader) { r.typeTag() }},
		{"location type tag", []byte{9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, func(r *reader) { r.location() }},
		{"primitive as object", []byte{'I', 0, 0, 0, 1}, func(r *reader) { r.taggedObject() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := offlineConn(t)
			r := newReader(c, tt.data)
			tt.read(r)
			require.Error(t, r.err)
			assert.True(t, stderrors.Is(r.err, errors.ErrProtocol))
		})
	}
}

func TestReaderRejectsImpossibleCounts(t *testing.T) {
	r := newReader(nil, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	assert.Equal(t, 0, r.count())
	assert.Error(t, r.err)

	r = newReader(nil, []byte{0x00, 0x00, 0x10, 0x00, 0x01})
	assert.Equal(t, 0, r.count())
	assert.Error(t, r.err)
}

func TestNullLocationDecodes(t *testing.T) {
	c, _ := offlineConn(t)
	w := newWriter(c.sizes)
	w.location(Location{})
	r := newReader(c, w.bytes())
	l := r.location()
	require.NoError(t, r.err)
	assert.True(t, l.IsZero())
}

func TestObjectValuesResolveThroughCache(t *testing.T) {
	c, _ := offlineConn(t)
	w := newWriter(c.sizes)
	w.u8(uint8(TagString))
	w.objectID(42)
	w.u8(uint8(TagObject))
	w.objectID(0)
	w.u8(uint8(TagString))
	w.objectID(42)

	r := newReader(c, w.bytes())
	first := r.value()
	null := r.value()
	second := r.value()
	require.NoError(t, r.err)

	s, ok := first.(*StringMirror)
	require.True(t, ok)
	assert.Equal(t, ObjectID(42), s.ID())
	assert.Same(t, s, second)
	assert.Equal(t, NullValue{T: TagObject}, null)
	assert.True(t, IsNull(null))
}

func TestPacketHeaderLayout(t *testing.T) {
	cmdPkt := &packet{id: 7, cmd: cmdThreadReferenceName, data: []byte{0xAA}}
	assert.Equal(t, []byte{
		0, 0, 0, 12,
		0, 0, 0, 7,
		0,
		11, 1,
		0xAA,
	}, cmdPkt.encode())

	replyPkt := &packet{id: 7, flags: flagReply, errorCode: ErrInvalidThread}
	b := replyPkt.encode()
	assert.Equal(t, []byte{0, 0, 0, 11, 0, 0, 0, 7, 0x80, 0, 10}, b)

	got, err := decodePacket(b)
	require.NoError(t, err)
	assert.True(t, got.isReply())
	assert.Equal(t, ErrInvalidThread, got.errorCode)
	assert.Equal(t, uint32(7), got.id)
}

func TestDecodePacketRejectsBadLength(t *testing.T) {
	_, err := decodePacket([]byte{0, 0, 0, 20, 0, 0, 0, 1, 0, 1, 1})
	assert.True(t, stderrors.Is(err, errors.ErrProtocol))

	_, err = decodePacket([]byte{0, 0, 0, 3})
	assert.True(t, stderrors.Is(err, errors.ErrProtocol))
}

func TestSignatureNames(t *testing.T) {
	tests := []struct {
		sig  string
		name string
	}{
		{"Ljava/lang/String;", "java.lang.String"},
		{"I", "int"},
		{"[[I", "int[][]"},
		{"[Lcom/example/Main$Inner;", "com.example.Main$Inner[]"},
		{"Z", "boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			assert.Equal(t, tt.name, SignatureToName(tt.sig))
			assert.Equal(t, tt.sig, NameToSignature(tt.name))
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		sig     string
		text    string
		want    Value
		wantErr bool
	}{
		{"I", "42", IntValue(42), false},
		{"J", "-7", LongValue(-7), false},
		{"Z", "true", BooleanValue(true), false},
		{"C", "q", CharValue('q'), false},
		{"D", "1.5", DoubleValue(1.5), false},
		{"Ljava/lang/Object;", "null", NullValue{T: TagObject}, false},
		{"Ljava/lang/String;", "hello", nil, true},
		{"B", "300", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.sig+"="+tt.text, func(t *testing.T) {
			v, err := ParseValue(tt.sig, tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}
