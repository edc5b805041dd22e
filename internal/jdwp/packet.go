package jdwp

import (
	"encoding/binary"
	"fmt"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

const (
	headerSize = 11
	flagReply  = uint8(0x80)
)

// packet is one framed protocol message. Command packets carry cmd; replies
// carry errorCode.
type packet struct {
	id        uint32
	flags     uint8
	cmd       cmd
	errorCode ErrorCode
	data      []byte
}

func (p *packet) isReply() bool {
	return p.flags&flagReply != 0
}

func (p *packet) String() string {
	if p.isReply() {
		return fmt.Sprintf("reply{id: %d, error: %v, len: %d}", p.id, p.errorCode, len(p.data))
	}
	return fmt.Sprintf("command{id: %d, cmd: %v, len: %d}", p.id, p.cmd, len(p.data))
}

// encode returns the packet including its length prefix.
func (p *packet) encode() []byte {
	b := make([]byte, headerSize, headerSize+len(p.data))
	binary.BigEndian.PutUint32(b[0:4], uint32(headerSize+len(p.data)))
	binary.BigEndian.PutUint32(b[4:8], p.id)
	b[8] = p.flags
	if p.isReply() {
		binary.BigEndian.PutUint16(b[9:11], uint16(p.errorCode))
	} else {
		b[9] = uint8(p.cmd.set)
		b[10] = uint8(p.cmd.id)
	}
	return append(b, p.data...)
}

// decodePacket parses a complete packet, length prefix included.
func decodePacket(b []byte) (*packet, error) {
	if len(b) < headerSize {
		return nil, errors.ProtocolError("packet of %d bytes is shorter than the header", len(b))
	}
	length := binary.BigEndian.Uint32(b[0:4])
	if int(length) != len(b) {
		return nil, errors.ProtocolError("packet length field %d does not match %d bytes read", length, len(b))
	}
	p := &packet{
		id:    binary.BigEndian.Uint32(b[4:8]),
		flags: b[8],
		data:  b[headerSize:],
	}
	if p.isReply() {
		p.errorCode = ErrorCode(binary.BigEndian.Uint16(b[9:11]))
	} else {
		p.cmd = cmd{cmdSet(b[9]), cmdID(b[10])}
	}
	return p, nil
}
