// Package protocol implements the 24-byte binary memcache wire header:
// encoding, decoding, opcodes and status codes. It owns no socket or
// session state — callers (server package) accumulate bytes and hand
// complete headers/bodies to this package for (de)serialization.
package protocol

import "encoding/binary"

// HeaderSize is the fixed length of every request and response header.
const HeaderSize = 24

const (
	MagicRequest  byte = 0x80
	MagicResponse byte = 0x81
)

// Opcode identifies the command a request header carries.
type Opcode byte

const (
	OpGet    Opcode = 0x00
	OpSet    Opcode = 0x01
	OpDelete Opcode = 0x04
)

// Status is the wire response status code.
type Status uint16

const (
	StatusSuccess        Status = 0x0000
	StatusKeyNotFound    Status = 0x0001
	StatusKeyExists      Status = 0x0002
	StatusTooLarge       Status = 0x0003
	StatusInvalidArgs    Status = 0x0004
	StatusUnknownCommand Status = 0x0081
)

// ErrorText returns the ASCII reason string the wire carries as the error
// response body for a given status.
func ErrorText(s Status) string {
	switch s {
	case StatusKeyNotFound:
		return "Not found"
	case StatusKeyExists:
		return "Entry exists for key"
	case StatusInvalidArgs:
		return "Bad parameters"
	case StatusUnknownCommand:
		return "Unsupported command"
	case StatusTooLarge:
		return "Too large"
	default:
		return ""
	}
}

// Header is the parsed, host-usable form of the 24-byte wire header.
// Field 6 is VBucket on a request and Status on a response; both are
// exposed through VBucketOrStatus since the wire layout is identical.
type Header struct {
	Magic           byte
	Opcode          Opcode
	KeyLen          uint16
	ExtLen          uint8
	DataType        uint8
	VBucketOrStatus uint16
	BodyLen         uint32
	Opaque          uint32
	Cas             uint64
}

// Status reads VBucketOrStatus as a response status code.
func (h Header) Status() Status { return Status(h.VBucketOrStatus) }

// DecodeHeader parses the first HeaderSize bytes of buf. Callers must
// ensure len(buf) >= HeaderSize; DecodeHeader does not itself validate
// field values (extlen/keylen/bodylen bounds are opcode-specific and
// validated by the server's session layer).
func DecodeHeader(buf []byte) Header {
	_ = buf[HeaderSize-1] // bounds check hint
	return Header{
		Magic:           buf[0],
		Opcode:          Opcode(buf[1]),
		KeyLen:          binary.BigEndian.Uint16(buf[2:4]),
		ExtLen:          buf[4],
		DataType:        buf[5],
		VBucketOrStatus: binary.BigEndian.Uint16(buf[6:8]),
		BodyLen:         binary.BigEndian.Uint32(buf[8:12]),
		Opaque:          binary.BigEndian.Uint32(buf[12:16]),
		Cas:             binary.BigEndian.Uint64(buf[16:24]),
	}
}

// EncodeRequestHeader serializes h as a request header (magic 0x80).
func EncodeRequestHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	encodeHeader(buf, MagicRequest, h)
	return buf
}

// EncodeResponseHeader builds a response header that echoes req's opaque
// and cas unchanged, as every response must. extlen/keylen/bodylen
// describe the response's own body layout, which differs from the
// request's.
func EncodeResponseHeader(req Header, status Status, extlen uint8, keylen uint16, bodylen uint32) []byte {
	buf := make([]byte, HeaderSize)
	encodeHeader(buf, MagicResponse, Header{
		Opcode:          req.Opcode,
		KeyLen:          keylen,
		ExtLen:          extlen,
		DataType:        0,
		VBucketOrStatus: uint16(status),
		BodyLen:         bodylen,
		Opaque:          req.Opaque,
		Cas:             req.Cas,
	})
	return buf
}

func encodeHeader(buf []byte, magic byte, h Header) {
	buf[0] = magic
	buf[1] = byte(h.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], h.KeyLen)
	buf[4] = h.ExtLen
	buf[5] = h.DataType
	binary.BigEndian.PutUint16(buf[6:8], h.VBucketOrStatus)
	binary.BigEndian.PutUint32(buf[8:12], h.BodyLen)
	binary.BigEndian.PutUint32(buf[12:16], h.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], h.Cas)
}
