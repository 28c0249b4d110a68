// Package codec is the 8-byte versioned message header and the size
// function the stream framer uses to find message boundaries.
//
//	0       1          2       4            8
//	+-------+----------+-------+------------+---------
//	| ver   | reserved | type  | length     | payload
//	+-------+----------+-------+------------+---------
//
// All fields are in network byte order and length counts the header too.
package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/iobuf"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
)

const (
	HeaderSize = 8
	Version1   = 1
)

type Header struct {
	Version  uint8
	Reserved uint8
	Type     uint16
	Length   uint32
}

func Decode(p []byte) (Header, error) {
	if len(p) < HeaderSize {
		return Header{}, errors.Wrapf(protocol.ErrBadHeader, "short header[%d]", len(p))
	}
	return Header{
		Version:  p[0],
		Reserved: p[1],
		Type:     binary.BigEndian.Uint16(p[2:4]),
		Length:   binary.BigEndian.Uint32(p[4:8]),
	}, nil
}

// Put writes the header into the first HeaderSize bytes of p.
func (this Header) Put(p []byte) {
	p[0] = this.Version
	p[1] = this.Reserved
	binary.BigEndian.PutUint16(p[2:4], this.Type)
	binary.BigEndian.PutUint32(p[4:8], this.Length)
}

// Encode builds a version 1 message of the given type around payload.
func Encode(msgType uint16, payload []byte) []byte {
	p := make([]byte, HeaderSize+len(payload))
	Header{Version: Version1, Type: msgType, Length: uint32(len(p))}.Put(p)
	copy(p[HeaderSize:], payload)
	return p
}

// NewMessage is Encode into a buffer ready to be queued.
func NewMessage(msgType uint16, payload []byte) *iobuf.Buffer {
	return iobuf.FromBytes(Encode(msgType, payload))
}

// SetType rewrites the type field of an encoded message in place.
func SetType(p []byte, msgType uint16) error {
	if len(p) < HeaderSize {
		return errors.Wrapf(protocol.ErrBadHeader, "short header[%d]", len(p))
	}
	binary.BigEndian.PutUint16(p[2:4], msgType)
	return nil
}

// LengthField accepts headers of one version and bounded length.
type LengthField struct {
	version   uint8
	maxLength int
}

// New returns the size function for version 1 headers. maxLength <= 0
// leaves the length bounded only by the header field.
func New(maxLength int) *LengthField {
	return &LengthField{version: Version1, maxLength: maxLength}
}

func (this *LengthField) HeaderSize() int {
	return HeaderSize
}

// MessageSize returns the total message length declared by header. A
// version it does not know means the rest of the header cannot be trusted.
func (this *LengthField) MessageSize(header []byte) (int, error) {
	h, err := Decode(header)
	if err != nil {
		return 0, err
	}
	if h.Version != this.version {
		log.Infof("unknown message version[%#x]", h.Version)
		return 0, errors.Wrapf(protocol.ErrBadHeader, "version[%#x]", h.Version)
	}
	length := int(h.Length)
	if length < HeaderSize {
		return 0, errors.Wrapf(protocol.ErrBadHeader, "length[%d] shorter than header", length)
	}
	if this.maxLength > 0 && length > this.maxLength {
		return 0, errors.Wrapf(protocol.ErrMessageTooLarge, "length[%d] max[%d]", length, this.maxLength)
	}
	log.Debugf("message declared length[%d]", length)
	return length, nil
}
