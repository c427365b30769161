package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrUnknownKind is returned by Decode for a tag outside the known set.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMalformed is returned by Decode when a field cannot be read or
	// bytes are left over after the body.
	ErrMalformed = errors.New("malformed frame")
)

// Encode serializes msg into a frame: the 2-byte kind followed by the body.
func Encode(msg Message) []byte {
	w := &writer{buf: make([]byte, 0, 32)}
	w.uint16(uint16(msg.Kind()))
	msg.encode(w)
	return w.buf
}

// Decode parses a frame produced by Encode (or by the relay).
func Decode(frame []byte) (Message, error) {
	if len(frame) < TagSize {
		return nil, fmt.Errorf("%w: frame too short: %d bytes (need at least %d)", ErrMalformed, len(frame), TagSize)
	}

	kind := Kind(binary.BigEndian.Uint16(frame[:TagSize]))
	msg := newMessage(kind)
	if msg == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(kind))
	}

	r := &reader{buf: frame[TagSize:]}
	if err := msg.decode(r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if n := r.remaining(); n != 0 {
		return nil, fmt.Errorf("decode %s: %w: %d trailing bytes", kind, ErrMalformed, n)
	}
	return msg, nil
}

// ---------------------------------------------------------------------------
// writer
// ---------------------------------------------------------------------------

// writer appends big-endian primitives to a growing buffer.
type writer struct {
	buf []byte
}

func (w *writer) uint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) int32(v int32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }

func (w *writer) bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) blob(b []byte) {
	w.int32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) string(s string) { w.blob([]byte(s)) }

func (w *writer) uint16s(vs []uint16) {
	w.int32(int32(len(vs)))
	for _, v := range vs {
		w.uint16(v)
	}
}

// ---------------------------------------------------------------------------
// reader
// ---------------------------------------------------------------------------

// reader consumes big-endian primitives. Every method fails with
// ErrMalformed instead of reading past the end of the buffer.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, r.off, r.remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) int32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *reader) bool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: invalid bool byte 0x%02x", ErrMalformed, b[0])
}

// length reads an int32 length prefix and checks it against the bytes left.
func (r *reader) length(elemSize int) (int, error) {
	n, err := r.int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	if int(n)*elemSize > r.remaining() {
		return 0, fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrMalformed, n, r.remaining())
	}
	return int(n), nil
}

func (r *reader) blob() ([]byte, error) {
	n, err := r.length(1)
	if err != nil {
		return nil, err
	}
	b, _ := r.take(n)
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *reader) string() (string, error) {
	b, err := r.blob()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrMalformed)
	}
	return string(b), nil
}

func (r *reader) uint16s() ([]uint16, error) {
	n, err := r.length(2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i], _ = r.uint16()
	}
	return out, nil
}
