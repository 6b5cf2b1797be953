package wasm

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// ParseError annotates a decode failure with its section and byte offset.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("wasm: %s section at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("wasm: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// reader is a position-tracking cursor over a byte slice.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

// ReadByte implements io.ByteReader so the LEB128 helpers apply directly.
func (r *reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) len() int {
	return len(r.data) - r.pos
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || n > r.len() {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	return ReadLEB128u(r)
}

func (r *reader) u32le() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("invalid UTF-8 in name")
	}
	return string(b), nil
}

// sub returns a reader over the next n bytes and advances past them.
func (r *reader) sub(n uint32) (*reader, error) {
	b, err := r.bytes(int(n))
	if err != nil {
		return nil, err
	}
	return newReader(b), nil
}

func (r *reader) wrap(section string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ParseError); ok {
		return err
	}
	return &ParseError{Section: section, Position: r.pos, Err: err}
}

// writer accumulates section bytes.
type writer struct {
	buf []byte
}

func (w *writer) byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *writer) write(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			w.buf = append(w.buf, b)
			return
		}
		w.buf = append(w.buf, b|0x80)
	}
}

func (w *writer) u32le(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) section(id byte, body []byte) {
	w.byte(id)
	w.u32(uint32(len(body)))
	w.write(body)
}
