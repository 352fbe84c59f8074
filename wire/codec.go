// Package wire implements the length-prefixed binary primitives the SSH
// agent protocol is built from: 32-bit big-endian integers, single bytes,
// length-prefixed blobs and strings, and two's-complement multi-precision
// integers.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
)

// MaxBlobSize bounds any single length-prefixed field and any full frame
// body. It exists to stop a malformed or hostile length prefix from
// driving an allocation of unbounded size.
const MaxBlobSize = 256 * 1024

// Encoder appends SSH wire primitives to an in-memory buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Byte appends a single byte.
func (e *Encoder) Byte(b byte) *Encoder {
	e.buf = append(e.buf, b)
	return e
}

// Uint32 appends a 32-bit big-endian integer.
func (e *Encoder) Uint32(v uint32) *Encoder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// Raw appends bytes with no length prefix.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// Blob appends a uint32 length prefix followed by b. It returns an error
// if b exceeds MaxBlobSize.
func (e *Encoder) Blob(b []byte) error {
	if len(b) > MaxBlobSize {
		return agenterr.New(agenterr.TooLarge, "wire.Encoder.Blob", "blob exceeds maximum size")
	}
	e.Uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
	return nil
}

// String appends s as a length-prefixed blob.
func (e *Encoder) String(s string) error {
	return e.Blob([]byte(s))
}

// MPInt appends b as an SSH multi-precision integer: a length-prefixed,
// two's-complement, big-endian encoding with a leading zero byte inserted
// when the high bit of the first significant byte would otherwise be set.
func (e *Encoder) MPInt(b []byte) error {
	// Trim any leading zero bytes already present so the padding rule
	// below is applied against the true magnitude.
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) == 0 {
		return e.Blob(nil)
	}
	if b[0]&0x80 != 0 {
		padded := make([]byte, len(b)+1)
		copy(padded[1:], b)
		return e.Blob(padded)
	}
	return e.Blob(b)
}

// Bytes returns the accumulated buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len reports the number of bytes accumulated so far.
func (e *Encoder) Len() int { return len(e.buf) }

// Decoder reads SSH wire primitives from a fixed byte slice, advancing an
// internal cursor and returning agenterr.ShortRead once the slice is
// exhausted.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder wraps data for sequential decoding.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining reports how many bytes are left to read.
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

// Rest returns every byte not yet consumed, without advancing the cursor.
func (d *Decoder) Rest() []byte { return d.data[d.pos:] }

// Byte reads a single byte.
func (d *Decoder) Byte() (byte, error) {
	if d.Remaining() < 1 {
		return 0, agenterr.New(agenterr.ShortRead, "wire.Decoder.Byte", "unexpected end of data")
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

// Uint32 reads a 32-bit big-endian integer.
func (d *Decoder) Uint32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, agenterr.New(agenterr.ShortRead, "wire.Decoder.Uint32", "unexpected end of data")
	}
	v := binary.BigEndian.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

// Slice reads n raw bytes with no length prefix.
func (d *Decoder) Slice(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, agenterr.New(agenterr.ShortRead, "wire.Decoder.Slice", "unexpected end of data")
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Blob reads a uint32 length prefix followed by that many bytes.
func (d *Decoder) Blob() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if n > MaxBlobSize {
		return nil, agenterr.New(agenterr.TooLarge, "wire.Decoder.Blob", "blob exceeds maximum size")
	}
	return d.Slice(int(n))
}

// DiscardBlob reads and discards a length-prefixed blob without copying it.
func (d *Decoder) DiscardBlob() error {
	_, err := d.Blob()
	return err
}

// String reads a length-prefixed blob and returns it as a string.
func (d *Decoder) String() (string, error) {
	b, err := d.Blob()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MPInt reads an SSH multi-precision integer, stripping a redundant
// leading zero byte the encoder may have inserted to keep the value
// non-negative.
func (d *Decoder) MPInt() ([]byte, error) {
	b, err := d.Blob()
	if err != nil {
		return nil, err
	}
	if len(b) > 1 && b[0] == 0 && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b, nil
}

// WriteFrame writes an outer uint32 big-endian length followed by body,
// the framing every agent message uses on the wire.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxBlobSize {
		return agenterr.New(agenterr.TooLarge, "wire.WriteFrame", "frame body exceeds maximum size")
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame body from r, refusing frames
// declared larger than MaxBlobSize before allocating a buffer for them.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, agenterr.Wrap(agenterr.ShortRead, "wire.ReadFrame", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxBlobSize {
		return nil, agenterr.New(agenterr.TooLarge, "wire.ReadFrame", "frame exceeds maximum size")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, agenterr.Wrap(agenterr.ShortRead, "wire.ReadFrame", err)
	}
	return body, nil
}
