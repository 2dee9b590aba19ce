// SPDX-License-Identifier: MIT

// Package wire implements the StagelinQ binary codec: big-endian integer
// primitives, UTF-16BE length-prefixed strings, and the length-prefixed
// message framing used by every non-directory channel.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/text/encoding/unicode"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// DefaultStringCap is the default maximum accepted byte length of a
// length-prefixed string payload.
const DefaultStringCap = 64 * 1024

// HardStringCap is the absolute maximum, regardless of configuration.
const HardStringCap = 10 * 1024 * 1024

// MaxFrameSize is the hard cap on a single length-prefixed message.
const MaxFrameSize = 10 * 1024 * 1024

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Reader decodes StagelinQ wire primitives from a byte stream. It tracks
// a string cap so callers can tighten limits below HardStringCap.
type Reader struct {
	r         io.Reader
	stringCap uint32
}

// NewReader wraps r with the default string cap.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, stringCap: DefaultStringCap}
}

// NewReaderWithCap wraps r with an explicit string cap (clamped to HardStringCap).
func NewReaderWithCap(r io.Reader, cap uint32) *Reader {
	if cap > HardStringCap || cap == 0 {
		cap = HardStringCap
	}
	return &Reader{r: r, stringCap: cap}
}

func (r *Reader) readFull(buf []byte) error {
	_, err := io.ReadFull(r.r, buf)
	if err == nil {
		return nil
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return xerrors.New(xerrors.KindTruncated, "wire.read", err)
	}
	return xerrors.New(xerrors.KindConnection, "wire.read", err)
}

// U16 reads a big-endian uint16.
func (r *Reader) U16() (uint16, error) {
	var buf [2]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	var buf [4]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() (uint64, error) {
	var buf [8]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// I64 reads a big-endian int64.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// F64 reads a big-endian IEEE754 double.
func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := r.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Token reads a fixed 16-byte token.
func (r *Reader) Token() (token.Token, error) {
	buf, err := r.Bytes(token.Size)
	if err != nil {
		return token.Token{}, err
	}
	return token.FromBytes(buf)
}

// Magic reads and verifies n literal bytes.
func (r *Reader) Magic(want []byte) error {
	got, err := r.Bytes(len(want))
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return xerrors.New(xerrors.KindProtocol, "wire.magic",
			fmt.Errorf("want %x, got %x", want, got))
	}
	return nil
}

// String reads a u32-length-prefixed UTF-16BE string.
func (r *Reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	if n > r.stringCap {
		return "", xerrors.New(xerrors.KindProtocol, "wire.string",
			fmt.Errorf("declared length %d exceeds cap %d", n, r.stringCap))
	}
	if n == 0 {
		return "", nil
	}
	raw, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	decoded, err := utf16be.NewDecoder().Bytes(raw)
	if err != nil {
		return "", xerrors.New(xerrors.KindProtocol, "wire.string.utf16", err)
	}
	return string(decoded), nil
}

// Writer encodes StagelinQ wire primitives to a byte buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoded payload.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// U16 writes a big-endian uint16.
func (w *Writer) U16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.buf.Write(buf[:])
}

// U32 writes a big-endian uint32.
func (w *Writer) U32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// U64 writes a big-endian uint64.
func (w *Writer) U64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	w.buf.Write(buf[:])
}

// I64 writes a big-endian int64.
func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

// F64 writes a big-endian IEEE754 double.
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// RawBytes writes b verbatim, with no length prefix.
func (w *Writer) RawBytes(b []byte) { w.buf.Write(b) }

// Token writes a fixed 16-byte token.
func (w *Writer) Token(t token.Token) { w.buf.Write(t[:]) }

// String writes a u32-length-prefixed UTF-16BE string.
func (w *Writer) String(s string) error {
	encoded, err := utf16be.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return xerrors.New(xerrors.KindProtocol, "wire.string.utf16", err)
	}
	if len(encoded) > HardStringCap {
		return xerrors.New(xerrors.KindProtocol, "wire.string",
			fmt.Errorf("encoded length %d exceeds hard cap %d", len(encoded), HardStringCap))
	}
	w.U32(uint32(len(encoded)))
	w.buf.Write(encoded)
	return nil
}

// ReadFrame reads one length-prefixed frame: a u32 byte length followed by
// that many payload bytes. It enforces MaxFrameSize and reports short
// reads as KindTruncated rather than silently discarding partial data.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, xerrors.New(xerrors.KindTruncated, "wire.frame.length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, xerrors.New(xerrors.KindProtocol, "wire.frame",
			fmt.Errorf("frame length %d exceeds cap %d", n, MaxFrameSize))
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, xerrors.New(xerrors.KindTruncated, "wire.frame.payload", err)
	}
	return payload, nil
}

// WriteFrame writes payload as a u32-length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return xerrors.New(xerrors.KindProtocol, "wire.frame",
			fmt.Errorf("frame length %d exceeds cap %d", len(payload), MaxFrameSize))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return xerrors.New(xerrors.KindConnection, "wire.frame.write", err)
	}
	if _, err := w.Write(payload); err != nil {
		return xerrors.New(xerrors.KindConnection, "wire.frame.write", err)
	}
	return nil
}
