// Package rowio provides the length-prefixed binary codec the writer
// uses for partition encoding and for the key prefix of each primary
// index record (row index entries, summary records and statistics
// carry their own codecs in their packages), and the default row
// serialization collaborator the table writer delegates partition
// encoding to. The codec itself is lifted from davidvella/xp/recordio's
// BinaryWriter/BinaryReader, generalized from a single flat record shape
// to arbitrary partition streams.
package rowio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Sizes of the fixed-width primitives this package writes, exported so
// callers can account for them when computing offsets without a dummy
// write.
const (
	Uint16Size = 2
	Uint64Size = 8
	Int64Size  = 8
)

// Writer writes binary primitives with length prefixes, little-endian,
// the way recordio.BinaryWriter does.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) Writer {
	return Writer{w: w}
}

// WriteShortBytes writes a u16 length prefix followed by b. Per the
// writer's key-size invariant, callers must ensure len(b) <= 65535
// before calling this.
func (w Writer) WriteShortBytes(b []byte) (int64, error) {
	if len(b) > 0xFFFF {
		return 0, fmt.Errorf("rowio: short bytes length %d exceeds uint16 max", len(b))
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint16(len(b))); err != nil {
		return 0, fmt.Errorf("rowio: write short length: %w", err)
	}
	n, err := w.w.Write(b)
	if err != nil {
		return Uint16Size, fmt.Errorf("rowio: write short content: %w", err)
	}
	return Uint16Size + int64(n), nil
}

// WriteBytes writes a u64 length prefix followed by b.
func (w Writer) WriteBytes(b []byte) (int64, error) {
	if err := binary.Write(w.w, binary.LittleEndian, uint64(len(b))); err != nil {
		return 0, fmt.Errorf("rowio: write bytes length: %w", err)
	}
	n, err := w.w.Write(b)
	if err != nil {
		return Uint64Size, fmt.Errorf("rowio: write bytes content: %w", err)
	}
	return Uint64Size + int64(n), nil
}

// WriteString writes a u64 length prefix followed by the string's bytes.
func (w Writer) WriteString(s string) (int64, error) {
	return w.WriteBytes([]byte(s))
}

// WriteInt64 writes a little-endian int64.
func (w Writer) WriteInt64(v int64) (int64, error) {
	if err := binary.Write(w.w, binary.LittleEndian, v); err != nil {
		return 0, fmt.Errorf("rowio: write int64: %w", err)
	}
	return Int64Size, nil
}

// WriteUint32 writes a little-endian uint32.
func (w Writer) WriteUint32(v uint32) (int64, error) {
	if err := binary.Write(w.w, binary.LittleEndian, v); err != nil {
		return 0, fmt.Errorf("rowio: write uint32: %w", err)
	}
	return 4, nil
}

// writeByte writes a single byte, used for the unit-kind tag prefixing
// each row or marker written by the default partition codec.
func (w Writer) writeByte(b byte) error {
	_, err := w.w.Write([]byte{b})
	return err
}

// Reader mirrors Writer for the read side.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) Reader {
	return Reader{r: r}
}

func (r Reader) ReadShortBytes() ([]byte, error) {
	var length uint16
	if err := binary.Read(r.r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("rowio: read short length: %w", err)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, fmt.Errorf("rowio: read short content: %w", err)
	}
	return b, nil
}

func (r Reader) ReadBytes() ([]byte, error) {
	var length uint64
	if err := binary.Read(r.r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("rowio: read bytes length: %w", err)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, fmt.Errorf("rowio: read bytes content: %w", err)
	}
	return b, nil
}

func (r Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r Reader) ReadInt64() (int64, error) {
	var v int64
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("rowio: read int64: %w", err)
	}
	return v, nil
}

func (r Reader) ReadUint32() (uint32, error) {
	var v uint32
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("rowio: read uint32: %w", err)
	}
	return v, nil
}
