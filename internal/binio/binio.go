// Package binio reads and writes .bin vector files: a uint32 row count, a
// uint32 dimension and row-major little-endian float32 values.
package binio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ErrFormat is returned for malformed files.
var ErrFormat = errors.New("invalid .bin file")

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows int
	Dim  int
	Data []float32
}

// Row returns row i.
func (m *Matrix) Row(i int) []float32 { return m.Data[i*m.Dim : (i+1)*m.Dim] }

// Read decodes a matrix from r.
func Read(r io.Reader) (*Matrix, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	rows := binary.LittleEndian.Uint32(hdr[0:])
	dim := binary.LittleEndian.Uint32(hdr[4:])
	if dim == 0 && rows > 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrFormat)
	}
	total := uint64(rows) * uint64(dim)
	if total > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d values too large", ErrFormat, total)
	}

	raw := make([]byte, 4*total)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrFormat, err)
	}
	m := &Matrix{Rows: int(rows), Dim: int(dim), Data: make([]float32, total)}
	for i := range m.Data {
		m.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return m, nil
}

// Write encodes m to w.
func Write(w io.Writer, m *Matrix) error {
	if len(m.Data) != m.Rows*m.Dim {
		return fmt.Errorf("%w: %d values for %dx%d", ErrFormat, len(m.Data), m.Rows, m.Dim)
	}
	buf := make([]byte, 8, 8+4*len(m.Data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(m.Rows))
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.Dim))
	for _, v := range m.Data {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

// ReadFile reads a .bin file.
func ReadFile(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}

// WriteFile writes a .bin file.
func WriteFile(path string, m *Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, m); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
