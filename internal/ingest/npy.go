package ingest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
)

// npyMagic is the NumPy array file magic string, followed by version 1.0.
var npyMagic = []byte("\x93NUMPY\x01\x00")

// WriteNPY writes a rows x cols float32 matrix as a NumPy .npy v1.0 file
// ('<f4', C order). Plain numeric data only, readable with numpy.load; no
// object serialization is involved.
func WriteNPY(path string, rows [][]float32, cols int) error {
	for i, row := range rows {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(rows), cols)
	// Pad with spaces so the data section starts on a 64-byte boundary,
	// terminated by a newline as the format requires.
	total := len(npyMagic) + 2 + len(header) + 1
	pad := (64 - total%64) % 64
	for i := 0; i < pad; i++ {
		header += " "
	}
	header += "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := w.WriteString(header); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, row := range rows {
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

var npyShapePattern = regexp.MustCompile(`'shape': \((\d+), (\d+)\)`)

// ReadNPY reads a matrix previously written by WriteNPY. It understands only
// the '<f4' C-order layout this package produces.
func ReadNPY(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if len(data) < len(npyMagic)+2 || string(data[:len(npyMagic)]) != string(npyMagic) {
		return nil, fmt.Errorf("%s is not an npy v1.0 file", path)
	}

	headerLen := int(binary.LittleEndian.Uint16(data[len(npyMagic):]))
	headerEnd := len(npyMagic) + 2 + headerLen
	if len(data) < headerEnd {
		return nil, fmt.Errorf("%s: truncated header", path)
	}
	header := string(data[len(npyMagic)+2 : headerEnd])

	m := npyShapePattern.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("%s: unsupported npy header: %s", path, header)
	}
	rows, _ := strconv.Atoi(m[1])
	cols, _ := strconv.Atoi(m[2])

	want := headerEnd + rows*cols*4
	if len(data) != want {
		return nil, fmt.Errorf("%s: expected %d bytes, got %d", path, want, len(data))
	}

	matrix := make([][]float32, rows)
	off := headerEnd
	for i := 0; i < rows; i++ {
		row := make([]float32, cols)
		for j := 0; j < cols; j++ {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		matrix[i] = row
	}
	return matrix, nil
}
