package flux

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Number of values or cells per output line.
const perLine = 16

// ReadRaster reads a text raster of '0' and '1' characters.
// All other characters are ignored.
func ReadRaster(r io.Reader) (Bits, error) {
	var cells Bits
	br := bufio.NewReader(r)
	for {
		c, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Bits{}, fmt.Errorf("failed to read raster: %w", err)
		}
		switch c {
		case '0':
			cells.Append(0)
		case '1':
			cells.Append(1)
		}
	}
	if cells.Ones() == 0 {
		return Bits{}, ErrNoCells
	}
	return cells, nil
}

// WriteRaster writes cells as '0'/'1' text, 16 per line.
func WriteRaster(w io.Writer, cells Bits) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < cells.Len(); i++ {
		bw.WriteByte('0' + byte(cells.At(i)))
		if i%perLine == perLine-1 {
			bw.WriteByte('\n')
		}
	}
	if cells.Len()%perLine != 0 {
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadIntervals reads integer flux intervals separated by commas or white space.
func ReadIntervals(r io.Reader) ([]uint32, error) {
	var out []uint32
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.FieldsFunc(sc.Text(), func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t' || c == '\r'
		})
		for _, f := range fields {
			v, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad flux interval %q: %w", line, f, err)
			}
			if v == 0 {
				return nil, fmt.Errorf("line %d: zero flux interval", line)
			}
			out = append(out, uint32(v))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read intervals: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoCells
	}
	return out, nil
}

// WriteIntervals writes flux intervals as comma separated text, 16 per line.
func WriteIntervals(w io.Writer, intervals []uint32) error {
	bw := bufio.NewWriter(w)
	for i, v := range intervals {
		bw.WriteString(strconv.FormatUint(uint64(v), 10))
		bw.WriteByte(',')
		if i%perLine == perLine-1 {
			bw.WriteByte('\n')
		} else {
			bw.WriteByte(' ')
		}
	}
	if len(intervals)%perLine != 0 {
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
