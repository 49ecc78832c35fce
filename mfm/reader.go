package mfm

import (
	"errors"

	"github.com/sergev/fluxtrack/flux"
)

// ErrEndOfBits is returned when a read runs past the last cell.
var ErrEndOfBits = errors.New("end of bitstream")

// Read data bytes from a cell stream at any cell offset.
// The previous data bit is carried across byte boundaries.
type Reader struct {
	mode        Mode
	cells       flux.Bits
	pos         int // Current cell position, at a clock cell
	lastDataBit int

	ClockErrors int // Clock cells that break the modulation rule
}

// Create a new reader positioned at the first cell.
func NewReader(cells flux.Bits, mode Mode) *Reader {
	return &Reader{mode: mode, cells: cells}
}

// Seek moves to a clock cell. The cell before it is taken as
// the previous data bit.
func (r *Reader) Seek(pos int) {
	r.pos = pos
	r.lastDataBit = 0
	if pos > 0 && pos <= r.cells.Len() {
		r.lastDataBit = r.cells.At(pos - 1)
	}
}

// Pos returns the current cell position.
func (r *Reader) Pos() int {
	return r.pos
}

// Read a single data bit, checking its clock cell.
func (r *Reader) readBit() (int, error) {
	if r.pos+2 > r.cells.Len() {
		return 0, ErrEndOfBits
	}
	clock := r.cells.At(r.pos)
	bit := r.cells.At(r.pos + 1)
	r.pos += 2

	expected := 1
	if r.mode == MFM && (r.lastDataBit|bit) != 0 {
		expected = 0
	}
	if clock != expected {
		r.ClockErrors++
	}
	r.lastDataBit = bit
	return bit, nil
}

// ReadByte reads 8 data bits, most significant first.
func (r *Reader) ReadByte() (byte, error) {
	var result byte
	for i := 0; i < 8; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		result = result<<1 | byte(bit)
	}
	return result, nil
}

// ReadData reads n data bytes.
func (r *Reader) ReadData(n int) ([]byte, error) {
	if r.pos+16*n > r.cells.Len() {
		return nil, ErrEndOfBits
	}
	data := make([]byte, n)
	for i := range data {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data[i] = b
	}
	return data, nil
}

// Declock returns the data cells of a stream whose first clock cell
// is at phase.
func Declock(cells flux.Bits, phase int) flux.Bits {
	var out flux.Bits
	for i := phase + 1; i < cells.Len(); i += 2 {
		out.Append(cells.At(i))
	}
	return out
}

// dataBits extracts the data byte of a raw 16-cell word.
func dataBits(word uint16) byte {
	var b byte
	for i := 14; i >= 0; i -= 2 {
		b = b<<1 | byte(word>>uint(i))&1
	}
	return b
}
