package mfm

import "github.com/sergev/fluxtrack/flux"

// Raw 16-cell words of the sync bytes and marks.
const (
	SyncA1 = 0x4489 // A1 with the clock between bits 4 and 3 missing
	SyncC2 = 0x5224 // C2 with the clock between bits 3 and 2 missing

	FMMarkIndex   = 0xf77a // FC with clock D7
	FMMarkID      = 0xf57e // FE with clock C7
	FMMarkData    = 0xf56f // FB with clock C7
	FMMarkDeleted = 0xf56a // F8 with clock C7
)

// Address mark bytes.
const (
	MarkIndex   = 0xfc
	MarkID      = 0xfe
	MarkData    = 0xfb
	MarkDeleted = 0xf8
)

// Write encoded cells of a track.
type Writer struct {
	mode        Mode
	cells       flux.Bits // Output cells, clock cell first
	lastDataBit int       // Last data bit for encoding of next zero
}

// Create a new writer for the given modulation.
func NewWriter(mode Mode) *Writer {
	return &Writer{mode: mode}
}

// Write a "half" bit, which means one cell.
func (w *Writer) writeHalfBit(bit int) {
	w.cells.Append(bit)
}

// Write one data bit, which means a clock cell and a data cell.
func (w *Writer) writeBit(dataBit int) {
	switch {
	case w.mode == FM:
		w.writeHalfBit(1)
		w.writeHalfBit(dataBit)
	case dataBit != 0:
		w.writeHalfBit(0)
		w.writeHalfBit(1)
	default:
		w.writeHalfBit(w.lastDataBit ^ 1)
		w.writeHalfBit(0)
	}
	w.lastDataBit = dataBit
}

func (w *Writer) writeByte(data byte) {
	for i := 7; i >= 0; i-- {
		w.writeBit(int(data>>uint(i)) & 1)
	}
}

// writeRaw appends a 16-cell word as is. The last data cell becomes
// the previous bit of the following byte.
func (w *Writer) writeRaw(word uint16) {
	w.cells.AppendWord(uint64(word), 16)
	w.lastDataBit = int(word & 1)
}

// WriteData encodes data bytes.
func (w *Writer) WriteData(data ...byte) {
	for _, b := range data {
		w.writeByte(b)
	}
}

// WriteGap encodes n copies of a fill byte.
func (w *Writer) WriteGap(n int, fill byte) {
	for i := 0; i < n; i++ {
		w.writeByte(fill)
	}
}

// WriteMark encodes the sync bytes and an address mark.
// In MFM the index mark follows three C2, all other marks follow three A1.
// In FM the mark itself carries the missing clocks.
func (w *Writer) WriteMark(mark byte) {
	if w.mode == MFM {
		sync := uint16(SyncA1)
		if mark == MarkIndex {
			sync = SyncC2
		}
		for i := 0; i < 3; i++ {
			w.writeRaw(sync)
		}
		w.writeByte(mark)
		return
	}

	switch mark {
	case MarkIndex:
		w.writeRaw(FMMarkIndex)
	case MarkID:
		w.writeRaw(FMMarkID)
	case MarkData:
		w.writeRaw(FMMarkData)
	case MarkDeleted:
		w.writeRaw(FMMarkDeleted)
	default:
		w.writeByte(mark)
	}
}

// Cells returns the encoded cells.
func (w *Writer) Cells() flux.Bits {
	return w.cells
}

// Len returns the number of encoded cells.
func (w *Writer) Len() int {
	return w.cells.Len()
}
