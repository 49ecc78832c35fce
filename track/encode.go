package track

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/mfm"
)

// ErrTrackOverflow is returned when the layout does not fit one revolution.
var ErrTrackOverflow = errors.New("track does not fit one revolution")

// Damage selects sectors to spoil while encoding, for test media.
type Damage struct {
	CorruptCRC   []int // Sector numbers whose data CRC is inverted
	CorruptIDCRC []int // Sector numbers whose ID field CRC is inverted
	Drop         []int // Sector numbers replaced by gap
}

// Encode builds the cells of a standard IBM track.
// A short payload is padded with zeros, a long one is truncated.
func Encode(f Format, cyl, head int, payload []byte) (flux.Bits, error) {
	return EncodeDamaged(f, cyl, head, payload, Damage{})
}

// EncodeDamaged is Encode with some sectors spoiled.
//
// Track layout:
//
//	┌─────┬───────┬─────┬────┬···┬───────┬──────┬────┬───────┬────┬────┬···┬──────┐
//	│gap4a│presync│Index│gap1│   │presync│ID    │gap2│presync│Data│gap3│   │fill  │
//	│     │       │Mark │    │   │       │+CRC  │    │       │+CRC│    │   │      │
//	└─────┴───────┴─────┴────┴···┴───────┴──────┴────┴───────┴────┴────┴···┴──────┘
//	                             └──────────────────repeat──────────────┘
func EncodeDamaged(f Format, cyl, head int, payload []byte, damage Damage) (flux.Bits, error) {
	f = f.WithDefaults()
	if err := f.Validate(); err != nil {
		return flux.Bits{}, err
	}
	size := f.SectorSize()
	data := make([]byte, f.TrackSize())
	copy(data, payload)

	w := mfm.NewWriter(f.Mode)
	w.WriteGap(f.Gap4a, f.GapByte)
	w.WriteGap(f.Presync, 0)
	w.WriteMark(mfm.MarkIndex)
	w.WriteGap(f.Gap1, f.GapByte)

	for _, number := range f.SectorOrder(cyl) {
		if slices.Contains(damage.Drop, number) {
			w.WriteGap(sectorLen(f), f.GapByte)
			w.WriteGap(f.Gap3, f.GapByte)
			continue
		}
		w.WriteGap(f.Presync, 0)
		id := []byte{byte(cyl), byte(head), byte(number), byte(f.SizeCode)}
		writeField(w, f.Mode, mfm.MarkID, id, slices.Contains(damage.CorruptIDCRC, number))
		w.WriteGap(f.Gap2, f.GapByte)
		w.WriteGap(f.Presync, 0)
		body := data[(number-f.FirstSector)*size:][:size]
		writeField(w, f.Mode, mfm.MarkData, body, slices.Contains(damage.CorruptCRC, number))
		w.WriteGap(f.Gap3, f.GapByte)
	}

	total := f.TrackCells()
	if w.Len() > total {
		return flux.Bits{}, fmt.Errorf("%s: %d cells of %d: %w", f.Name, w.Len(), total, ErrTrackOverflow)
	}
	w.WriteGap((total-w.Len()+15)/16, f.GapByte)
	return w.Cells().Slice(0, total), nil
}

// writeField writes a mark, the field and its CRC.
func writeField(w *mfm.Writer, mode mfm.Mode, mark byte, field []byte, corrupt bool) {
	w.WriteMark(mark)
	w.WriteData(field...)
	crc := mfm.CRC16(mode.MarkCRC(mark), field)
	if corrupt {
		crc ^= 0xffff
	}
	w.WriteData(byte(crc>>8), byte(crc))
}

// sectorLen returns the bytes from the ID presync to the data CRC.
func sectorLen(f Format) int {
	mark := 1
	if f.Mode == mfm.MFM {
		mark = 4
	}
	return 2*f.Presync + 2*mark + 6 + f.Gap2 + f.SectorSize() + 2
}
