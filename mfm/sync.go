package mfm

import "github.com/sergev/fluxtrack/flux"

// Sync is an address mark found in a cell stream.
type Sync struct {
	Start int  // First cell of the sync sequence
	Pos   int  // Cell following the mark byte, at a clock cell
	Mark  byte // Mark byte
}

// FindSyncs scans cells for address marks at any cell offset.
//
// MFM marks are three A1 (or C2) sync words followed by the mark byte.
// FM marks are a mark with missing clocks after a zero byte.
func FindSyncs(cells flux.Bits, mode Mode) []Sync {
	var syncs []Sync
	var history uint64

	for i := 0; i < cells.Len(); i++ {
		history = history<<1 | uint64(cells.At(i))
		if i < 31 {
			continue
		}
		word := uint16(history)

		if mode == FM {
			if uint16(history>>16) != 0xaaaa {
				continue
			}
			var mark byte
			switch word {
			case FMMarkIndex:
				mark = MarkIndex
			case FMMarkID:
				mark = MarkID
			case FMMarkData:
				mark = MarkData
			case FMMarkDeleted:
				mark = MarkDeleted
			default:
				continue
			}
			syncs = append(syncs, Sync{Start: i - 15, Pos: i + 1, Mark: mark})
			continue
		}

		if i < 63 {
			continue
		}
		switch history >> 16 {
		case SyncA1<<32 | SyncA1<<16 | SyncA1,
			SyncC2<<32 | SyncC2<<16 | SyncC2:
			syncs = append(syncs, Sync{Start: i - 63, Pos: i + 1, Mark: dataBits(word)})
		}
	}
	return syncs
}
