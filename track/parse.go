package track

import (
	"sort"

	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/mfm"
)

// Parse scans a cell stream for address marks and sector records.
//
// A sector is recorded once its ID field was read, its number belongs to
// the format, and a data mark follows within the gap window with a
// complete data field. Header and data CRC failures are kept in the record.
func Parse(cells flux.Bits, f Format, cyl, head int) *Track {
	f = f.WithDefaults()
	t := &Track{
		Cylinder: cyl,
		Head:     head,
		Format:   f,
		Cells:    cells,
		Lost:     -1,
	}

	// Cells allowed between the end of an ID field and its data mark.
	window := (f.Gap2 + f.Presync + 8) * 16

	syncs := mfm.FindSyncs(cells, f.Mode)
	r := mfm.NewReader(cells, f.Mode)
	index := make(map[int]int) // sector number -> position in t.Sectors

	for i, s := range syncs {
		switch s.Mark {
		case mfm.MarkIndex:
			t.Marks = append(t.Marks, AddressMark{Kind: IndexMark, Cell: s.Start, Mark: s.Mark})
			continue
		case mfm.MarkData, mfm.MarkDeleted:
			t.Marks = append(t.Marks, AddressMark{Kind: DataMark, Cell: s.Start, Mark: s.Mark})
			continue
		case mfm.MarkID:
		default:
			continue
		}

		mark := AddressMark{Kind: IDMark, Cell: s.Start, Mark: s.Mark, Number: -1}
		r.Seek(s.Pos)
		id, err := r.ReadData(6)
		if err != nil {
			mark.Bad = true
			t.Marks = append(t.Marks, mark)
			continue
		}
		idCRC := mfm.CRC16(f.Mode.MarkCRC(mfm.MarkID), id)
		mark.Number = int(id[2])
		mark.Bad = idCRC != 0
		t.Marks = append(t.Marks, mark)
		if !f.HasSector(mark.Number) {
			continue
		}

		dam := dataMark(syncs[i+1:], r.Pos(), window)
		if dam == nil {
			continue
		}
		size := 128 << uint(id[3]&7)
		r.Seek(dam.Pos)
		data, err := r.ReadData(size + 2)
		if err != nil {
			continue
		}

		sector := Sector{
			Cylinder:  int(id[0]),
			Head:      int(id[1]),
			Number:    mark.Number,
			SizeCode:  int(id[3]),
			Data:      data[:size],
			HeaderCRC: idCRC,
			DataCRC:   mfm.CRC16(f.Mode.MarkCRC(dam.Mark), data),
			Deleted:   dam.Mark == mfm.MarkDeleted,
			Cell:      s.Start,
		}
		if k, seen := index[sector.Number]; seen {
			// Keep the first good copy.
			if !t.Sectors[k].OK() && sector.OK() {
				t.Sectors[k] = sector
			}
			continue
		}
		index[sector.Number] = len(t.Sectors)
		t.Sectors = append(t.Sectors, sector)
	}

	t.ClockErrors = r.ClockErrors
	sort.Slice(t.Sectors, func(a, b int) bool {
		return t.Sectors[a].Number < t.Sectors[b].Number
	})
	return t
}

// dataMark returns the first data mark starting within window cells
// after from. Another ID or index mark ends the search.
func dataMark(syncs []mfm.Sync, from, window int) *mfm.Sync {
	for i := range syncs {
		s := &syncs[i]
		if s.Start < from {
			continue
		}
		if s.Start-from > window {
			return nil
		}
		switch s.Mark {
		case mfm.MarkData, mfm.MarkDeleted:
			return s
		case mfm.MarkID, mfm.MarkIndex:
			return nil
		}
	}
	return nil
}
