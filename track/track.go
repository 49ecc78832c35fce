package track

import (
	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/pll"
)

// MarkKind tells address marks apart.
type MarkKind int

const (
	IndexMark MarkKind = iota
	IDMark
	DataMark
)

func (k MarkKind) String() string {
	switch k {
	case IndexMark:
		return "index"
	case IDMark:
		return "id"
	}
	return "data"
}

// AddressMark is the position of a mark in the cell stream.
type AddressMark struct {
	Kind MarkKind
	Cell int  // First cell of the sync sequence
	Mark byte // Mark byte as read

	// ID marks only.
	Number int  // Sector number from the ID field, or -1 when cut short
	Bad    bool // ID field failed its CRC or was cut short
}

// Sector is one sector record parsed from a track.
type Sector struct {
	Cylinder  int // As read from the ID field
	Head      int
	Number    int
	SizeCode  int
	Data      []byte
	HeaderCRC uint16 // CRC residual over the ID field; zero when valid
	DataCRC   uint16 // CRC residual over the data field; zero when valid
	Deleted   bool   // Data field carries the deleted data mark
	Cell      int    // Cell of the ID mark
}

// OK reports whether both the ID and the data field passed their CRC.
func (s *Sector) OK() bool {
	return s.HeaderCRC == 0 && s.DataCRC == 0
}

// Track holds the result of decoding one revolution.
type Track struct {
	Cylinder int
	Head     int
	Format   Format
	Cells    flux.Bits     // Recovered bit cells
	Marks    []AddressMark // All marks in stream order
	Sectors  []Sector      // Sector records ordered by number

	ClockErrors int          // Clocking rule violations inside decoded fields
	Desyncs     []pll.Desync // Losses of clock lock
	Lost        int          // Cell where clock recovery gave up, or -1
}

// Sector returns the record of a sector number, or nil.
func (t *Track) Sector(number int) *Sector {
	for i := range t.Sectors {
		if t.Sectors[i].Number == number {
			return &t.Sectors[i]
		}
	}
	return nil
}

// Data returns the payload of the track in sector number order.
// Sectors that were not found read as zeros.
func (t *Track) Data() []byte {
	size := t.Format.SectorSize()
	out := make([]byte, t.Format.TrackSize())
	for i := range t.Sectors {
		s := &t.Sectors[i]
		if !t.Format.HasSector(s.Number) {
			continue
		}
		copy(out[(s.Number-t.Format.FirstSector)*size:][:size], s.Data)
	}
	return out
}

// IndexMarks counts index address marks.
func (t *Track) IndexMarks() int {
	n := 0
	for _, m := range t.Marks {
		if m.Kind == IndexMark {
			n++
		}
	}
	return n
}
