package track

import (
	"fmt"
	"time"

	"github.com/sergev/fluxtrack/mfm"
)

// Format describes the layout of every track of a disk.
type Format struct {
	Name        string
	Mode        mfm.Mode
	Cylinders   int
	Heads       int
	Sectors     int // Sectors per track
	FirstSector int // Number of the first sector, usually 1
	SizeCode    int // N: sector size is 128 << N
	Interleave  int // Physical distance between consecutive sectors
	Skew        int // Rotation of the sector order per cylinder

	Gap1    int  // After the index mark
	Gap2    int  // Between ID field and data field
	Gap3    int  // After the data field
	Gap4a   int  // Before the index mark
	Presync int  // Zero bytes before each sync
	GapByte byte // Gap fill value

	Clock      time.Duration // Bit cell period
	Revolution time.Duration // Time per revolution
}

// Standard gap lengths, indexed by size code for gap3.
var (
	mfmGap3 = []int{32, 54, 84, 116}
	fmGap3  = []int{27, 42, 58, 138}
)

// WithDefaults fills unset gaps from the standard IBM tables.
func (f Format) WithDefaults() Format {
	gap1, gap2, gap4a, presync, fill, gap3 := 50, 22, 80, 12, byte(0x4e), mfmGap3
	if f.Mode == mfm.FM {
		gap1, gap2, gap4a, presync, fill, gap3 = 26, 11, 40, 6, 0xff, fmGap3
	}
	if f.Gap1 == 0 {
		f.Gap1 = gap1
	}
	if f.Gap2 == 0 {
		f.Gap2 = gap2
	}
	if f.Gap3 == 0 {
		n := f.SizeCode
		if n >= len(gap3) {
			n = len(gap3) - 1
		}
		if n >= 0 {
			f.Gap3 = gap3[n]
		}
	}
	if f.Gap4a == 0 {
		f.Gap4a = gap4a
	}
	if f.Presync == 0 {
		f.Presync = presync
	}
	if f.GapByte == 0 {
		f.GapByte = fill
	}
	if f.Interleave == 0 {
		f.Interleave = 1
	}
	if f.FirstSector == 0 && f.Sectors > 0 {
		f.FirstSector = 1
	}
	return f
}

// Validate checks that the format can describe a track.
func (f Format) Validate() error {
	switch {
	case f.Sectors <= 0:
		return fmt.Errorf("format %s: sector count %d", f.Name, f.Sectors)
	case f.SizeCode < 0 || f.SizeCode > 6:
		return fmt.Errorf("format %s: size code %d", f.Name, f.SizeCode)
	case f.FirstSector < 0 || f.FirstSector+f.Sectors > 256:
		return fmt.Errorf("format %s: sector numbers %d..%d", f.Name, f.FirstSector, f.FirstSector+f.Sectors-1)
	case f.Interleave < 1 || (f.Interleave >= f.Sectors && f.Sectors > 1):
		return fmt.Errorf("format %s: interleave %d", f.Name, f.Interleave)
	case f.Skew < 0:
		return fmt.Errorf("format %s: skew %d", f.Name, f.Skew)
	case f.Clock <= 0:
		return fmt.Errorf("format %s: clock %v", f.Name, f.Clock)
	case f.Revolution < f.Clock:
		return fmt.Errorf("format %s: revolution %v", f.Name, f.Revolution)
	}
	return nil
}

// SectorSize returns the data field length in bytes.
func (f Format) SectorSize() int {
	return 128 << uint(f.SizeCode)
}

// TrackSize returns the payload of one track in bytes.
func (f Format) TrackSize() int {
	return f.Sectors * f.SectorSize()
}

// TrackCells returns the number of bit cells in one revolution.
func (f Format) TrackCells() int {
	return int(f.Revolution / f.Clock)
}

// HasSector reports whether a sector number belongs to the track.
func (f Format) HasSector(number int) bool {
	return number >= f.FirstSector && number < f.FirstSector+f.Sectors
}

// SectorOrder returns sector numbers in physical order on a cylinder.
func (f Format) SectorOrder(cyl int) []int {
	n := f.Sectors
	order := make([]int, n)
	used := make([]bool, n)
	step := f.Interleave
	if step < 1 {
		step = 1
	}
	pos := 0
	if n > 0 {
		pos = (cyl * f.Skew) % n
	}
	for i := 0; i < n; i++ {
		for used[pos] {
			pos = (pos + 1) % n
		}
		used[pos] = true
		order[pos] = f.FirstSector + i
		pos = (pos + step) % n
	}
	return order
}

func (f Format) String() string {
	return fmt.Sprintf("%s: %s, %d/%d/%d, %d bytes/sector, clock %v, revolution %v",
		f.Name, f.Mode, f.Cylinders, f.Heads, f.Sectors, f.SectorSize(), f.Clock, f.Revolution)
}
