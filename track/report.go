package track

import (
	"fmt"
	"strings"
)

// MissingError reports sectors of the format that were not decoded.
type MissingError struct {
	N int
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%d missing sector(s)", e.N)
}

// Report is the summary of one decoded track.
type Report struct {
	Name       string // Format name
	Cylinder   int
	Head       int
	Declared   int // Sectors per track of the format
	Found      int // Unique sector numbers with a complete data field
	CRCErrors  int // Found sectors whose header or data CRC failed
	IndexMarks int
	Desyncs    int
	Lost       int // Cell where clock recovery gave up, or -1

	errors string
	lines  []string
}

// Report aggregates the parse results.
func (t *Track) Report() Report {
	r := Report{
		Name:       t.Format.Name,
		Cylinder:   t.Cylinder,
		Head:       t.Head,
		Declared:   t.Format.Sectors,
		IndexMarks: t.IndexMarks(),
		Desyncs:    len(t.Desyncs),
		Lost:       t.Lost,
	}

	var errs strings.Builder
	for i := range t.Sectors {
		s := &t.Sectors[i]
		r.Found++
		if s.OK() {
			errs.WriteByte('.')
		} else {
			r.CRCErrors++
			errs.WriteByte('E')
		}
	}
	r.errors = errs.String()

	for _, m := range t.Marks {
		if m.Kind == IndexMark {
			r.lines = append(r.lines, fmt.Sprintf("index mark at cell %d", m.Cell))
		}
	}
	for i := range t.Sectors {
		s := &t.Sectors[i]
		status := "ok"
		switch {
		case s.HeaderCRC != 0:
			status = fmt.Sprintf("header crc error %04x", s.HeaderCRC)
		case s.DataCRC != 0:
			status = fmt.Sprintf("crc error %04x", s.DataCRC)
		}
		if s.Deleted {
			status += ", deleted"
		}
		r.lines = append(r.lines, fmt.Sprintf("sector %d/%d/%d size %d at cell %d: %s",
			s.Cylinder, s.Head, s.Number, len(s.Data), s.Cell, status))
	}
	for _, d := range t.Desyncs {
		r.lines = append(r.lines, fmt.Sprintf("clock desync at cell %d", d.Cell))
	}
	if t.Lost >= 0 {
		r.lines = append(r.lines, fmt.Sprintf("clock lost at cell %d", t.Lost))
	}
	return r
}

// Missing returns the number of sectors not found.
func (r Report) Missing() int {
	if r.Found >= r.Declared {
		return 0
	}
	return r.Declared - r.Found
}

// ErrorString has one character per sector record: 'E' for a header or
// data CRC failure, '.' otherwise.
func (r Report) ErrorString() string {
	return r.errors
}

// Summary returns a one-line description of the track.
func (r Report) Summary() string {
	s := fmt.Sprintf("%s (%d/%d sectors, %s, %s", r.Name, r.Found, r.Declared,
		plural(r.CRCErrors, "crc error"), plural(r.IndexMarks, "index mark"))
	if r.Desyncs > 0 {
		s += ", " + plural(r.Desyncs, "desync")
	}
	if r.Lost >= 0 {
		s += ", clock lost"
	}
	return s + ")"
}

// String returns one line per index mark, per sector and per clock event.
func (r Report) String() string {
	return strings.Join(r.lines, "\n")
}

// Err returns a MissingError when sectors are missing.
func (r Report) Err() error {
	if n := r.Missing(); n > 0 {
		return &MissingError{N: n}
	}
	return nil
}

func plural(n int, what string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, what)
	}
	return fmt.Sprintf("%d %ss", n, what)
}
