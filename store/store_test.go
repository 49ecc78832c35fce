package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sergev/fluxtrack/config"
	"github.com/sergev/fluxtrack/track"
)

func decodeReport(t *testing.T, name string, cyl, head int, damage track.Damage) track.Report {
	t.Helper()
	f, err := config.Default().Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%q) returned error: %v", name, err)
	}
	cells, err := track.EncodeDamaged(f, cyl, head, []byte{0xad, 0xaf, 0x00}, damage)
	if err != nil {
		t.Fatalf("EncodeDamaged() returned error: %v", err)
	}
	return track.DecodeCells(cells, track.Options{Format: f, Cylinder: cyl, Head: head}).Report()
}

func TestRecordList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "results.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer s.Close()
	s.now = func() time.Time { return time.Unix(1790000000, 0) }

	clean := decodeReport(t, "ibm.720", 0, 0, track.Damage{})
	damaged := decodeReport(t, "ibm.720", 7, 1, track.Damage{CorruptCRC: []int{3}, Drop: []int{5}})

	if err := s.Record("a.gw", clean); err != nil {
		t.Fatalf("Record() returned error: %v", err)
	}
	if err := s.Record("b.raw", damaged, clean); err != nil {
		t.Fatalf("Record() returned error: %v", err)
	}

	entries, err := s.List("", 0)
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}

	// Newest first.
	wantFiles := []string{"b.raw", "b.raw", "a.gw"}
	for i, e := range entries {
		if e.File != wantFiles[i] {
			t.Errorf("entry %d file = %q, want %q", i, e.File, wantFiles[i])
		}
		if e.Format != "ibm.720" {
			t.Errorf("entry %d format = %q", i, e.Format)
		}
		if !e.Time.Equal(time.Unix(1790000000, 0)) {
			t.Errorf("entry %d time = %v", i, e.Time)
		}
	}

	e := entries[1]
	if e.Cylinder != 7 || e.Head != 1 {
		t.Errorf("damaged entry at c%d h%d, want c7 h1", e.Cylinder, e.Head)
	}
	if e.Declared != 9 || e.Found != 8 || e.Missing != 1 || e.CRCErrors != 1 {
		t.Errorf("damaged entry = %+v, want 8/9 found, 1 missing, 1 crc error", e)
	}
	if e.Errors != damaged.ErrorString() {
		t.Errorf("damaged entry errors = %q, want %q", e.Errors, damaged.ErrorString())
	}
	if entries[0].Missing != 0 || entries[0].Errors != "........." {
		t.Errorf("clean entry = %+v", entries[0])
	}
}

func TestListFilter(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer s.Close()

	r := decodeReport(t, "ibm.360", 1, 0, track.Damage{})
	for _, file := range []string{"x", "y", "x", "x"} {
		if err := s.Record(file, r); err != nil {
			t.Fatalf("Record(%q) returned error: %v", file, err)
		}
	}

	testCases := []struct {
		file  string
		limit int
		want  int
	}{
		{"", 0, 4},
		{"x", 0, 3},
		{"x", 2, 2},
		{"y", 5, 1},
		{"z", 0, 0},
	}
	for _, tc := range testCases {
		entries, err := s.List(tc.file, tc.limit)
		if err != nil {
			t.Fatalf("List(%q, %d) returned error: %v", tc.file, tc.limit, err)
		}
		if len(entries) != tc.want {
			t.Errorf("List(%q, %d) returned %d entries, want %d", tc.file, tc.limit, len(entries), tc.want)
		}
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	if err := s.Record("disk.hfe", decodeReport(t, "ibm.360", 0, 1, track.Damage{})); err != nil {
		t.Fatalf("Record() returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() returned error: %v", err)
	}
	defer s.Close()
	entries, err := s.List("", 0)
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].File != "disk.hfe" || entries[0].Head != 1 {
		t.Errorf("after reopen: %+v", entries)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}
