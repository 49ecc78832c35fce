package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sergev/fluxtrack/mfm"
)

func TestDefaultFormats(t *testing.T) {
	conf := Default()
	if conf.Default != "ibm.1440" {
		t.Errorf("Default = %q, expected ibm.1440", conf.Default)
	}

	tests := []struct {
		name    string
		mode    mfm.Mode
		sectors int
		size    int
		clock   time.Duration
		cells   int
	}{
		{"ibm.360", mfm.MFM, 9, 512, 2 * time.Microsecond, 100000},
		{"ibm.720", mfm.MFM, 9, 512, 2 * time.Microsecond, 100000},
		{"ibm.1200", mfm.MFM, 15, 512, time.Microsecond, 166666},
		{"ibm.1440", mfm.MFM, 18, 512, time.Microsecond, 200000},
		{"ibm.2880", mfm.MFM, 36, 512, 500 * time.Nanosecond, 400000},
		{"rx01", mfm.FM, 26, 128, 2 * time.Microsecond, 83333},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := conf.Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup() returned error: %v", err)
			}
			if f.Mode != tt.mode || f.Sectors != tt.sectors || f.SectorSize() != tt.size || f.Clock != tt.clock {
				t.Errorf("Lookup() = %v", f)
			}
			if f.TrackCells() != tt.cells {
				t.Errorf("TrackCells() = %d, expected %d", f.TrackCells(), tt.cells)
			}
			if f.FirstSector != 1 || f.Gap3 == 0 {
				t.Errorf("defaults not applied: first %d, gap3 %d", f.FirstSector, f.Gap3)
			}
		})
	}

	if f, err := conf.Lookup(""); err != nil || f.Name != "ibm.1440" {
		t.Errorf("Lookup(\"\") = %v, %v", f.Name, err)
	}
	if f, _ := conf.Lookup("ibm.2880"); f.Gap2 != 41 {
		t.Errorf("ibm.2880 gap2 = %d, expected 41", f.Gap2)
	}
	if _, err := conf.Lookup("amiga"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Lookup(amiga) error = %v, expected ErrUnknownFormat", err)
	}
	if names := conf.Names(); len(names) != len(tests) || names[0] != "ibm.1200" {
		t.Errorf("Names() = %v", names)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "default = \n"},
		{"empty", "default = \"x\"\n"},
		{"bad size", "[[format]]\nname = \"a\"\nsectors = 9\nsize = 500\nclock = \"1us\"\nrpm = 300\n"},
		{"bad clock", "[[format]]\nname = \"a\"\nsectors = 9\nsize = 512\nclock = \"fast\"\nrpm = 300\n"},
		{"bad mode", "[[format]]\nname = \"a\"\nmode = \"gcr\"\nsectors = 9\nsize = 512\nclock = \"1us\"\nrpm = 300\n"},
		{"no rpm", "[[format]]\nname = \"a\"\nsectors = 9\nsize = 512\nclock = \"1us\"\n"},
		{"no default", "default = \"b\"\n[[format]]\nname = \"a\"\nsectors = 9\nsize = 512\nclock = \"1us\"\nrpm = 300\n"},
		{"twice", "[[format]]\nname = \"a\"\nsectors = 9\nsize = 512\nclock = \"1us\"\nrpm = 300\n" +
			"[[format]]\nname = \"a\"\nsectors = 9\nsize = 512\nclock = \"1us\"\nrpm = 300\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Errorf("Parse() accepted %s config", tt.name)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formats.toml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() returned error: %v", err)
	}
	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(conf.Format) != len(Default().Format) {
		t.Errorf("Load() returned %d formats, expected %d", len(conf.Format), len(Default().Format))
	}

	custom := "default = \"custom\"\n[[format]]\nname = \"custom\"\nmode = \"fm\"\ncyls = 77\nheads = 1\n" +
		"sectors = 26\nsize = 128\nclock = \"2us\"\nrpm = 360\ninterleave = 2\n"
	if err := os.WriteFile(path, []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	f, err := conf.Lookup("")
	if err != nil {
		t.Fatalf("Lookup() returned error: %v", err)
	}
	if f.Mode != mfm.FM || f.SizeCode != 0 || f.Interleave != 2 || f.Gap3 != 27 {
		t.Errorf("custom format = %+v", f)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("Load() accepted a missing file")
	}
}
