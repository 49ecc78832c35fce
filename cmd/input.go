package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/hfe"
	"github.com/sergev/fluxtrack/kryoflux"
	"github.com/sergev/fluxtrack/mfm"
	"github.com/sergev/fluxtrack/track"
)

// Input file kinds.
const (
	kindAuto       = "auto"
	kindRaster     = "raster"
	kindIntervals  = "intervals"
	kindGreasepack = "greasepack"
	kindKryoflux   = "kryoflux"
	kindHFE        = "hfe"
)

// formatFlags select a disk format and override its clock parameters.
type formatFlags struct {
	name  string
	mode  string
	clock time.Duration
	rev   time.Duration
}

func (ff *formatFlags) register(f *pflag.FlagSet) {
	f.StringVar(&ff.name, "format", "", "disk format name (default from the format table)")
	f.StringVar(&ff.mode, "mode", "", "modulation: fm or mfm (default from format)")
	f.DurationVar(&ff.clock, "clock", 0, "bit cell period, e.g. 1us (default from format)")
	f.DurationVar(&ff.rev, "rev", 0, "time per revolution, e.g. 200ms (default from format)")
}

// resolve looks up the format and applies the overrides.
func (ff *formatFlags) resolve() (track.Format, error) {
	conf, err := loadConfig()
	if err != nil {
		return track.Format{}, err
	}
	f, err := conf.Lookup(ff.name)
	if err != nil {
		return track.Format{}, err
	}
	if ff.mode != "" {
		mode, err := mfm.ParseMode(ff.mode)
		if err != nil {
			return track.Format{}, err
		}
		if mode != f.Mode {
			f = withMode(f, mode)
		}
	}
	if ff.clock > 0 {
		f.Clock = ff.clock
	}
	if ff.rev > 0 {
		f.Revolution = ff.rev
	}
	return f, f.Validate()
}

// withMode switches modulation and takes the standard gaps of the new mode.
func withMode(f track.Format, mode mfm.Mode) track.Format {
	f.Mode = mode
	f.Gap1, f.Gap2, f.Gap3, f.Gap4a, f.Presync, f.GapByte = 0, 0, 0, 0, 0, 0
	return f.WithDefaults()
}

// loadOptions say how to turn a file into flux.
type loadOptions struct {
	kind         string
	cyl, head    int
	allTracks    bool    // Every track of a multi-track image
	ticksPerCell int     // Raster and image resolution
	sampleFreq   float64 // Interval and greasepack clock, 0 for default
}

// input is one track of flux read from a file.
type input struct {
	cyl, head int
	format    track.Format // Adjusted to what the file records
	sample    flux.Sample
}

// detectKind resolves the auto kind from the file extension.
func detectKind(kind, name string) (string, error) {
	switch kind {
	case kindAuto, "":
		switch strings.ToLower(filepath.Ext(name)) {
		case ".hfe":
			return kindHFE, nil
		case ".gw":
			return kindGreasepack, nil
		case ".raw":
			return kindKryoflux, nil
		}
		return kindRaster, nil
	case kindRaster, kindIntervals, kindGreasepack, kindKryoflux, kindHFE:
		return kind, nil
	}
	return "", fmt.Errorf("unknown input kind %q", kind)
}

// loadInputs reads the flux of one file.
func loadInputs(name string, f track.Format, lo loadOptions) ([]input, error) {
	kind, err := detectKind(lo.kind, name)
	if err != nil {
		return nil, err
	}
	if kind == kindHFE {
		return loadHFE(name, f, lo)
	}

	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var s flux.Sample
	switch kind {
	case kindRaster:
		cells, err := flux.ReadRaster(file)
		if err != nil {
			return nil, err
		}
		if cells.Ones() == 0 {
			return nil, flux.ErrNoCells
		}
		// A raster is decoded one revolution long.
		if n := f.TrackCells(); n > 0 && cells.Len() > n {
			cells = cells.Slice(0, n)
		}
		s = flux.FromBits(cells, f.Clock, lo.ticksPerCell)

	case kindIntervals:
		intervals, err := flux.ReadIntervals(file)
		if err != nil {
			return nil, err
		}
		freq := lo.sampleFreq
		if freq == 0 {
			freq = float64(lo.ticksPerCell) * 1e9 / float64(f.Clock.Nanoseconds())
		}
		s = flux.Sample{Intervals: intervals, Freq: freq}

	case kindGreasepack:
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		freq := lo.sampleFreq
		if freq == 0 {
			freq = flux.GreaseweazleFreq
		}
		if s, err = flux.Unpack(data, freq); err != nil {
			return nil, err
		}
		s = s.Revolution()

	case kindKryoflux:
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		st, err := kryoflux.ParseStream(data)
		if err != nil {
			return nil, err
		}
		s = st.Sample.Revolution()
	}

	if len(s.Intervals) == 0 {
		return nil, flux.ErrNoCells
	}
	return []input{{cyl: lo.cyl, head: lo.head, format: f, sample: s}}, nil
}

// loadHFE reads one track, or every recorded track, of an HFE image.
// The image cell period and modulation replace those of the format.
func loadHFE(name string, f track.Format, lo loadOptions) ([]input, error) {
	disk, err := hfe.Read(name)
	if err != nil {
		return nil, err
	}
	if disk.Mode() != f.Mode {
		f = withMode(f, disk.Mode())
	}
	if period := disk.CellPeriod(); period > 0 {
		f.Clock = period
	}

	var inputs []input
	add := func(cyl, head int) error {
		cells, err := disk.Track(cyl, head)
		if err != nil {
			return err
		}
		if cells.Ones() == 0 {
			if lo.allTracks {
				return nil
			}
			return fmt.Errorf("cylinder %d, head %d: %w", cyl, head, flux.ErrNoCells)
		}
		inputs = append(inputs, input{
			cyl:    cyl,
			head:   head,
			format: f,
			sample: flux.FromBits(cells, f.Clock, lo.ticksPerCell),
		})
		return nil
	}

	if !lo.allTracks {
		if err := add(lo.cyl, lo.head); err != nil {
			return nil, err
		}
		return inputs, nil
	}
	for cyl := range disk.Tracks {
		for head := 0; head < int(disk.Header.NumberOfSide); head++ {
			if err := add(cyl, head); err != nil {
				return nil, err
			}
		}
	}
	if len(inputs) == 0 {
		return nil, flux.ErrNoCells
	}
	return inputs, nil
}
