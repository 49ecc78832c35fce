package track

import (
	"github.com/sirupsen/logrus"

	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/pll"
)

// Options are the explicit inputs of one track decode.
type Options struct {
	Format   Format
	Cylinder int
	Head     int

	// Clock recovery parameters; zero Period selects the defaults
	// for the format clock.
	PLL pll.Config

	// Optional progress logger.
	Log logrus.FieldLogger
}

func (o Options) pllConfig() pll.Config {
	if o.PLL.Period == 0 {
		return pll.DefaultConfig(o.Format.Clock)
	}
	return o.PLL
}

// Decode recovers the clock of a flux sample and parses the resulting cells.
// Every call returns a fresh Track.
func Decode(s flux.Sample, opts Options) *Track {
	res := pll.RecoverSample(s, opts.pllConfig())
	t := Parse(res.Cells, opts.Format, opts.Cylinder, opts.Head)
	t.Desyncs = res.Desyncs
	t.Lost = res.Lost

	if opts.Log != nil {
		entry := opts.Log.WithFields(logrus.Fields{
			"cyl":       t.Cylinder,
			"head":      t.Head,
			"intervals": len(s.Intervals),
			"cells":     t.Cells.Len(),
			"uncertain": len(res.Uncertain),
			"desyncs":   len(t.Desyncs),
			"marks":     len(t.Marks),
			"sectors":   len(t.Sectors),
		})
		entry.Debug("track decoded")
		if t.Lost >= 0 {
			entry.Warnf("clock lost at cell %d", t.Lost)
		}
	}
	return t
}

// DecodeCells decodes a bit raster sampled at the format clock.
func DecodeCells(cells flux.Bits, opts Options) *Track {
	return Decode(flux.FromBits(cells, opts.Format.Clock, 2), opts)
}
