package pll

import (
	"sort"
	"time"

	"github.com/sergev/fluxtrack/flux"
)

// Config holds the clock recovery parameters.
type Config struct {
	Period     time.Duration // Nominal bit cell period
	Tolerance  float64       // Phase window, fraction of the period
	MaxBadRun  int           // Uncertain transitions in a row before a desync
	MaxResyncs int           // Desyncs in a row before the rest of the track is dropped
}

// DefaultConfig returns the recovery parameters for a nominal cell period.
func DefaultConfig(period time.Duration) Config {
	return Config{
		Period:     period,
		Tolerance:  0.35,
		MaxBadRun:  8,
		MaxResyncs: 4,
	}
}

// Desync records one loss of lock.
type Desync struct {
	Cell int     // First cell of the run of uncertain transitions
	Time float64 // Nanoseconds from start of flux
}

// Result is the output of clock recovery.
type Result struct {
	Cells     flux.Bits // Recovered bit cells
	Uncertain []int     // Transitions that fell outside the phase window, ascending
	Desyncs   []Desync  // Losses of lock, in order
	Lost      int       // Cell where recovery was abandoned, or -1
}

// IsUncertain reports whether the cell is a transition outside the window.
func (r *Result) IsUncertain(cell int) bool {
	i := sort.SearchInts(r.Uncertain, cell)
	return i < len(r.Uncertain) && r.Uncertain[i] == cell
}

// Recover clocks bit cells out of a flux source.
//
// A run of more than MaxBadRun uncertain transitions is a desync: the loop
// is re-centred on the nominal period and decoding goes on. When MaxResyncs
// desyncs follow each other without MaxBadRun good transitions in between,
// the cells from the first of them onward are dropped and Lost is set.
func Recover(source FluxSource, cfg Config) *Result {
	pll := NewState(cfg.Period)
	pll.Window = cfg.Tolerance

	res := &Result{Lost: -1}
	badRun, goodRun := 0, 0
	runStart := 0
	streak, streakStart := 0, 0

	for !(source.IsDone() && pll.Flux < pll.Period/2) {
		if !pll.NextBit(source) {
			res.Cells.Append(0)
			continue
		}
		cell := res.Cells.Len()
		res.Cells.Append(1)

		if !pll.Uncertain {
			badRun = 0
			goodRun++
			if goodRun >= cfg.MaxBadRun {
				streak = 0
			}
			continue
		}

		res.Uncertain = append(res.Uncertain, cell)
		goodRun = 0
		if badRun == 0 {
			runStart = cell
		}
		badRun++
		if badRun <= cfg.MaxBadRun {
			continue
		}

		res.Desyncs = append(res.Desyncs, Desync{Cell: runStart, Time: pll.Time})
		if streak == 0 {
			streakStart = runStart
		}
		streak++
		if cfg.MaxResyncs > 0 && streak >= cfg.MaxResyncs {
			res.Lost = streakStart
			res.Cells = res.Cells.Slice(0, streakStart)
			n := sort.SearchInts(res.Uncertain, streakStart)
			res.Uncertain = res.Uncertain[:n]
			break
		}
		pll.Reset()
		badRun = 0
	}
	return res
}

// RecoverSample runs clock recovery over a flux sample.
func RecoverSample(s flux.Sample, cfg Config) *Result {
	return Recover(NewFluxIterator(s.Transitions()), cfg)
}
