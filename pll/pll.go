package pll

import (
	"math"
	"time"
)

// Loop constants of the SuperCard Pro style PLL.
const (
	ClockMaxAdj  = 10 // Period stays within +/- 10% of nominal
	PeriodAdjPct = 5  // Share of the phase error fed into the period
	PhaseAdjPct  = 60 // Share of the phase error removed after each transition
	MaxSyncZeros = 3  // More clocked zeros than this means the loop is out of sync
)

// FluxSource provides flux intervals to the PLL.
type FluxSource interface {
	// NextFlux returns the time until the next transition, in nanoseconds.
	// Returns 0 when no more transitions are available.
	NextFlux() uint64

	// IsDone reports whether all transitions have been consumed.
	IsDone() bool
}

// FluxIterator provides flux intervals from absolute transition times.
type FluxIterator struct {
	transitions []uint64 // Absolute transition times in nanoseconds
	index       int
	lastTime    uint64
}

// NewFluxIterator creates a FluxIterator over transition times.
func NewFluxIterator(transitions []uint64) *FluxIterator {
	return &FluxIterator{transitions: transitions}
}

// NextFlux returns the next flux interval in nanoseconds.
// Coincident transitions are merged.
func (fi *FluxIterator) NextFlux() uint64 {
	for fi.index < len(fi.transitions) {
		next := fi.transitions[fi.index]
		fi.index++
		if next <= fi.lastTime {
			continue
		}
		interval := next - fi.lastTime
		fi.lastTime = next
		return interval
	}
	return 0
}

// IsDone returns true if all transitions have been consumed.
func (fi *FluxIterator) IsDone() bool {
	return fi.index >= len(fi.transitions)
}

// State is the state of the phase-locked loop.
type State struct {
	PeriodIdeal  float64 // Nominal cell period in nanoseconds
	Period       float64 // Current cell period in nanoseconds
	Flux         float64 // Flux time not yet assigned to cells
	Time         float64 // Total time elapsed in nanoseconds
	ClockedZeros int     // Consecutive cells without transition
	Window       float64 // Phase window as a fraction of period; 0 disables it

	// Phase error of the last transition and whether it fell outside the window.
	Residual  float64
	Uncertain bool
}

// NewState returns a loop centred on the nominal cell period.
func NewState(period time.Duration) *State {
	pll := &State{PeriodIdeal: float64(period.Nanoseconds())}
	pll.Reset()
	return pll
}

// Reset re-centres period and phase on the nominal values.
func (pll *State) Reset() {
	pll.Period = pll.PeriodIdeal
	pll.Flux = 0
	pll.ClockedZeros = 0
}

// NextBit clocks one cell out of the flux stream.
// Returns true when the cell holds a transition.
func (pll *State) NextBit(source FluxSource) bool {
	for pll.Flux < pll.Period/2 {
		interval := source.NextFlux()
		if interval == 0 {
			pll.ClockedZeros++
			return false
		}
		pll.Flux += float64(interval)
	}

	pll.Time += pll.Period
	pll.Flux -= pll.Period
	if pll.Flux >= pll.Period/2 {
		pll.ClockedZeros++
		return false
	}

	// Transition: Flux is now the phase error in [-Period/2, Period/2).
	pll.Residual = pll.Flux
	pll.Uncertain = pll.Window > 0 && math.Abs(pll.Flux) > pll.Window*pll.Period

	switch {
	case pll.Uncertain:
		// A spike outside the window must not drag the period.
	case pll.ClockedZeros <= MaxSyncZeros:
		pll.Period += pll.Flux * PeriodAdjPct / 100
	default:
		pll.Period += (pll.PeriodIdeal - pll.Period) * PeriodAdjPct / 100
	}

	pMin := pll.PeriodIdeal * (100 - ClockMaxAdj) / 100
	pMax := pll.PeriodIdeal * (100 + ClockMaxAdj) / 100
	if pll.Period < pMin {
		pll.Period = pMin
	}
	if pll.Period > pMax {
		pll.Period = pMax
	}

	newFlux := pll.Flux * (100 - PhaseAdjPct) / 100
	pll.Time += pll.Flux - newFlux
	pll.Flux = newFlux

	pll.ClockedZeros = 0
	return true
}
