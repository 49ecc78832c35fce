package flux

import (
	"errors"
	"math"
	"time"
)

// ErrNoCells is returned when an input holds no flux at all.
var ErrNoCells = errors.New("no flux transitions in input")

// Sample holds the flux of one capture: intervals between consecutive
// transitions, counted in ticks of the sample clock.
type Sample struct {
	Intervals []uint32 // Ticks from previous transition (or start) to this one
	Freq      float64  // Sample clock in Hz
	Index     []uint64 // Index pulse times in ticks from start
}

// FromBits converts a bit-cell raster into intervals.
// Each cell lasts period and is split into ticksPerCell ticks.
// Cells after the last transition are dropped.
func FromBits(cells Bits, period time.Duration, ticksPerCell int) Sample {
	if ticksPerCell <= 0 {
		ticksPerCell = 1
	}
	s := Sample{
		Freq: float64(ticksPerCell) * 1e9 / float64(period.Nanoseconds()),
	}
	run := 0
	for i := 0; i < cells.Len(); i++ {
		run++
		if cells.At(i) != 0 {
			s.Intervals = append(s.Intervals, uint32(run*ticksPerCell))
			run = 0
		}
	}
	return s
}

// Bits samples the flux at a fixed cell period: every interval becomes
// the nearest whole number of cells, the last one holding the transition.
func (s Sample) Bits(period time.Duration) Bits {
	var out Bits
	cellTicks := s.Freq * float64(period.Nanoseconds()) / 1e9
	for _, iv := range s.Intervals {
		n := int(math.Round(float64(iv) / cellTicks))
		if n < 1 {
			n = 1
		}
		for k := 1; k < n; k++ {
			out.Append(0)
		}
		out.Append(1)
	}
	return out
}

// TickNs returns the duration of one tick in nanoseconds.
func (s Sample) TickNs() float64 {
	return 1e9 / s.Freq
}

// Transitions returns absolute transition times in nanoseconds.
func (s Sample) Transitions() []uint64 {
	out := make([]uint64, len(s.Intervals))
	tick := s.TickNs()
	var total uint64
	for i, iv := range s.Intervals {
		total += uint64(iv)
		out[i] = uint64(float64(total)*tick + 0.5)
	}
	return out
}

// Ticks returns the total length of the sample in ticks.
func (s Sample) Ticks() uint64 {
	var total uint64
	for _, iv := range s.Intervals {
		total += uint64(iv)
	}
	return total
}

// Duration returns the total length of the sample.
func (s Sample) Duration() time.Duration {
	return time.Duration(math.Round(float64(s.Ticks()) * s.TickNs()))
}

// Revolution returns the flux between the first two index pulses.
// Without two index pulses the sample is returned unchanged.
func (s Sample) Revolution() Sample {
	if len(s.Index) < 2 {
		return s
	}
	out := Sample{Freq: s.Freq}
	start, end := s.Index[0], s.Index[1]
	var t uint64
	first := true
	for _, iv := range s.Intervals {
		t += uint64(iv)
		if t <= start {
			continue
		}
		if t > end {
			break
		}
		if first {
			// Measure the first interval from the index pulse.
			iv = uint32(t - start)
			first = false
		}
		out.Intervals = append(out.Intervals, iv)
	}
	out.Index = []uint64{0, end - start}
	return out
}

// RPM estimates rotation speed from the first two index pulses.
// Returns 0 when unknown.
func (s Sample) RPM() float64 {
	if len(s.Index) < 2 || s.Freq == 0 {
		return 0
	}
	rev := float64(s.Index[1]-s.Index[0]) / s.Freq
	if rev == 0 {
		return 0
	}
	return 60 / rev
}
