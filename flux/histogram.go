package flux

import (
	"fmt"
	"io"
	"math"
)

// Histogram counts flux intervals by length, in ticks.
type Histogram struct {
	Bins     []int // Bins[t] is the number of intervals of t ticks
	Overflow int   // Intervals longer than the last bin
}

// NewHistogram bins the intervals of s. Intervals of maxTicks or more
// are counted as overflow.
func NewHistogram(s Sample, maxTicks int) Histogram {
	h := Histogram{Bins: make([]int, maxTicks)}
	for _, iv := range s.Intervals {
		if int(iv) >= maxTicks {
			h.Overflow++
			continue
		}
		h.Bins[iv]++
	}
	return h
}

// Classes sorts MFM pulses into 2, 3 and 4 cell classes ("10", "100",
// "1000"), with limits halfway between nominal lengths.
// Pulses shorter than 1.5 cells or longer than 4.5 cells count as other.
func (h Histogram) Classes(ticksPerCell float64) (classes [3]int, other int) {
	t2 := 2.5 * ticksPerCell
	t3 := 3.5 * ticksPerCell
	t4 := 4.5 * ticksPerCell
	for ticks, count := range h.Bins {
		if count == 0 {
			continue
		}
		v := float64(ticks)
		switch {
		case v < 1.5*ticksPerCell:
			other += count
		case v < t2:
			classes[0] += count
		case v < t3:
			classes[1] += count
		case v < t4:
			classes[2] += count
		default:
			other += count
		}
	}
	return classes, other + h.Overflow
}

// Peak returns the most populated bin.
func (h Histogram) Peak() int {
	peak := 0
	for t, count := range h.Bins {
		if count > h.Bins[peak] {
			peak = t
		}
	}
	return peak
}

// Print writes non-empty bins, one per line, with a bar scaled to the peak.
func (h Histogram) Print(w io.Writer) error {
	top := h.Bins[h.Peak()]
	if top == 0 {
		_, err := fmt.Fprintln(w, "no pulses")
		return err
	}
	for t, count := range h.Bins {
		if count == 0 {
			continue
		}
		bar := int(math.Ceil(float64(count) * 50 / float64(top)))
		line := make([]byte, bar)
		for i := range line {
			line[i] = '*'
		}
		if _, err := fmt.Fprintf(w, "%4d: %7d %s\n", t, count, line); err != nil {
			return err
		}
	}
	if h.Overflow > 0 {
		if _, err := fmt.Fprintf(w, "over: %7d\n", h.Overflow); err != nil {
			return err
		}
	}
	return nil
}
