package pll

import (
	"testing"
	"time"

	"github.com/sergev/fluxtrack/flux"
)

// mfmCells encodes data with the MFM clocking rule.
func mfmCells(data []byte) flux.Bits {
	var cells flux.Bits
	prev := 0
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			d := int(b>>uint(i)) & 1
			clock := 0
			if prev == 0 && d == 0 {
				clock = 1
			}
			cells.Append(clock)
			cells.Append(d)
			prev = d
		}
	}
	return cells
}

// testPattern returns a deterministic data pattern.
func testPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*37 + 11)
	}
	return data
}

// cellTransitions places one transition per one cell, at the end of the cell.
func cellTransitions(cells flux.Bits, periodNs uint64) []uint64 {
	var out []uint64
	t := uint64(0)
	for i := 0; i < cells.Len(); i++ {
		t += periodNs
		if cells.At(i) != 0 {
			out = append(out, t)
		}
	}
	return out
}

// trimmed drops zero cells after the last transition.
func trimmed(cells flux.Bits) string {
	s := cells.String()
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}

// Verify that a clean stream is recovered exactly.
func TestRecoverClean(t *testing.T) {
	cells := mfmCells(testPattern(600))
	res := Recover(NewFluxIterator(cellTransitions(cells, 1000)), DefaultConfig(time.Microsecond))

	if res.Cells.String() != trimmed(cells) {
		t.Errorf("recovered cells differ from input")
	}
	if len(res.Uncertain) != 0 {
		t.Errorf("clean stream produced %d uncertain transitions", len(res.Uncertain))
	}
	if len(res.Desyncs) != 0 || res.Lost != -1 {
		t.Errorf("clean stream produced desyncs %v, lost %d", res.Desyncs, res.Lost)
	}
}

// Each transition is moved by up to 20% of the cell period.
func TestRecoverJitter(t *testing.T) {
	cells := mfmCells(testPattern(600))
	transitions := cellTransitions(cells, 1000)
	prev := uint64(0)
	for i := range transitions {
		shift := int64((i*7919)%41-20) * 10 // -200..200 ns
		v := uint64(int64(transitions[i]) + shift)
		if v <= prev {
			v = prev + 1
		}
		transitions[i] = v
		prev = v
	}

	res := Recover(NewFluxIterator(transitions), DefaultConfig(time.Microsecond))
	if res.Cells.String() != trimmed(cells) {
		t.Errorf("recovered cells differ from input")
	}
	if len(res.Desyncs) != 0 || res.Lost != -1 {
		t.Errorf("jittered stream produced desyncs %v, lost %d", res.Desyncs, res.Lost)
	}
}

// A drive spinning 5% slow stays within the period adjustment range.
func TestRecoverDrift(t *testing.T) {
	cells := mfmCells(testPattern(600))
	transitions := cellTransitions(cells, 1000)
	for i := range transitions {
		transitions[i] = transitions[i] * 105 / 100
	}
	res := Recover(NewFluxIterator(transitions), DefaultConfig(time.Microsecond))
	if res.Cells.String() != trimmed(cells) {
		t.Errorf("recovered cells differ from input")
	}
}

// Flux that never lands on the cell grid makes the loop give up.
func TestRecoverLost(t *testing.T) {
	var transitions []uint64
	for i := 1; i <= 400; i++ {
		transitions = append(transitions, uint64(i)*1700)
	}
	cfg := DefaultConfig(time.Microsecond)
	res := Recover(NewFluxIterator(transitions), cfg)

	if res.Lost < 0 {
		t.Fatalf("off-grid stream was not reported lost")
	}
	if len(res.Desyncs) != cfg.MaxResyncs {
		t.Errorf("got %d desyncs, expected %d", len(res.Desyncs), cfg.MaxResyncs)
	}
	if res.Cells.Len() != res.Lost {
		t.Errorf("cells not truncated at lost point: len %d, lost %d", res.Cells.Len(), res.Lost)
	}
	if res.Lost != res.Desyncs[0].Cell {
		t.Errorf("lost at %d, expected first desync at %d", res.Lost, res.Desyncs[0].Cell)
	}
}

// A short burst of noise costs one resync, then the loop locks again.
func TestRecoverResync(t *testing.T) {
	cells := mfmCells(testPattern(600))
	var transitions []uint64
	t0 := uint64(0)
	for i := 0; i < 3000; i++ {
		t0 += 1000
		if cells.At(i) != 0 {
			transitions = append(transitions, t0)
		}
	}
	for k := 0; k < 12; k++ {
		t0 += 1700
		transitions = append(transitions, t0)
	}
	for i := 3000; i < cells.Len(); i++ {
		t0 += 1000
		if cells.At(i) != 0 {
			transitions = append(transitions, t0)
		}
	}

	res := Recover(NewFluxIterator(transitions), DefaultConfig(time.Microsecond))
	if len(res.Desyncs) == 0 {
		t.Errorf("noise burst did not cause a desync")
	}
	if res.Lost != -1 {
		t.Errorf("track reported lost at %d after a short burst", res.Lost)
	}
	if len(res.Desyncs) > 0 && !res.IsUncertain(res.Desyncs[0].Cell) {
		t.Errorf("desync cell %d is not tagged uncertain", res.Desyncs[0].Cell)
	}
	if res.IsUncertain(1) {
		t.Errorf("clean cell tagged uncertain")
	}
}

// Coincident transitions are merged instead of ending the stream.
func TestFluxIterator(t *testing.T) {
	fi := NewFluxIterator([]uint64{100, 100, 250})
	if v := fi.NextFlux(); v != 100 {
		t.Errorf("NextFlux() = %d, expected 100", v)
	}
	if v := fi.NextFlux(); v != 150 {
		t.Errorf("NextFlux() = %d, expected 150", v)
	}
	if !fi.IsDone() {
		t.Errorf("IsDone() = false after last transition")
	}
	if v := fi.NextFlux(); v != 0 {
		t.Errorf("NextFlux() = %d after end, expected 0", v)
	}
}

func TestRecoverSample(t *testing.T) {
	cells := mfmCells([]byte{0x4e, 0x4e, 0x00, 0xa1})
	s := flux.FromBits(cells, 2*time.Microsecond, 2)
	res := RecoverSample(s, DefaultConfig(2*time.Microsecond))
	if res.Cells.String() != trimmed(cells) {
		t.Errorf("RecoverSample() = %s, expected %s", res.Cells.String(), trimmed(cells))
	}
}
