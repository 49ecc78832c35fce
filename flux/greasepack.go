package flux

import (
	"fmt"
)

// Greaseweazle flux stream opcodes, introduced by a 0xFF byte.
const (
	FluxOpIndex   = 1
	FluxOpSpace   = 2
	FluxOpAstable = 3
)

// Default Greaseweazle sample clock (F7 and later models).
const GreaseweazleFreq = 72000000

// encodeN28 packs a 28-bit value into four bytes, each with bit 0 set.
func encodeN28(value uint32) []byte {
	return []byte{
		byte(1 | ((value & 0x7f) << 1)),
		byte(1 | (((value >> 7) & 0x7f) << 1)),
		byte(1 | (((value >> 14) & 0x7f) << 1)),
		byte(1 | (((value >> 21) & 0x7f) << 1)),
	}
}

// decodeN28 unpacks a 28-bit value at data[offset:offset+4].
func decodeN28(data []byte, offset int) (uint32, error) {
	if offset+4 > len(data) {
		return 0, fmt.Errorf("truncated N28 value at offset %d", offset)
	}
	return ((uint32(data[offset]) & 0xfe) >> 1) |
		((uint32(data[offset+1]) & 0xfe) << 6) |
		((uint32(data[offset+2]) & 0xfe) << 13) |
		((uint32(data[offset+3]) & 0xfe) << 20), nil
}

// appendInterval encodes one flux interval.
//
//	1..249      one byte
//	250..1524   two bytes: 250 + (v-250)/255, 1 + (v-250)%255
//	1525..      SPACE(v-249) followed by a 249 byte
func appendInterval(out []byte, v uint32) []byte {
	switch {
	case v == 0:
		return append(out, 1)
	case v < 250:
		return append(out, byte(v))
	case v < 1525:
		high := (v - 250) / 255
		low := (v - 250) % 255
		return append(out, byte(250+high), byte(1+low))
	default:
		out = append(out, 0xff, FluxOpSpace)
		out = append(out, encodeN28(v-249)...)
		return append(out, 249)
	}
}

// Pack encodes a sample in the Greaseweazle flux stream format.
// Index pulses are emitted as INDEX opcodes before the interval that
// spans them. The stream ends with a zero byte.
func Pack(s Sample) []byte {
	out := make([]byte, 0, len(s.Intervals)+16)
	var t uint64
	next := 0
	for _, iv := range s.Intervals {
		end := t + uint64(iv)
		for next < len(s.Index) && s.Index[next] < end {
			offset := uint64(0)
			if s.Index[next] > t {
				offset = s.Index[next] - t
			}
			out = append(out, 0xff, FluxOpIndex)
			out = append(out, encodeN28(uint32(offset))...)
			next++
		}
		out = appendInterval(out, iv)
		t = end
	}
	return append(out, 0)
}

// Unpack decodes a Greaseweazle flux stream. Decoding stops at a zero byte
// or at the end of data. The sample clock freq is attached to the result.
func Unpack(data []byte, freq float64) (Sample, error) {
	s := Sample{Freq: freq}
	var t uint64   // time of last transition
	var acc uint64 // ticks since last transition
	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case b == 0:
			return s, nil

		case b == 0xff:
			if i+1 >= len(data) {
				return s, fmt.Errorf("truncated opcode at offset %d", i)
			}
			op := data[i+1]
			value, err := decodeN28(data, i+2)
			if err != nil {
				return s, err
			}
			switch op {
			case FluxOpIndex:
				s.Index = append(s.Index, t+acc+uint64(value))
			case FluxOpSpace:
				acc += uint64(value)
			case FluxOpAstable:
				// Write-only opcode, no flux recorded.
			default:
				return s, fmt.Errorf("unknown opcode 0x%02x at offset %d", op, i+1)
			}
			i += 6

		case b < 250:
			acc += uint64(b)
			s.Intervals = append(s.Intervals, uint32(acc))
			t += acc
			acc = 0
			i++

		default:
			if i+1 >= len(data) {
				return s, fmt.Errorf("truncated interval at offset %d", i)
			}
			acc += 250 + uint64(b-250)*255 + uint64(data[i+1]) - 1
			s.Intervals = append(s.Intervals, uint32(acc))
			t += acc
			acc = 0
			i += 2
		}
	}
	return s, nil
}
