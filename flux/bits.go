package flux

import "strings"

// Bits is a sequence of bit cells packed MSB-first.
// A one cell holds a flux transition, a zero cell holds none.
type Bits struct {
	data []byte
	n    int
}

// NewBits wraps packed cells. Length n is clamped to the size of data.
func NewBits(data []byte, n int) Bits {
	if n < 0 || n > len(data)*8 {
		n = len(data) * 8
	}
	return Bits{data: data, n: n}
}

// Len returns the number of cells.
func (b Bits) Len() int {
	return b.n
}

// At returns the cell at position i, 0 or 1.
func (b Bits) At(i int) int {
	return int(b.data[i>>3]>>(7-uint(i&7))) & 1
}

// Set overwrites the cell at position i.
func (b Bits) Set(i int, bit int) {
	mask := byte(1) << (7 - uint(i&7))
	if bit != 0 {
		b.data[i>>3] |= mask
	} else {
		b.data[i>>3] &^= mask
	}
}

// Append adds one cell at the end.
func (b *Bits) Append(bit int) {
	if b.n == len(b.data)*8 {
		b.data = append(b.data, 0)
	}
	if bit != 0 {
		b.data[b.n>>3] |= 1 << (7 - uint(b.n&7))
	}
	b.n++
}

// AppendWord adds the low n bits of w, most significant first.
func (b *Bits) AppendWord(w uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		b.Append(int(w>>uint(i)) & 1)
	}
}

// AppendBits adds all cells of o.
func (b *Bits) AppendBits(o Bits) {
	for i := 0; i < o.n; i++ {
		b.Append(o.At(i))
	}
}

// Word returns n cells (n <= 64) starting at position i, first cell in the
// most significant position. Cells past the end read as zero.
func (b Bits) Word(i, n int) uint64 {
	var w uint64
	for k := 0; k < n; k++ {
		w <<= 1
		if i+k < b.n {
			w |= uint64(b.At(i + k))
		}
	}
	return w
}

// Slice returns cells [from, to) as a new independent sequence.
func (b Bits) Slice(from, to int) Bits {
	if from < 0 {
		from = 0
	}
	if to > b.n {
		to = b.n
	}
	var out Bits
	for i := from; i < to; i++ {
		out.Append(b.At(i))
	}
	return out
}

// Bytes returns the packed cells. A trailing partial byte is zero padded.
func (b Bits) Bytes() []byte {
	out := make([]byte, (b.n+7)/8)
	copy(out, b.data)
	if b.n&7 != 0 {
		out[len(out)-1] &= byte(0xff << (8 - uint(b.n&7)))
	}
	return out
}

// Ones counts transitions.
func (b Bits) Ones() int {
	count := 0
	for i := 0; i < b.n; i++ {
		count += b.At(i)
	}
	return count
}

// String renders cells as '0' and '1' characters.
func (b Bits) String() string {
	var sb strings.Builder
	sb.Grow(b.n)
	for i := 0; i < b.n; i++ {
		sb.WriteByte('0' + byte(b.At(i)))
	}
	return sb.String()
}
