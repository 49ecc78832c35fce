package hfe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"os"
)

// Write saves a disk in the given layout. Version 3 rejects cells that
// would read back as opcodes; FM clock patterns produce such bytes.
func Write(filename string, disk *Disk, version HFEVersion) error {
	data, err := encode(disk, version)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func encode(disk *Disk, version HFEVersion) ([]byte, error) {
	sig := version.signature()
	if sig == "" {
		return nil, fmt.Errorf("invalid HFE version %d", version)
	}
	if len(disk.Tracks) == 0 || len(disk.Tracks) > 128 {
		return nil, fmt.Errorf("invalid number of tracks: %d", len(disk.Tracks))
	}
	h := disk.Header
	copy(h.HeaderSignature[:], sig)
	h.FormatRevision = 0
	h.TrackListOffset = 1
	h.NumberOfTrack = uint8(len(disk.Tracks))

	pad := byte(0xff)
	if version == HFEVersion3 {
		pad = opNop
	}

	// Header block, track list block, then the tracks.
	var body bytes.Buffer
	headers := make([]TrackHeader, len(disk.Tracks))
	next := h.TrackListOffset + 1
	for i, td := range disk.Tracks {
		side0 := td.Side0.Bytes()
		var side1 []byte
		if h.NumberOfSide > 1 {
			side1 = td.Side1.Bytes()
		}
		if version == HFEVersion3 {
			if err := checkOpcodes(side0); err != nil {
				return nil, fmt.Errorf("track %d side 0: %w", i, err)
			}
			if err := checkOpcodes(side1); err != nil {
				return nil, fmt.Errorf("track %d side 1: %w", i, err)
			}
		}
		n := 2 * max(len(side0), len(side1))
		if n > 0xffff {
			return nil, fmt.Errorf("track %d too long for HFE: %d bytes", i, n)
		}
		if h.NumberOfSide < 2 {
			side1 = side0
		}
		headers[i] = TrackHeader{Offset: next, TrackLen: uint16(n)}
		raw := mux(side0, side1, n, pad)
		body.Write(raw)
		next += uint16(len(raw) / BlockSize)
	}

	out := bytes.NewBuffer(make([]byte, 0, 2*BlockSize+body.Len()))
	if err := writeBlock(out, &h); err != nil {
		return nil, err
	}
	if err := writeBlock(out, headers); err != nil {
		return nil, err
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// writeBlock writes a record padded with 0xFF to a whole block.
func writeBlock(out *bytes.Buffer, v any) error {
	block := bytes.Repeat([]byte{0xff}, BlockSize)
	var rec bytes.Buffer
	if err := binary.Write(&rec, binary.LittleEndian, v); err != nil {
		return err
	}
	copy(block, rec.Bytes())
	out.Write(block)
	return nil
}

// headerBlock returns the header alone in its block.
func headerBlock(h *Header) []byte {
	var out bytes.Buffer
	writeBlock(&out, h)
	return out.Bytes()
}

func checkOpcodes(data []byte) error {
	for i, b := range data {
		if b&opMask == opMask {
			return fmt.Errorf("cells 0x%02X at byte %d collide with an HFE v3 opcode", b, i)
		}
	}
	return nil
}

// mux interleaves both sides into whole blocks, the inverse of demux.
func mux(side0, side1 []byte, n int, pad byte) []byte {
	size := (n + BlockSize - 1) / BlockSize * BlockSize
	raw := make([]byte, size)
	half := BlockSize / 2
	for i := 0; i < size/2; i++ {
		a, b := pad, pad
		if i < len(side0) {
			a = side0[i]
		}
		if i < len(side1) {
			b = side1[i]
		}
		block, off := i/half*BlockSize, i%half
		raw[block+off] = bits.Reverse8(a)
		raw[block+half+off] = bits.Reverse8(b)
	}
	return raw
}
