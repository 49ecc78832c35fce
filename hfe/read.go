package hfe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"os"

	"github.com/sergev/fluxtrack/flux"
)

// Read loads a version 1 or version 3 image.
func Read(filename string) (*Disk, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	disk, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return disk, nil
}

func parse(data []byte) (*Disk, error) {
	disk := &Disk{}
	h := &disk.Header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	sig := string(h.HeaderSignature[:])
	version, ok := signatures[sig]
	switch {
	case !ok:
		return nil, fmt.Errorf("invalid HFE signature %q", sig)
	case version == HFEVersion1 && h.FormatRevision == 1:
		return nil, errors.New("HFE v2 images are not supported")
	case h.FormatRevision != 0:
		return nil, fmt.Errorf("invalid HFE v%d format revision %d", version, h.FormatRevision)
	case h.BitRate == 0:
		return nil, errors.New("invalid bit rate")
	case h.NumberOfTrack == 0:
		return nil, errors.New("invalid number of tracks")
	case h.NumberOfSide == 0:
		return nil, errors.New("invalid number of sides")
	}

	list, err := blocks(data, int(h.TrackListOffset), 4*int(h.NumberOfTrack))
	if err != nil {
		return nil, fmt.Errorf("track list: %w", err)
	}
	headers := make([]TrackHeader, h.NumberOfTrack)
	if err := binary.Read(bytes.NewReader(list), binary.LittleEndian, headers); err != nil {
		return nil, fmt.Errorf("track list: %w", err)
	}

	disk.Tracks = make([]TrackData, len(headers))
	for i, th := range headers {
		n := int(th.TrackLen)
		raw, err := blocks(data, int(th.Offset), (n+BlockSize-1)/BlockSize*BlockSize)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		side0, side1 := demux(raw)
		side0, side1 = side0[:n/2], side1[:n/2]
		td := &disk.Tracks[i]
		if td.Side0, err = sideCells(side0, version); err != nil {
			return nil, fmt.Errorf("track %d side 0: %w", i, err)
		}
		if h.NumberOfSide > 1 {
			if td.Side1, err = sideCells(side1, version); err != nil {
				return nil, fmt.Errorf("track %d side 1: %w", i, err)
			}
		}
	}

	if h.FloppyRPM == 0 {
		rpm, err := guessRPM(h.BitRate, disk.Tracks[0].Side0.Len())
		if err != nil {
			return nil, err
		}
		h.FloppyRPM = rpm
	}
	return disk, nil
}

// blocks returns n bytes starting at a block number.
func blocks(data []byte, block, n int) ([]byte, error) {
	start := block * BlockSize
	if start+n > len(data) {
		return nil, fmt.Errorf("%d bytes at block %d past end of file", n, block)
	}
	return data[start : start+n], nil
}

// demux splits whole blocks of a track into its sides. Each block carries
// 256 bytes of side 0 followed by 256 bytes of side 1, bits LSB first.
func demux(raw []byte) (side0, side1 []byte) {
	side0 = make([]byte, 0, len(raw)/2)
	side1 = make([]byte, 0, len(raw)/2)
	for i, b := range raw {
		if i%BlockSize < BlockSize/2 {
			side0 = append(side0, bits.Reverse8(b))
		} else {
			side1 = append(side1, bits.Reverse8(b))
		}
	}
	return side0, side1
}

func sideCells(data []byte, version HFEVersion) (flux.Bits, error) {
	if version == HFEVersion3 {
		return decodeOpcodes(data)
	}
	return flux.NewBits(data, -1), nil
}

// decodeOpcodes expands the version 3 opcodes of one side and rotates
// the cells so that the index pulse is at cell 0.
func decodeOpcodes(data []byte) (flux.Bits, error) {
	var cells flux.Bits
	index := 0
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b&opMask != opMask {
			cells.AppendWord(uint64(b), 8)
			continue
		}
		switch b {
		case opNop:
		case opSetIndex:
			index = cells.Len()
		case opSetBitrate:
			if i+1 >= len(data) {
				return flux.Bits{}, errors.New("truncated SETBITRATE opcode")
			}
			i++
		case opSkipBits:
			if i+2 >= len(data) {
				return flux.Bits{}, errors.New("truncated SKIPBITS opcode")
			}
			skip := int(data[i+1])
			if skip > 8 {
				return flux.Bits{}, fmt.Errorf("SKIPBITS skip value %d over 8", skip)
			}
			n := 8 - skip
			cells.AppendWord(uint64(data[i+2])&(1<<n-1), n)
			i += 2
		case opRand:
			// Weak bits read back as cells without transitions.
			cells.AppendWord(0, 8)
		default:
			return flux.Bits{}, fmt.Errorf("unknown opcode 0x%02X", b)
		}
	}

	if index == 0 || index >= cells.Len() {
		return cells, nil
	}
	rotated := cells.Slice(index, cells.Len())
	rotated.AppendBits(cells.Slice(0, index))
	return rotated, nil
}

// guessRPM derives the rotation speed from the cell count of a track,
// rounded to 300 or 360.
func guessRPM(bitRate uint16, cells int) (uint16, error) {
	if cells == 0 {
		return 0, errors.New("unknown RPM")
	}
	rpm := 60 * 2000 * int(bitRate) / cells
	switch {
	case rpm < 250 || rpm > 400:
		return 0, fmt.Errorf("bad RPM %d", rpm)
	case rpm < 330:
		return 300, nil
	}
	return 360, nil
}
