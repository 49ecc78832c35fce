// Package hfe reads and writes HxC Floppy Emulator images, which store
// the raw cells of every track.
package hfe

import (
	"fmt"
	"time"

	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/mfm"
)

// HFEVersion selects the file layout.
type HFEVersion int

const (
	HFEVersion1 HFEVersion = 1 // Plain cells
	HFEVersion3 HFEVersion = 3 // Cells with in-band opcodes
)

var signatures = map[string]HFEVersion{
	"HXCPICFE": HFEVersion1,
	"HXCHFEV3": HFEVersion3,
}

func (v HFEVersion) signature() string {
	for sig, version := range signatures {
		if version == v {
			return sig
		}
	}
	return ""
}

// BlockSize is the allocation unit of the file.
const BlockSize = 512

// Version 3 opcodes occupy the byte range 0xF0-0xFF.
const (
	opMask       = 0xf0
	opNop        = 0xf0
	opSetIndex   = 0xf1
	opSetBitrate = 0xf2
	opSkipBits   = 0xf3
	opRand       = 0xf4
)

// Track encodings.
const (
	EncodingIBMMFM   = 0
	EncodingAmigaMFM = 1
	EncodingIBMFM    = 2
	EncodingEmuFM    = 3
)

// Drive interface modes.
const (
	InterfaceIBMPCDD = 0
	InterfaceIBMPCHD = 1
	InterfaceIBMPCED = 8
)

// Header is the first block of the file, little-endian and packed.
type Header struct {
	HeaderSignature     [8]byte
	FormatRevision      uint8
	NumberOfTrack       uint8
	NumberOfSide        uint8
	TrackEncoding       uint8
	BitRate             uint16 // kbit/s, one bit per two cells
	FloppyRPM           uint16
	FloppyInterfaceMode uint8
	WriteProtected      uint8
	TrackListOffset     uint16 // In blocks
	WriteAllowed        uint8
	SingleStep          uint8
	Track0S0AltEncoding uint8
	Track0S0Encoding    uint8
	Track0S1AltEncoding uint8
	Track0S1Encoding    uint8
}

// TrackHeader locates one cylinder in the file.
type TrackHeader struct {
	Offset   uint16 // In blocks
	TrackLen uint16 // Bytes of both sides
}

// TrackData holds the cells of both sides of a cylinder.
type TrackData struct {
	Side0 flux.Bits
	Side1 flux.Bits
}

// Disk is a whole image in memory.
type Disk struct {
	Header Header
	Tracks []TrackData
}

// NewDisk creates an empty image for the given geometry and cell period.
func NewDisk(cyls, heads int, mode mfm.Mode, clock time.Duration, rpm int) *Disk {
	enc := uint8(EncodingIBMMFM)
	if mode == mfm.FM {
		enc = EncodingIBMFM
	}
	bitRate := uint16(time.Second / (2 * clock) / 1000)
	ifm := uint8(InterfaceIBMPCDD)
	switch {
	case bitRate > 500:
		ifm = InterfaceIBMPCED
	case bitRate > 300:
		ifm = InterfaceIBMPCHD
	}

	disk := &Disk{Tracks: make([]TrackData, cyls)}
	disk.Header = Header{
		NumberOfTrack:       uint8(cyls),
		NumberOfSide:        uint8(heads),
		TrackEncoding:       enc,
		BitRate:             bitRate,
		FloppyRPM:           uint16(rpm),
		FloppyInterfaceMode: ifm,
		WriteProtected:      0xff,
		TrackListOffset:     1,
		WriteAllowed:        0xff,
		SingleStep:          0xff,
		Track0S0AltEncoding: 0xff,
		Track0S0Encoding:    enc,
		Track0S1AltEncoding: 0xff,
		Track0S1Encoding:    enc,
	}
	copy(disk.Header.HeaderSignature[:], HFEVersion1.signature())
	return disk
}

// CellPeriod returns the duration of one cell.
func (d *Disk) CellPeriod() time.Duration {
	if d.Header.BitRate == 0 {
		return 0
	}
	return time.Second / time.Duration(2000*int(d.Header.BitRate))
}

// Mode returns the modulation of the image.
func (d *Disk) Mode() mfm.Mode {
	switch d.Header.TrackEncoding {
	case EncodingIBMFM, EncodingEmuFM:
		return mfm.FM
	}
	return mfm.MFM
}

func (d *Disk) side(cyl, head int) (*flux.Bits, error) {
	if cyl < 0 || cyl >= len(d.Tracks) {
		return nil, fmt.Errorf("cylinder %d not in image (%d cylinders)", cyl, len(d.Tracks))
	}
	if head < 0 || head >= int(d.Header.NumberOfSide) || head > 1 {
		return nil, fmt.Errorf("head %d not in image (%d sides)", head, d.Header.NumberOfSide)
	}
	if head == 1 {
		return &d.Tracks[cyl].Side1, nil
	}
	return &d.Tracks[cyl].Side0, nil
}

// Track returns the cells of one side of a cylinder.
func (d *Disk) Track(cyl, head int) (flux.Bits, error) {
	side, err := d.side(cyl, head)
	if err != nil {
		return flux.Bits{}, err
	}
	return *side, nil
}

// SetTrack stores the cells of one side of a cylinder.
func (d *Disk) SetTrack(cyl, head int, cells flux.Bits) error {
	side, err := d.side(cyl, head)
	if err != nil {
		return err
	}
	*side = cells
	return nil
}
