package supercardpro

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sergev/fluxtrack/flux"
)

// SampleFreq is the flux sample clock: 25ns per tick.
const SampleFreq = 40000000

// Revolutions the device can capture at once.
const maxRevs = 5

// Size of the device RAM holding captured flux.
const ramSize = 512 * 1024

// FluxInfo contains information about a single revolution of flux data
type FluxInfo struct {
	IndexTime  uint32 // Revolution time in sample ticks
	NrBitcells uint32 // Number of flux words
}

// FluxData contains flux information and data for up to 5 revolutions
type FluxData struct {
	Info [maxRevs]FluxInfo
	Data []byte // Big-endian 16-bit flux words, zero means overflow
}

// Sample converts revs revolutions of captured flux into a sample,
// with an index pulse at the start of each revolution and after the last.
func (fd *FluxData) Sample(revs int) (flux.Sample, error) {
	s := flux.Sample{Freq: SampleFreq, Index: []uint64{0}}
	words := 0
	var at uint64
	for r := 0; r < revs && r < maxRevs; r++ {
		if fd.Info[r].IndexTime == 0 {
			break
		}
		words += int(fd.Info[r].NrBitcells)
		at += uint64(fd.Info[r].IndexTime)
		s.Index = append(s.Index, at)
	}
	if len(s.Index) < 2 {
		return flux.Sample{}, fmt.Errorf("no index pulse in flux info")
	}
	if 2*words > len(fd.Data) {
		return flux.Sample{}, fmt.Errorf("flux info claims %d words, buffer holds %d", words, len(fd.Data)/2)
	}

	var acc uint64
	for i := 0; i < words; i++ {
		val := binary.BigEndian.Uint16(fd.Data[2*i:])
		if val == 0 {
			acc += 0x10000
			continue
		}
		acc += uint64(val)
		s.Intervals = append(s.Intervals, uint32(acc))
		acc = 0
	}
	if len(s.Intervals) == 0 {
		return flux.Sample{}, flux.ErrNoCells
	}
	return s, nil
}

// readFlux captures nrRevs revolutions into device RAM and fetches them.
func (c *Client) readFlux(nrRevs int) (*FluxData, error) {
	// Start at the index pulse.
	if err := c.command(cmdReadFlux, byte(nrRevs), 1); err != nil {
		return nil, fmt.Errorf("failed to read flux: %w", err)
	}

	// Index time and word count per revolution, big-endian.
	var info [8 * maxRevs]byte
	if err := c.query(cmdGetFluxInfo, info[:]); err != nil {
		return nil, fmt.Errorf("failed to get flux info: %w", err)
	}
	fd := &FluxData{}
	words := 0
	for i := range fd.Info {
		fd.Info[i].IndexTime = binary.BigEndian.Uint32(info[8*i:])
		fd.Info[i].NrBitcells = binary.BigEndian.Uint32(info[8*i+4:])
		if i < nrRevs {
			words += int(fd.Info[i].NrBitcells)
		}
	}

	// Only the part of RAM holding the requested revolutions.
	fd.Data = make([]byte, min(2*words, ramSize))
	if err := c.readRAM(0, fd.Data); err != nil {
		return nil, fmt.Errorf("failed to fetch flux data: %w", err)
	}
	return fd, nil
}

// ReadTrack captures revs revolutions of one track with drive A.
func (c *Client) ReadTrack(cyl, head, revs int) (flux.Sample, error) {
	revs = max(1, min(revs, maxRevs))
	if err := c.selectDrive(0); err != nil {
		return flux.Sample{}, err
	}
	defer c.deselectDrive(0)

	if err := c.seekTrack(cyl, head); err != nil {
		return flux.Sample{}, err
	}
	fluxData, err := c.readFlux(revs)
	if err != nil {
		return flux.Sample{}, fmt.Errorf("cylinder %d, head %d: %w", cyl, head, err)
	}
	s, err := fluxData.Sample(revs)
	if err != nil {
		return flux.Sample{}, fmt.Errorf("cylinder %d, head %d: %w", cyl, head, err)
	}
	c.log.WithFields(logrus.Fields{
		"cyl":       cyl,
		"head":      head,
		"intervals": len(s.Intervals),
		"rpm":       fmt.Sprintf("%.1f", s.RPM()),
	}).Debug("flux captured")
	return s, nil
}
