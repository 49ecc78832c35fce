package greaseweazle

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sergev/fluxtrack/flux"
)

// ReadFlux samples the selected track until ticks have passed or
// maxIndex index pulses were seen; zero disables either limit.
// The returned greasepack keeps its terminating zero byte.
func (c *Client) ReadFlux(ticks uint32, maxIndex uint16) ([]byte, error) {
	args := binary.LittleEndian.AppendUint32(nil, ticks)
	args = binary.LittleEndian.AppendUint16(args, maxIndex)
	if err := c.command(cmdReadFlux, args...); err != nil {
		return nil, fmt.Errorf("failed to start flux read: %w", err)
	}

	var stream bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := c.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("flux stream broken after %d bytes: %w", stream.Len(), err)
		}
		if n == 0 {
			return nil, fmt.Errorf("flux stream ended after %d bytes without terminator", stream.Len())
		}
		if end := bytes.IndexByte(buf[:n], 0); end >= 0 {
			stream.Write(buf[:end+1])
			return stream.Bytes(), nil
		}
		stream.Write(buf[:n])
	}
}

// ReadTrack captures revs revolutions of one track with drive 0.
func (c *Client) ReadTrack(cyl, head, revs int) (flux.Sample, error) {
	if err := c.selectDrive(0); err != nil {
		return flux.Sample{}, fmt.Errorf("failed to select drive: %w", err)
	}
	defer c.deselectDrive()
	if err := c.motor(0, true); err != nil {
		return flux.Sample{}, fmt.Errorf("failed to turn on motor: %w", err)
	}
	defer c.motor(0, false)

	where := fmt.Sprintf("cylinder %d, head %d", cyl, head)
	if err := c.Seek(cyl); err != nil {
		return flux.Sample{}, fmt.Errorf("failed to seek to %s: %w", where, err)
	}
	if err := c.SetHead(head); err != nil {
		return flux.Sample{}, fmt.Errorf("failed to select %s: %w", where, err)
	}

	// One index pulse more than revolutions bounds them all.
	data, err := c.ReadFlux(0, uint16(revs+1))
	if err != nil {
		return flux.Sample{}, fmt.Errorf("%s: %w", where, err)
	}
	if err := c.command(cmdGetFluxStatus); err != nil {
		return flux.Sample{}, fmt.Errorf("%s: %w", where, err)
	}

	s, err := flux.Unpack(data, c.SampleFreq())
	if err != nil {
		return flux.Sample{}, fmt.Errorf("%s: %w", where, err)
	}
	c.log.WithFields(logrus.Fields{
		"cyl":       cyl,
		"head":      head,
		"bytes":     len(data),
		"intervals": len(s.Intervals),
		"index":     len(s.Index),
	}).Debug("flux captured")
	return s, nil
}
