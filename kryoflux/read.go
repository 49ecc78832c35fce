package kryoflux

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sergev/fluxtrack/flux"
)

// Limits of one stream capture.
var (
	maxCaptureTime = 30 * time.Second
	noDataTimeout  = 5 * time.Second
)

const readBufferSize = 6400

// captureStream streams the current track until revs+1 index pulses
// have passed, and returns the raw stream through its EOF block.
func (c *Client) captureStream(revs int) ([]byte, error) {
	if _, err := c.control(requestStream, streamOn); err != nil {
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}
	streaming := true
	stop := func() error {
		streaming = false
		_, err := c.control(requestStream, 0)
		return err
	}
	defer func() {
		if streaming {
			stop()
		}
	}()

	var data []byte
	buf := make([]byte, readBufferSize)
	start := time.Now()
	lastData := start
	offset, pos, indexes := 0, 0, 0
	for {
		switch {
		case time.Since(start) > maxCaptureTime:
			return nil, fmt.Errorf("stream capture exceeded %v", maxCaptureTime)
		case time.Since(lastData) > noDataTimeout && len(data) > 0:
			return data, nil
		case time.Since(lastData) > noDataTimeout:
			return nil, fmt.Errorf("no stream data within %v", noDataTimeout)
		}

		n, err := c.usb.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read stream: %w", err)
		}
		if n == 0 {
			continue
		}
		lastData = time.Now()
		data = append(data, buf[:n]...)

		var eof bool
		offset, pos, eof, _ = scan(data, offset, pos, func(b block) error {
			if b.code == blockOOB && data[b.offset+1] == oobIndex {
				indexes++
			}
			return nil
		})
		if eof {
			streaming = false
			return data, nil
		}

		// Enough revolutions: stop and drain up to the EOF block.
		if indexes > revs && streaming {
			if err := stop(); err != nil {
				return nil, fmt.Errorf("failed to stop stream: %w", err)
			}
		}
	}
}

// ReadTrack captures revs revolutions of one track.
func (c *Client) ReadTrack(cyl, head, revs int) (flux.Sample, error) {
	where := fmt.Sprintf("cylinder %d, head %d", cyl, head)
	if err := c.configure(0, 0, 0, 83); err != nil {
		return flux.Sample{}, err
	}
	defer c.motorOff()
	if err := c.motorOn(head, cyl); err != nil {
		return flux.Sample{}, fmt.Errorf("failed to position head at %s: %w", where, err)
	}

	data, err := c.captureStream(revs)
	if err != nil {
		return flux.Sample{}, fmt.Errorf("%s: %w", where, err)
	}
	st, err := ParseStream(data)
	if err != nil {
		return flux.Sample{}, fmt.Errorf("%s: %w", where, err)
	}
	if len(st.Index) < 2 {
		return flux.Sample{}, fmt.Errorf("%s: no index pulses", where)
	}
	c.log.WithFields(logrus.Fields{
		"cyl":       cyl,
		"head":      head,
		"bytes":     len(data),
		"intervals": len(st.Sample.Intervals),
		"index":     len(st.Index),
		"rpm":       fmt.Sprintf("%.1f", st.RPM()),
	}).Debug("stream captured")
	return st.Sample, nil
}
