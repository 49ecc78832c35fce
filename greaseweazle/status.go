package greaseweazle

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sergev/fluxtrack/flux"
)

// bandwidth is the packed reply to the bandwidth info page.
type bandwidth struct {
	MinBytes, MinUsecs uint32
	MaxBytes, MaxUsecs uint32
}

func rate(bytes, usecs uint32) float64 {
	if usecs == 0 {
		return 0
	}
	return float64(bytes) / float64(usecs) * 1e6 / (1 << 20)
}

// pin reports the level of a drive interface pin.
func (c *Client) pin(n byte) (bool, error) {
	status, err := c.send(cmdGetPin, n)
	switch {
	case err != nil:
		return false, err
	case status == AckBadPin:
		return false, ErrBadPin
	case status != AckOkay:
		return false, status
	}
	var level [1]byte
	if _, err := io.ReadFull(c.port, level[:]); err != nil {
		return false, fmt.Errorf("failed to read pin %d: %w", n, err)
	}
	return level[0] == 1, nil
}

var mcuNames = map[uint8]string{1: "STM32F1", 4: "AT32F4", 7: "STM32F7"}

// PrintStatus writes the firmware facts and the drive state to stdout.
func (c *Client) PrintStatus() {
	c.writeStatus(os.Stdout)
}

func (c *Client) writeStatus(w io.Writer) {
	info := c.info
	mcu, ok := mcuNames[info.Model]
	if !ok {
		mcu = fmt.Sprintf("model %d", info.Model)
	}
	speed := "Full Speed"
	if info.USBSpeed == 1 {
		speed = "High Speed"
	}
	fmt.Fprintf(w, "Greaseweazle Firmware Version: %d.%d\n", info.Major, info.Minor)
	fmt.Fprintf(w, "Serial Number: %s\n", c.serialNumber)
	fmt.Fprintf(w, "Sample Frequency: %.1f MHz\n", c.SampleFreq()/1e6)
	fmt.Fprintf(w, "Hardware Model: %d.%d, MCU %s at %d MHz, %d KB SRAM\n",
		info.Model, info.Submodel, mcu, info.MCUMHz, info.MCUSRAMKB)
	fmt.Fprintf(w, "USB: %s, %d KB buffer\n", speed, info.USBBufKB)

	if c.verbose {
		var bw bandwidth
		if err := c.query(infoBwStats, &bw); err != nil {
			c.log.WithError(err).Warn("no bandwidth statistics")
		} else {
			fmt.Fprintf(w, "Bandwidth: min %.2f MB/s, max %.2f MB/s\n",
				rate(bw.MinBytes, bw.MinUsecs), rate(bw.MaxBytes, bw.MaxUsecs))
		}
		for n := byte(1); n <= 34; n++ {
			high, err := c.pin(n)
			if errors.Is(err, ErrBadPin) {
				continue
			}
			if err != nil {
				fmt.Fprintf(w, "  Pin %d: %v\n", n, err)
				continue
			}
			level := "Low"
			if high {
				level = "High"
			}
			fmt.Fprintf(w, "  Pin %d: %s\n", n, level)
		}
	}

	connected := c.command(cmdReset) == nil &&
		c.command(cmdSetBusType, busIBMPC) == nil &&
		c.selectDrive(0) == nil &&
		c.Seek(0) == nil
	if !connected {
		fmt.Fprintln(w, "Floppy Drive: Not detected")
		return
	}
	fmt.Fprintln(w, "Floppy Drive: Connected")
	c.writeRotation(w)
}

// writeRotation measures one revolution of head 0.
func (c *Client) writeRotation(w io.Writer) {
	if c.SetHead(0) != nil || c.motor(0, true) != nil {
		return
	}
	defer c.motor(0, false)

	data, err := c.ReadFlux(0, 2)
	if err == nil {
		s, err := flux.Unpack(data, c.SampleFreq())
		if err == nil && len(s.Index) >= 2 {
			fmt.Fprintln(w, "Floppy Disk: Inserted")
			fmt.Fprintf(w, "Rotation Speed: %.1f RPM\n", s.RPM())
			return
		}
	}
	fmt.Fprintln(w, "Floppy Disk: Not inserted")
}
