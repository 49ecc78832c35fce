package supercardpro

import (
	"fmt"
	"io"
	"os"
)

// Version is a major.minor pair packed into one byte.
type Version byte

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v>>4, v&0x0f)
}

// Info is the reply to the info command.
type Info struct {
	Hardware Version
	Firmware Version
}

func (c *Client) info() (Info, error) {
	var reply [2]byte
	if err := c.query(cmdInfo, reply[:]); err != nil {
		return Info{}, err
	}
	return Info{Hardware: Version(reply[0]), Firmware: Version(reply[1])}, nil
}

// PrintStatus writes the versions and the drive state to stdout.
func (c *Client) PrintStatus() {
	c.writeStatus(os.Stdout)
}

func (c *Client) writeStatus(w io.Writer) {
	if info, err := c.info(); err != nil {
		c.log.WithError(err).Warn("no version info")
		fmt.Fprintln(w, "SuperCard Pro Firmware Version: Unknown")
	} else {
		fmt.Fprintf(w, "SuperCard Pro Hardware Version: %v\n", info.Hardware)
		fmt.Fprintf(w, "Firmware Version: %v\n", info.Firmware)
	}
	fmt.Fprintf(w, "Serial Number: %s\n", c.serialNumber)

	// A drive that finds track 0 and spins is connected.
	s, err := c.ReadTrack(0, 0, 1)
	if err != nil {
		c.log.WithError(err).Debug("drive check failed")
		fmt.Fprintln(w, "Floppy Drive: Disconnected")
		return
	}
	fmt.Fprintln(w, "Floppy Drive: Connected")
	if rpm := s.RPM(); rpm > 0 {
		fmt.Fprintf(w, "Rotation Speed: %.1f RPM\n", rpm)
	}
}
