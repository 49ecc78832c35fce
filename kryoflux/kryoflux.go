package kryoflux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"

	"github.com/sergev/fluxtrack/adapter"
)

// Vendor control requests.
const (
	requestReset    = 0x05
	requestDevice   = 0x06
	requestMotor    = 0x07
	requestDensity  = 0x08
	requestSide     = 0x09
	requestTrack    = 0x0a
	requestStream   = 0x0b
	requestMinTrack = 0x0c
	requestMaxTrack = 0x0d
	requestStatus   = 0x80
	requestInfo     = 0x81
)

// streamOn starts streaming; zero stops it.
const streamOn = 0x601

// Default clocks in Hz.
const (
	DefaultSampleClock = 24027428.57142857
	DefaultIndexClock  = 3003428.5714285625
)

// ErrNoFirmware is returned when the device needs a firmware upload
// and no firmware image is configured.
var ErrNoFirmware = errors.New("kryoflux firmware image not configured")

// transport is the USB side of the device: vendor control requests
// and the bulk endpoints.
type transport interface {
	Control(request uint8, index uint16, data []byte) (int, error)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// opener connects to the device, retrying while it re-enumerates.
type opener func(retries int) (transport, error)

// Client drives a KryoFlux over USB.
type Client struct {
	usb  transport
	info []string // Replies to the info requests
	log  logrus.FieldLogger
}

func init() {
	adapter.RegisterUSBAdapter("KryoFlux", NewClient)
}

// NewClient opens the KryoFlux, uploading the firmware image from
// opts.Firmware when the device is still in its bootloader.
// KryoFlux is not a serial device, so portDetails is unused.
func NewClient(portDetails *enumerator.PortDetails, opts adapter.Options) (adapter.FluxAdapter, error) {
	c, err := newClient(openUSB, opts, time.Second)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(open opener, opts adapter.Options, reboot time.Duration) (*Client, error) {
	log := opts.Logger().WithField("adapter", "kryoflux")
	usb, err := open(0)
	if err != nil {
		return nil, err
	}
	c := &Client{usb: usb, log: log}

	if !c.firmwarePresent() {
		if err := c.boot(opts.Firmware); err != nil {
			c.Close()
			return nil, err
		}
		c.Close()
		time.Sleep(reboot)
		if c.usb, err = open(25); err != nil {
			return nil, fmt.Errorf("after firmware upload: %w", err)
		}
		if !c.firmwarePresent() {
			c.Close()
			return nil, errors.New("firmware not present after upload")
		}
	}

	if err := c.reset(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to reset device: %w", err)
	}
	return c, nil
}

// boot uploads and starts the firmware image at path.
func (c *Client) boot(path string) error {
	if path == "" {
		return ErrNoFirmware
	}
	fw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read firmware: %w", err)
	}
	c.log.WithField("bytes", len(fw)).Info("uploading KryoFlux firmware")
	if err := c.uploadFirmware(fw); err != nil {
		return fmt.Errorf("failed to upload firmware: %w", err)
	}
	return nil
}

// control issues a vendor request. Replies are text such as
// "index=3, ..." whose number echoes the low byte of index.
func (c *Client) control(request byte, index uint16) (string, error) {
	buf := make([]byte, 512)
	n, err := c.usb.Control(request, index, buf)
	if err != nil {
		return "", fmt.Errorf("request 0x%02x: %w", request, err)
	}
	reply := string(buf[:min(n, len(buf))])
	if value, ok := replyValue(reply); ok && value != int(index&0xff) {
		return "", fmt.Errorf("request 0x%02x answered %d for index %d", request, value, index&0xff)
	}
	return reply, nil
}

// replyValue returns the number after the first '='.
func replyValue(reply string) (int, bool) {
	_, after, found := strings.Cut(reply, "=")
	if !found {
		return 0, false
	}
	after = strings.TrimSpace(after)
	digits := strings.IndexFunc(after, func(r rune) bool { return r < '0' || r > '9' })
	if digits < 0 {
		digits = len(after)
	}
	value, err := strconv.Atoi(after[:digits])
	if err != nil {
		return -1, true
	}
	return value, true
}

// firmwarePresent polls the status request until two answers agree.
func (c *Client) firmwarePresent() bool {
	_, err := c.control(requestStatus, 0)
	last := err == nil
	for i := 0; i < 10; i++ {
		_, err := c.control(requestStatus, 0)
		if present := err == nil; present != last {
			last = present
			continue
		}
		break
	}
	return last
}

func (c *Client) reset() error {
	if _, err := c.control(requestReset, 0); err != nil {
		return err
	}
	c.info = c.info[:0]
	for index := uint16(1); index <= 2; index++ {
		reply, err := c.control(requestInfo, index)
		if err != nil {
			return err
		}
		c.info = append(c.info, strings.TrimRight(strings.TrimSpace(reply), "\x00"))
	}
	return nil
}

// configure selects the drive, density and the track range.
func (c *Client) configure(device, density, minTrack, maxTrack int) error {
	for _, s := range []struct {
		request byte
		value   int
	}{
		{requestDevice, device},
		{requestDensity, density},
		{requestMinTrack, minTrack},
		{requestMaxTrack, maxTrack},
	} {
		if _, err := c.control(s.request, uint16(s.value)); err != nil {
			return fmt.Errorf("failed to configure: %w", err)
		}
	}
	return nil
}

// motorOn spins the drive and positions the head.
func (c *Client) motorOn(side, track int) error {
	for _, s := range []struct {
		request byte
		value   int
	}{
		{requestMotor, 1},
		{requestSide, side},
		{requestTrack, track},
	} {
		if _, err := c.control(s.request, uint16(s.value)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) motorOff() error {
	_, err := c.control(requestMotor, 0)
	return err
}

// PrintStatus writes the device info and the drive state to stdout.
func (c *Client) PrintStatus() {
	c.writeStatus(os.Stdout)
}

func (c *Client) writeStatus(w io.Writer) {
	fmt.Fprintln(w, "KryoFlux Adapter Info:")
	for _, line := range c.info {
		fmt.Fprintln(w, line)
	}

	// Drive 0 is connected when the head reaches track 0.
	if err := c.configure(0, 0, 0, 0); err != nil {
		fmt.Fprintln(w, "Floppy Drive: Not detected")
		return
	}
	defer c.motorOff()
	if err := c.motorOn(0, 0); err != nil {
		fmt.Fprintln(w, "Floppy Drive: Not detected")
		return
	}
	fmt.Fprintln(w, "Floppy Drive: Connected")

	data, err := c.captureStream(1)
	if err == nil {
		st, err := ParseStream(data)
		if err == nil && len(st.Index) >= 2 {
			fmt.Fprintln(w, "Floppy Disk: Inserted")
			fmt.Fprintf(w, "Rotation Speed: %.1f RPM\n", st.RPM())
			return
		}
	}
	fmt.Fprintln(w, "Floppy Disk: Not inserted")
}

// Close releases the USB device.
func (c *Client) Close() error {
	return c.usb.Close()
}
