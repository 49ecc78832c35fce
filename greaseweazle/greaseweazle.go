package greaseweazle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/sergev/fluxtrack/adapter"
)

const (
	VendorID  = 0x1209 // pid.codes open hardware
	ProductID = 0x4d69
)

// Command opcodes of the USB serial protocol.
const (
	cmdGetInfo       = 0
	cmdSeek          = 2
	cmdHead          = 3
	cmdMotor         = 6
	cmdReadFlux      = 7
	cmdGetFluxStatus = 9
	cmdSelect        = 12
	cmdDeselect      = 13
	cmdSetBusType    = 14
	cmdReset         = 16
	cmdGetPin        = 20
)

// Info pages of cmdGetInfo.
const (
	infoFirmware = 0
	infoBwStats  = 1
)

const busIBMPC = 1

// Ack is the status byte the device returns for every command.
type Ack byte

const (
	AckOkay Ack = iota
	AckBadCommand
	AckNoIndex
	AckNoTrack0
	AckFluxOverflow
	AckFluxUnderflow
	AckWriteProtected
	AckNoUnit
	AckNoBus
	AckBadUnit
	AckBadPin
	AckBadCylinder
)

var ackText = map[Ack]string{
	AckBadCommand:     "bad command",
	AckNoIndex:        "no index",
	AckNoTrack0:       "no track 0",
	AckFluxOverflow:   "flux overflow",
	AckFluxUnderflow:  "flux underflow",
	AckWriteProtected: "write protected",
	AckNoUnit:         "no unit",
	AckNoBus:          "no bus",
	AckBadUnit:        "invalid unit",
	AckBadPin:         "invalid pin",
	AckBadCylinder:    "invalid cylinder",
}

func (a Ack) Error() string {
	if text, ok := ackText[a]; ok {
		return "greaseweazle: " + text
	}
	return fmt.Sprintf("greaseweazle: status %d", byte(a))
}

// ErrBadPin is returned for pins the firmware cannot sense.
var ErrBadPin = errors.New("pin not supported")

// Port is the part of a serial port the client needs.
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
}

// FirmwareInfo is the packed reply to the firmware info page.
type FirmwareInfo struct {
	Major, Minor uint8
	Main         uint8 // Zero in the bootloader
	MaxCmd       uint8
	SampleFreq   uint32
	Model        uint8
	Submodel     uint8
	USBSpeed     uint8
	MCUID        uint8
	MCUMHz       uint16
	MCUSRAMKB    uint16
	USBBufKB     uint16
	_            [14]byte
}

// Client talks to a Greaseweazle over its serial port.
type Client struct {
	port         Port
	info         FirmwareInfo
	serialNumber string
	verbose      bool
	log          logrus.FieldLogger
}

func init() {
	adapter.RegisterAdapter("Greaseweazle", VendorID, ProductID, NewClient)
}

// NewClient opens the serial port of a Greaseweazle and prepares it for reading.
func NewClient(portDetails *enumerator.PortDetails, opts adapter.Options) (adapter.FluxAdapter, error) {
	port, err := serial.Open(portDetails.Name, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portDetails.Name, err)
	}
	client, err := newClient(port, portDetails.SerialNumber, opts, 100*time.Millisecond)
	if err != nil {
		port.Close()
		return nil, err
	}
	return client, nil
}

func newClient(port Port, serialNumber string, opts adapter.Options, settle time.Duration) (*Client, error) {
	c := &Client{
		port:         port,
		serialNumber: serialNumber,
		verbose:      opts.Verbose,
		log:          opts.Logger().WithField("adapter", "greaseweazle"),
	}

	if err := c.query(infoFirmware, &c.info); err != nil {
		return nil, fmt.Errorf("failed to fetch firmware info: %w", err)
	}
	if c.info.Main == 0 {
		return nil, errors.New("greaseweazle is in bootloader mode")
	}
	if c.info.SampleFreq == 0 {
		return nil, errors.New("greaseweazle reports zero sample frequency")
	}

	// A baud rate change resets the data stream.
	for _, baud := range []int{10000, 9600} {
		if err := port.SetMode(&serial.Mode{BaudRate: baud}); err != nil {
			return nil, fmt.Errorf("failed to set baud rate %d: %w", baud, err)
		}
		time.Sleep(settle)
	}

	if err := c.command(cmdSetBusType, busIBMPC); err != nil {
		return nil, fmt.Errorf("failed to set bus type: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"firmware": fmt.Sprintf("%d.%d", c.info.Major, c.info.Minor),
		"freq":     c.info.SampleFreq,
	}).Debug("adapter ready")
	return c, nil
}

// SampleFreq returns the flux sample clock in Hz.
func (c *Client) SampleFreq() float64 {
	return float64(c.info.SampleFreq)
}

// send writes one command and returns the status of its acknowledgement.
// Commands are framed as opcode, total length, arguments.
func (c *Client) send(op byte, args ...byte) (Ack, error) {
	frame := append([]byte{op, byte(2 + len(args))}, args...)
	if _, err := c.port.Write(frame); err != nil {
		return 0, fmt.Errorf("failed to write command %d: %w", op, err)
	}
	var ack [2]byte
	if _, err := io.ReadFull(c.port, ack[:]); err != nil {
		return 0, fmt.Errorf("failed to read acknowledgement of command %d: %w", op, err)
	}
	if ack[0] != op {
		return 0, fmt.Errorf("command %d acknowledged as %d (status %d)", op, ack[0], ack[1])
	}
	return Ack(ack[1]), nil
}

// command sends a command that must succeed.
func (c *Client) command(op byte, args ...byte) error {
	status, err := c.send(op, args...)
	if err != nil {
		return err
	}
	if status != AckOkay {
		return status
	}
	return nil
}

// query reads one info page into a fixed size little-endian record.
func (c *Client) query(page byte, v any) error {
	if err := c.command(cmdGetInfo, page); err != nil {
		return err
	}
	buf := make([]byte, binary.Size(v))
	if _, err := io.ReadFull(c.port, buf); err != nil {
		return fmt.Errorf("failed to read info page %d: %w", page, err)
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

// Seek moves the heads to a cylinder.
func (c *Client) Seek(cyl int) error {
	return c.command(cmdSeek, byte(cyl))
}

// SetHead selects the side to read.
func (c *Client) SetHead(head int) error {
	return c.command(cmdHead, byte(head))
}

func (c *Client) selectDrive(unit byte) error {
	return c.command(cmdSelect, unit)
}

func (c *Client) deselectDrive() error {
	return c.command(cmdDeselect)
}

func (c *Client) motor(unit byte, on bool) error {
	var state byte
	if on {
		state = 1
	}
	return c.command(cmdMotor, unit, state)
}

// Close closes the serial port.
func (c *Client) Close() error {
	return c.port.Close()
}
