package supercardpro

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/sergev/fluxtrack/adapter"
)

const (
	VendorID  = 0x0403 // FTDI
	ProductID = 0x6015
)

// Command opcodes.
const (
	cmdSelectA     = 0x80
	cmdSelectB     = 0x81
	cmdDeselectA   = 0x82
	cmdDeselectB   = 0x83
	cmdMotorAOn    = 0x84
	cmdMotorBOn    = 0x85
	cmdMotorAOff   = 0x86
	cmdMotorBOff   = 0x87
	cmdSeek0       = 0x88
	cmdStepTo      = 0x89
	cmdSide        = 0x8d
	cmdReadFlux    = 0xa0
	cmdGetFluxInfo = 0xa1
	cmdSendRAM     = 0xa9
	cmdInfo        = 0xd0
)

// statusOK acknowledges a successful command.
const statusOK = 0x4f

// drive holds the opcodes that control one of the two drives.
type drive struct {
	sel, desel, motorOn, motorOff byte
}

var drives = [2]drive{
	{cmdSelectA, cmdDeselectA, cmdMotorAOn, cmdMotorAOff},
	{cmdSelectB, cmdDeselectB, cmdMotorBOn, cmdMotorBOff},
}

// StatusError is a command the device refused.
type StatusError struct {
	Cmd, Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supercardpro: command 0x%02x failed with status 0x%02x", e.Cmd, e.Status)
}

// Port is the part of a serial port the client needs.
type Port interface {
	io.ReadWriteCloser
}

// Client talks to a SuperCard Pro over its FTDI serial port.
type Client struct {
	port         Port
	serialNumber string
	settle       time.Duration // Head settle time after a seek
	log          logrus.FieldLogger
}

func init() {
	adapter.RegisterAdapter("SuperCard Pro", VendorID, ProductID, NewClient)
}

// NewClient opens the serial port of a SuperCard Pro.
func NewClient(portDetails *enumerator.PortDetails, opts adapter.Options) (adapter.FluxAdapter, error) {
	port, err := serial.Open(portDetails.Name, &serial.Mode{BaudRate: 38400})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portDetails.Name, err)
	}
	return newClient(port, portDetails.SerialNumber, opts, 20*time.Millisecond), nil
}

func newClient(port Port, serialNumber string, opts adapter.Options, settle time.Duration) *Client {
	return &Client{
		port:         port,
		serialNumber: serialNumber,
		settle:       settle,
		log:          opts.Logger().WithField("adapter", "supercardpro"),
	}
}

// checksum of a packet is 0x4a plus the sum of its bytes.
func checksum(packet []byte) byte {
	sum := byte(0x4a)
	for _, b := range packet {
		sum += b
	}
	return sum
}

// send writes a packet of opcode, length, args and checksum.
func (c *Client) send(op byte, args ...byte) error {
	if len(args) > 255 {
		return fmt.Errorf("command 0x%02x: %d argument bytes", op, len(args))
	}
	packet := append([]byte{op, byte(len(args))}, args...)
	packet = append(packet, checksum(packet))
	if _, err := c.port.Write(packet); err != nil {
		return fmt.Errorf("failed to write command 0x%02x: %w", op, err)
	}
	return nil
}

// ack reads the echoed opcode and status of a command.
func (c *Client) ack(op byte) error {
	var reply [2]byte
	if _, err := io.ReadFull(c.port, reply[:]); err != nil {
		return fmt.Errorf("failed to read status of command 0x%02x: %w", op, err)
	}
	if reply[0] != op {
		return fmt.Errorf("command 0x%02x echoed as 0x%02x", op, reply[0])
	}
	if reply[1] != statusOK {
		return &StatusError{Cmd: op, Status: reply[1]}
	}
	return nil
}

func (c *Client) command(op byte, args ...byte) error {
	if err := c.send(op, args...); err != nil {
		return err
	}
	return c.ack(op)
}

// query runs a command whose reply follows the status.
func (c *Client) query(op byte, reply []byte) error {
	if err := c.command(op); err != nil {
		return err
	}
	if _, err := io.ReadFull(c.port, reply); err != nil {
		return fmt.Errorf("failed to read reply to command 0x%02x: %w", op, err)
	}
	return nil
}

// readRAM fetches device memory, which arrives ahead of the status.
func (c *Client) readRAM(offset uint32, data []byte) error {
	args := binary.BigEndian.AppendUint32(nil, offset)
	args = binary.BigEndian.AppendUint32(args, uint32(len(data)))
	if err := c.send(cmdSendRAM, args...); err != nil {
		return err
	}
	if _, err := io.ReadFull(c.port, data); err != nil {
		return fmt.Errorf("failed to read %d bytes of RAM: %w", len(data), err)
	}
	return c.ack(cmdSendRAM)
}

// selectDrive selects a drive and starts its motor.
func (c *Client) selectDrive(unit int) error {
	d := drives[unit]
	if err := c.command(d.sel); err != nil {
		return fmt.Errorf("failed to select drive %d: %w", unit, err)
	}
	if err := c.command(d.motorOn); err != nil {
		return fmt.Errorf("failed to start motor of drive %d: %w", unit, err)
	}
	return nil
}

// deselectDrive stops the motor and releases a drive.
func (c *Client) deselectDrive(unit int) error {
	d := drives[unit]
	if err := c.command(d.motorOff); err != nil {
		return fmt.Errorf("failed to stop motor of drive %d: %w", unit, err)
	}
	if err := c.command(d.desel); err != nil {
		return fmt.Errorf("failed to deselect drive %d: %w", unit, err)
	}
	return nil
}

// seekTrack moves the heads to a cylinder and selects the side.
func (c *Client) seekTrack(cyl, head int) error {
	var err error
	if cyl == 0 {
		err = c.command(cmdSeek0)
	} else {
		err = c.command(cmdStepTo, byte(cyl))
	}
	if err != nil {
		return fmt.Errorf("failed to seek to cylinder %d: %w", cyl, err)
	}
	if err := c.command(cmdSide, byte(head)); err != nil {
		return fmt.Errorf("failed to select side %d: %w", head, err)
	}
	time.Sleep(c.settle)
	return nil
}

// Close closes the serial port.
func (c *Client) Close() error {
	return c.port.Close()
}
