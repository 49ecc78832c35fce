package greaseweazle

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"go.bug.st/serial"

	"github.com/sergev/fluxtrack/adapter"
	"github.com/sergev/fluxtrack/flux"
)

// fakeDevice answers commands the way the firmware does.
type fakeDevice struct {
	info     []byte         // GET_INFO firmware response
	flux     []byte         // READ_FLUX stream
	status   map[byte]Ack   // Status per command, default AckOkay
	commands [][]byte       // Everything written
	modes    []*serial.Mode // SetMode calls
	pending  bytes.Buffer
	chunk    int // Bytes per Read call
	closed   bool
}

func newFakeDevice(freq uint32, main bool) *fakeDevice {
	info := make([]byte, 32)
	info[0], info[1] = 1, 4
	if main {
		info[2] = 1
	}
	info[3] = cmdGetPin
	binary.LittleEndian.PutUint32(info[4:], freq)
	info[8] = 7
	return &fakeDevice{info: info, status: make(map[byte]Ack), chunk: 7}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	cmd := append([]byte(nil), p...)
	d.commands = append(d.commands, cmd)
	status := d.status[cmd[0]]
	d.pending.Write([]byte{cmd[0], byte(status)})
	if status != AckOkay {
		return len(p), nil
	}
	switch cmd[0] {
	case cmdGetInfo:
		d.pending.Write(d.info)
	case cmdReadFlux:
		d.pending.Write(d.flux)
	case cmdGetPin:
		d.pending.WriteByte(1)
	}
	return len(p), nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if d.pending.Len() == 0 {
		return 0, io.EOF
	}
	return d.pending.Read(p[:min(len(p), d.chunk)])
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDevice) SetMode(mode *serial.Mode) error {
	d.modes = append(d.modes, mode)
	return nil
}

func (d *fakeDevice) sent(cmd byte) [][]byte {
	var out [][]byte
	for _, c := range d.commands {
		if c[0] == cmd {
			out = append(out, c)
		}
	}
	return out
}

func TestNewClient(t *testing.T) {
	dev := newFakeDevice(flux.GreaseweazleFreq, true)
	c, err := newClient(dev, "GW123", adapter.Options{}, 0)
	if err != nil {
		t.Fatalf("newClient() returned error: %v", err)
	}

	if c.info.Major != 1 || c.info.Minor != 4 {
		t.Errorf("firmware = %d.%d, want 1.4", c.info.Major, c.info.Minor)
	}
	if c.SampleFreq() != flux.GreaseweazleFreq {
		t.Errorf("SampleFreq() = %v, want %v", c.SampleFreq(), float64(flux.GreaseweazleFreq))
	}
	if len(dev.modes) != 2 || dev.modes[0].BaudRate != 10000 || dev.modes[1].BaudRate != 9600 {
		t.Errorf("baud rate sequence wrong: %d calls", len(dev.modes))
	}
	if bus := dev.sent(cmdSetBusType); len(bus) != 1 || !bytes.Equal(bus[0], []byte{cmdSetBusType, 3, busIBMPC}) {
		t.Errorf("SET_BUS_TYPE commands = %x", bus)
	}

	if err := c.Close(); err != nil || !dev.closed {
		t.Errorf("Close() = %v, closed %v", err, dev.closed)
	}
}

func TestNewClientErrors(t *testing.T) {
	testCases := []struct {
		name string
		dev  *fakeDevice
		want string
	}{
		{"bootloader", newFakeDevice(flux.GreaseweazleFreq, false), "bootloader"},
		{"no clock", newFakeDevice(0, true), "sample frequency"},
		{"bus", func() *fakeDevice {
			d := newFakeDevice(flux.GreaseweazleFreq, true)
			d.status[cmdSetBusType] = AckBadCommand
			return d
		}(), "bad command"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newClient(tc.dev, "", adapter.Options{}, 0)
			if err == nil {
				t.Fatal("newClient() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("newClient() error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestReadTrack(t *testing.T) {
	want := flux.Sample{
		Intervals: []uint32{144, 216, 288, 144, 1000, 5000, 144},
		Freq:      flux.GreaseweazleFreq,
		Index:     []uint64{100, 6000},
	}
	dev := newFakeDevice(flux.GreaseweazleFreq, true)
	dev.flux = flux.Pack(want)
	c, err := newClient(dev, "", adapter.Options{}, 0)
	if err != nil {
		t.Fatalf("newClient() returned error: %v", err)
	}

	got, err := c.ReadTrack(40, 1, 1)
	if err != nil {
		t.Fatalf("ReadTrack() returned error: %v", err)
	}
	if got.Freq != want.Freq {
		t.Errorf("Freq = %v, want %v", got.Freq, want.Freq)
	}
	if len(got.Intervals) != len(want.Intervals) {
		t.Fatalf("intervals = %v, want %v", got.Intervals, want.Intervals)
	}
	for i := range want.Intervals {
		if got.Intervals[i] != want.Intervals[i] {
			t.Errorf("interval %d = %d, want %d", i, got.Intervals[i], want.Intervals[i])
		}
	}
	if len(got.Index) != 2 || got.Index[0] != 100 || got.Index[1] != 6000 {
		t.Errorf("index = %v, want [100 6000]", got.Index)
	}

	checks := []struct {
		cmd  byte
		want []byte
	}{
		{cmdSelect, []byte{cmdSelect, 3, 0}},
		{cmdSeek, []byte{cmdSeek, 3, 40}},
		{cmdHead, []byte{cmdHead, 3, 1}},
		{cmdReadFlux, []byte{cmdReadFlux, 8, 0, 0, 0, 0, 2, 0}},
	}
	for _, check := range checks {
		sent := dev.sent(check.cmd)
		if len(sent) != 1 || !bytes.Equal(sent[0], check.want) {
			t.Errorf("command %d sent as %x, want %x", check.cmd, sent, check.want)
		}
	}
	motor := dev.sent(cmdMotor)
	if len(motor) != 2 || motor[0][3] != 1 || motor[1][3] != 0 {
		t.Errorf("motor commands = %x, want on then off", motor)
	}
}

func TestReadTrackErrors(t *testing.T) {
	testCases := []struct {
		name   string
		cmd    byte
		status Ack
		want   string
	}{
		{"seek", cmdSeek, AckNoTrack0, "no track 0"},
		{"read", cmdReadFlux, AckNoIndex, "no index"},
		{"status", cmdGetFluxStatus, AckFluxOverflow, "overflow"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dev := newFakeDevice(flux.GreaseweazleFreq, true)
			dev.flux = flux.Pack(flux.Sample{Intervals: []uint32{100}})
			c, err := newClient(dev, "", adapter.Options{}, 0)
			if err != nil {
				t.Fatalf("newClient() returned error: %v", err)
			}
			dev.status[tc.cmd] = tc.status
			_, err = c.ReadTrack(0, 0, 1)
			if err == nil {
				t.Fatal("ReadTrack() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("ReadTrack() error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestReadFluxUnterminated(t *testing.T) {
	dev := newFakeDevice(flux.GreaseweazleFreq, true)
	dev.flux = []byte{100, 100, 100}
	c, err := newClient(dev, "", adapter.Options{}, 0)
	if err != nil {
		t.Fatalf("newClient() returned error: %v", err)
	}
	if _, err := c.ReadFlux(0, 2); err == nil {
		t.Error("ReadFlux() of an unterminated stream: expected error")
	}
}

func TestGetPinValue(t *testing.T) {
	dev := newFakeDevice(flux.GreaseweazleFreq, true)
	c, err := newClient(dev, "", adapter.Options{}, 0)
	if err != nil {
		t.Fatalf("newClient() returned error: %v", err)
	}
	high, err := c.pin(26)
	if err != nil || !high {
		t.Errorf("pin(26) = %v, %v, want true", high, err)
	}

	dev.status[cmdGetPin] = AckBadPin
	if _, err := c.pin(3); err != ErrBadPin {
		t.Errorf("pin(3) error = %v, want ErrBadPin", err)
	}
}

func TestWriteStatus(t *testing.T) {
	dev := newFakeDevice(flux.GreaseweazleFreq, true)
	dev.flux = flux.Pack(flux.Sample{
		Intervals: []uint32{1000, 14400000, 1000},
		Index:     []uint64{500, 14400500},
	})
	c, err := newClient(dev, "GW42", adapter.Options{}, 0)
	if err != nil {
		t.Fatalf("newClient() returned error: %v", err)
	}

	var out bytes.Buffer
	c.writeStatus(&out)
	for _, want := range []string{
		"Firmware Version: 1.4",
		"Serial Number: GW42",
		"Sample Frequency: 72.0 MHz",
		"MCU STM32F7",
		"Floppy Drive: Connected",
		"Rotation Speed: 300.0 RPM",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output lacks %q:\n%s", want, out.String())
		}
	}

	dev.status[cmdSeek] = AckNoTrack0
	out.Reset()
	c.writeStatus(&out)
	if !strings.Contains(out.String(), "Floppy Drive: Not detected") {
		t.Errorf("status without a drive:\n%s", out.String())
	}
}
