package supercardpro

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/sergev/fluxtrack/adapter"
)

// fakeDevice answers command packets.
type fakeDevice struct {
	info    []byte        // flux info reply
	ram     []byte        // Flux RAM
	status  map[byte]byte // Status per command, default OK
	packets [][]byte
	pending bytes.Buffer
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{status: make(map[byte]byte)}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	packet := append([]byte(nil), p...)
	d.packets = append(d.packets, packet)
	cmd := packet[0]
	status, ok := d.status[cmd]
	if !ok {
		status = statusOK
	}
	if checksum(packet[:len(packet)-1]) != packet[len(packet)-1] {
		status = 0x01
	}
	if cmd == cmdSendRAM && status == statusOK {
		length := binary.BigEndian.Uint32(packet[6:10])
		d.pending.Write(d.ram[:length])
	}
	d.pending.Write([]byte{cmd, status})
	if status != statusOK {
		return len(p), nil
	}
	switch cmd {
	case cmdGetFluxInfo:
		d.pending.Write(d.info)
	case cmdInfo:
		d.pending.Write([]byte{0x14, 0x22})
	}
	return len(p), nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if d.pending.Len() == 0 {
		return 0, io.EOF
	}
	return d.pending.Read(p)
}

func (d *fakeDevice) Close() error { return nil }

func (d *fakeDevice) commands() []byte {
	var out []byte
	for _, p := range d.packets {
		out = append(out, p[0])
	}
	return out
}

// load fills the device with flux words and per-revolution info.
func (d *fakeDevice) load(words []uint16, revs ...FluxInfo) {
	d.ram = make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(d.ram[2*i:], w)
	}
	d.info = make([]byte, 8*maxRevs)
	for i, r := range revs {
		binary.BigEndian.PutUint32(d.info[8*i:], r.IndexTime)
		binary.BigEndian.PutUint32(d.info[8*i+4:], r.NrBitcells)
	}
}

func TestChecksum(t *testing.T) {
	if got := checksum([]byte{cmdSelectA, 0}); got != 0xca {
		t.Errorf("checksum(SELA) = 0x%02x, want 0xca", got)
	}
	if got := checksum([]byte{cmdSide, 1, 1}); got != 0xd9 {
		t.Errorf("checksum(SIDE 1) = 0x%02x, want 0xd9", got)
	}
}

func TestFluxDataSample(t *testing.T) {
	fd := &FluxData{
		Info: [maxRevs]FluxInfo{{IndexTime: 600, NrBitcells: 3}, {IndexTime: 65736, NrBitcells: 3}},
	}
	words := []uint16{80, 120, 400, 0, 200, 64000, 9999}
	fd.Data = make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(fd.Data[2*i:], w)
	}

	testCases := []struct {
		name      string
		revs      int
		intervals []uint32
		index     []uint64
	}{
		{"one", 1, []uint32{80, 120, 400}, []uint64{0, 600}},
		{"two", 2, []uint32{80, 120, 400, 0x10000 + 200, 64000}, []uint64{0, 600, 66336}},
		{"more than captured", 5, []uint32{80, 120, 400, 0x10000 + 200, 64000}, []uint64{0, 600, 66336}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := fd.Sample(tc.revs)
			if err != nil {
				t.Fatalf("Sample() returned error: %v", err)
			}
			if s.Freq != SampleFreq {
				t.Errorf("Freq = %v, want %v", s.Freq, SampleFreq)
			}
			if len(s.Intervals) != len(tc.intervals) {
				t.Fatalf("intervals = %v, want %v", s.Intervals, tc.intervals)
			}
			for i := range tc.intervals {
				if s.Intervals[i] != tc.intervals[i] {
					t.Errorf("interval %d = %d, want %d", i, s.Intervals[i], tc.intervals[i])
				}
			}
			if len(s.Index) != len(tc.index) {
				t.Fatalf("index = %v, want %v", s.Index, tc.index)
			}
			for i := range tc.index {
				if s.Index[i] != tc.index[i] {
					t.Errorf("index %d = %d, want %d", i, s.Index[i], tc.index[i])
				}
			}
		})
	}
}

func TestFluxDataSampleErrors(t *testing.T) {
	testCases := []struct {
		name string
		fd   FluxData
	}{
		{"no index", FluxData{Data: []byte{0, 80}}},
		{"short buffer", FluxData{Info: [maxRevs]FluxInfo{{IndexTime: 100, NrBitcells: 2}}, Data: []byte{0, 80}}},
		{"only overflow", FluxData{Info: [maxRevs]FluxInfo{{IndexTime: 100, NrBitcells: 1}}, Data: []byte{0, 0}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.fd.Sample(1); err == nil {
				t.Error("Sample() expected error, got nil")
			}
		})
	}
}

func TestReadTrack(t *testing.T) {
	dev := newFakeDevice()
	// Revolution of 8000000 ticks is 0.2s at 40MHz.
	dev.load([]uint16{160, 240, 320, 160, 99}, FluxInfo{IndexTime: 8000000, NrBitcells: 4})
	c := newClient(dev, "SCP1", adapter.Options{}, 0)

	s, err := c.ReadTrack(5, 1, 1)
	if err != nil {
		t.Fatalf("ReadTrack() returned error: %v", err)
	}
	if len(s.Intervals) != 4 || s.Intervals[3] != 160 {
		t.Errorf("intervals = %v, want 4 ending with 160", s.Intervals)
	}
	if rpm := s.RPM(); rpm != 300 {
		t.Errorf("RPM() = %v, want 300", rpm)
	}

	want := []byte{
		cmdSelectA, cmdMotorAOn, cmdStepTo, cmdSide,
		cmdReadFlux, cmdGetFluxInfo, cmdSendRAM,
		cmdMotorAOff, cmdDeselectA,
	}
	if got := dev.commands(); !bytes.Equal(got, want) {
		t.Errorf("commands = %x, want %x", got, want)
	}
	if p := dev.packets[2]; p[2] != 5 {
		t.Errorf("STEPTO cylinder = %d, want 5", p[2])
	}
	if p := dev.packets[4]; p[2] != 1 || p[3] != 1 {
		t.Errorf("READFLUX arguments = %x, want 01 01", p[2:4])
	}
	if p := dev.packets[6]; binary.BigEndian.Uint32(p[6:10]) != 8 {
		t.Errorf("SENDRAM length = %d, want 8", binary.BigEndian.Uint32(p[6:10]))
	}
}

func TestReadTrackCylinderZero(t *testing.T) {
	dev := newFakeDevice()
	dev.load([]uint16{160}, FluxInfo{IndexTime: 200, NrBitcells: 1})
	c := newClient(dev, "", adapter.Options{}, 0)

	if _, err := c.ReadTrack(0, 0, 9); err != nil {
		t.Fatalf("ReadTrack() returned error: %v", err)
	}
	cmds := dev.commands()
	if cmds[2] != cmdSeek0 {
		t.Errorf("seek command = 0x%02x, want SEEK0", cmds[2])
	}
	if p := dev.packets[4]; p[2] != maxRevs {
		t.Errorf("READFLUX revolutions = %d, want %d", p[2], maxRevs)
	}
}

func TestReadTrackErrors(t *testing.T) {
	dev := newFakeDevice()
	dev.load([]uint16{160}, FluxInfo{IndexTime: 200, NrBitcells: 1})
	dev.status[cmdReadFlux] = 0x11
	c := newClient(dev, "", adapter.Options{}, 0)

	_, err := c.ReadTrack(3, 0, 1)
	if err == nil {
		t.Fatal("ReadTrack() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status 0x11") {
		t.Errorf("ReadTrack() error = %v, want it to mention the status", err)
	}
	// The drive is released after a failure.
	cmds := dev.commands()
	if cmds[len(cmds)-1] != cmdDeselectA {
		t.Errorf("last command = 0x%02x, want DSELA", cmds[len(cmds)-1])
	}
}

func TestInfo(t *testing.T) {
	c := newClient(newFakeDevice(), "", adapter.Options{}, 0)
	info, err := c.info()
	if err != nil {
		t.Fatalf("info() returned error: %v", err)
	}
	if info.Hardware.String() != "1.4" || info.Firmware.String() != "2.2" {
		t.Errorf("info() = hw %v, fw %v, want hw 1.4, fw 2.2", info.Hardware, info.Firmware)
	}
}

func TestWriteStatus(t *testing.T) {
	dev := newFakeDevice()
	dev.load([]uint16{160, 240}, FluxInfo{IndexTime: 8000000, NrBitcells: 2})
	c := newClient(dev, "SCP7", adapter.Options{}, 0)

	var out bytes.Buffer
	c.writeStatus(&out)
	for _, want := range []string{
		"Hardware Version: 1.4",
		"Firmware Version: 2.2",
		"Serial Number: SCP7",
		"Floppy Drive: Connected",
		"Rotation Speed: 300.0 RPM",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output lacks %q:\n%s", want, out.String())
		}
	}

	dev.status[cmdSeek0] = 0x02
	out.Reset()
	c.writeStatus(&out)
	if !strings.Contains(out.String(), "Floppy Drive: Disconnected") {
		t.Errorf("status without a drive:\n%s", out.String())
	}
}
