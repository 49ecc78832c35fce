package adapter

import (
	"errors"
	"testing"

	"go.bug.st/serial/enumerator"

	"github.com/sergev/fluxtrack/flux"
)

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) ReadTrack(cyl, head, revs int) (flux.Sample, error) {
	return flux.Sample{}, nil
}

func (f *fakeAdapter) PrintStatus() {}

func (f *fakeAdapter) Close() error { return nil }

func factory(name string, fail bool) NewClientFunc {
	return func(port *enumerator.PortDetails, opts Options) (FluxAdapter, error) {
		if fail {
			return nil, errors.New("device busy")
		}
		id := name
		if port != nil {
			id += "@" + port.Name
		}
		return &fakeAdapter{name: id}, nil
	}
}

func TestFind(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "1209", PID: "4d69"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6015"},
	}

	testCases := []struct {
		name     string
		adapters []Info
		want     string
	}{
		{
			name: "serial match",
			adapters: []Info{
				{Name: "scp", VendorID: 0x0403, ProductID: 0x6015, Factory: factory("scp", false)},
			},
			want: "scp@/dev/ttyUSB0",
		},
		{
			name: "first port wins",
			adapters: []Info{
				{Name: "scp", VendorID: 0x0403, ProductID: 0x6015, Factory: factory("scp", false)},
				{Name: "gw", VendorID: 0x1209, ProductID: 0x4d69, Factory: factory("gw", false)},
			},
			want: "gw@/dev/ttyACM0",
		},
		{
			name: "failing factory skipped",
			adapters: []Info{
				{Name: "gw", VendorID: 0x1209, ProductID: 0x4d69, Factory: factory("gw", true)},
				{Name: "scp", VendorID: 0x0403, ProductID: 0x6015, Factory: factory("scp", false)},
			},
			want: "scp@/dev/ttyUSB0",
		},
		{
			name: "usb only after serial",
			adapters: []Info{
				{Name: "kf", Factory: factory("kf", false)},
				{Name: "gw", VendorID: 0x1209, ProductID: 0x4d69, Factory: factory("gw", true)},
			},
			want: "kf",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := find(tc.adapters, ports, Options{})
			if err != nil {
				t.Fatalf("find() returned error: %v", err)
			}
			if got := a.(*fakeAdapter).name; got != tc.want {
				t.Errorf("find() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFindNone(t *testing.T) {
	adapters := []Info{
		{Name: "kf", Factory: factory("kf", true)},
		{Name: "gw", VendorID: 0x1209, ProductID: 0x4d69, Factory: factory("gw", false)},
	}
	_, err := find(adapters, []*enumerator.PortDetails{{Name: "/dev/ttyS0"}}, Options{})
	if !errors.Is(err, ErrNoAdapter) {
		t.Errorf("find() error = %v, want ErrNoAdapter", err)
	}
}

func TestRegister(t *testing.T) {
	saved := registeredAdapters
	defer func() { registeredAdapters = saved }()
	registeredAdapters = nil

	RegisterAdapter("gw", 0x1209, 0x4d69, factory("gw", false))
	RegisterUSBAdapter("kf", factory("kf", false))

	got := Registered()
	if len(got) != 2 {
		t.Fatalf("Registered() returned %d adapters, want 2", len(got))
	}
	if got[0].Name != "gw" || got[0].VendorID != 0x1209 || got[0].ProductID != 0x4d69 {
		t.Errorf("Registered()[0] = %+v", got[0])
	}
	if got[1].Name != "kf" || got[1].VendorID != 0 || got[1].ProductID != 0 {
		t.Errorf("Registered()[1] = %+v", got[1])
	}
}
