package kryoflux

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	VendorID  = 0x03eb
	ProductID = 0x6124

	usbInterface    = 1
	endpointBulkOut = 0x01
	endpointBulkIn  = 0x82

	// Vendor request, device to host, recipient other.
	controlRequestType = 0xc3
)

// usbTransport holds the claimed interface of the device.
type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

// openUSB claims the interface of the first attached KryoFlux.
// Claiming is retried while the device re-enumerates.
func openUSB(retries int) (transport, error) {
	t := &usbTransport{ctx: gousb.NewContext()}
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == VendorID && uint16(desc.Product) == ProductID
	})
	if len(devs) > 0 {
		t.dev = devs[0]
		for _, d := range devs[1:] {
			d.Close()
		}
	}
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if t.dev == nil {
		t.Close()
		return nil, fmt.Errorf("KryoFlux device not found (VID=0x%04X PID=0x%04X)", VendorID, ProductID)
	}

	if t.cfg, err = t.dev.Config(1); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to get USB config: %w", err)
	}
	for retry := 0; ; retry++ {
		t.intf, err = t.cfg.Interface(usbInterface, 0)
		if err == nil || retry >= retries {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to claim interface %d: %w", usbInterface, err)
	}
	if t.out, err = t.intf.OutEndpoint(endpointBulkOut); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to open bulk out endpoint: %w", err)
	}
	if t.in, err = t.intf.InEndpoint(endpointBulkIn); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to open bulk in endpoint: %w", err)
	}
	return t, nil
}

func (t *usbTransport) Control(request uint8, index uint16, data []byte) (int, error) {
	return t.dev.Control(controlRequestType, request, 0, index, data)
}

func (t *usbTransport) Read(p []byte) (int, error) {
	return t.in.Read(p)
}

func (t *usbTransport) Write(p []byte) (int, error) {
	return t.out.Write(p)
}

func (t *usbTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.cfg != nil {
		t.cfg.Close()
	}
	if t.dev != nil {
		t.dev.Close()
	}
	return t.ctx.Close()
}
