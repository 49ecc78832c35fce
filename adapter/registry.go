package adapter

import (
	"errors"
	"fmt"
	"strconv"

	"go.bug.st/serial/enumerator"
)

// ErrNoAdapter is returned by Find when no registered device answers.
var ErrNoAdapter = errors.New("no supported USB flux adapter found")

// Info contains information about an adapter type
type Info struct {
	Name      string
	VendorID  uint16
	ProductID uint16
	Factory   NewClientFunc
}

var registeredAdapters []Info

// RegisterAdapter registers a serial port adapter factory with its VID/PID
func RegisterAdapter(name string, vendorID, productID uint16, factory NewClientFunc) {
	registeredAdapters = append(registeredAdapters, Info{
		Name:      name,
		VendorID:  vendorID,
		ProductID: productID,
		Factory:   factory,
	})
}

// RegisterUSBAdapter registers an adapter that doesn't use serial ports
func RegisterUSBAdapter(name string, factory NewClientFunc) {
	registeredAdapters = append(registeredAdapters, Info{
		Name:    name,
		Factory: factory,
	})
}

// Registered returns the registered adapter types in registration order.
func Registered() []Info {
	return append([]Info(nil), registeredAdapters...)
}

// Find opens the first registered adapter that is attached.
func Find(opts Options) (FluxAdapter, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return find(registeredAdapters, ports, opts)
}

// find tries serial adapters on matching ports first, then USB-only ones.
func find(adapters []Info, ports []*enumerator.PortDetails, opts Options) (FluxAdapter, error) {
	log := opts.Logger()
	for _, port := range ports {
		portVID, err := strconv.ParseUint(port.VID, 16, 16)
		if err != nil {
			continue
		}
		portPID, err := strconv.ParseUint(port.PID, 16, 16)
		if err != nil {
			continue
		}
		for _, info := range adapters {
			if info.VendorID == 0 && info.ProductID == 0 {
				continue
			}
			if uint16(portVID) != info.VendorID || uint16(portPID) != info.ProductID {
				continue
			}
			a, err := info.Factory(port, opts)
			if err != nil {
				log.WithError(err).WithField("port", port.Name).Warnf("%s not usable", info.Name)
				continue
			}
			log.WithField("port", port.Name).Debugf("found %s", info.Name)
			return a, nil
		}
	}

	for _, info := range adapters {
		if info.VendorID != 0 || info.ProductID != 0 {
			continue
		}
		a, err := info.Factory(nil, opts)
		if err != nil {
			log.WithError(err).Debugf("%s not usable", info.Name)
			continue
		}
		log.Debugf("found %s", info.Name)
		return a, nil
	}
	return nil, ErrNoAdapter
}
