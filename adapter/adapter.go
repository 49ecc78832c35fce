package adapter

import (
	"github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"

	"github.com/sergev/fluxtrack/flux"
)

// FluxAdapter defines the interface for USB flux capture devices
type FluxAdapter interface {
	// ReadTrack captures at least revs revolutions of one track,
	// with index pulse times attached to the sample.
	ReadTrack(cyl, head, revs int) (flux.Sample, error)

	// PrintStatus prints adapter status information to stdout
	PrintStatus()

	// Close releases the device
	Close() error
}

// Options are passed to every adapter factory.
type Options struct {
	Firmware string             // KryoFlux firmware image path
	Verbose  bool               // Extended status output
	Log      logrus.FieldLogger // Progress logger, may be nil
}

// Logger returns the configured logger or a discarding one.
func (o Options) Logger() logrus.FieldLogger {
	if o.Log != nil {
		return o.Log
	}
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// NewClientFunc is a function type that creates a new adapter client.
// portDetails is nil for adapters that are not serial ports.
type NewClientFunc func(portDetails *enumerator.PortDetails, opts Options) (FluxAdapter, error)
