package mfm

import "fmt"

// Mode selects the modulation of a track.
type Mode int

const (
	MFM Mode = iota // Clock cell suppressed next to a one
	FM              // Clock cell before every data cell
)

// ParseMode converts "mfm" or "fm" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "mfm", "MFM":
		return MFM, nil
	case "fm", "FM":
		return FM, nil
	}
	return MFM, fmt.Errorf("unknown modulation %q", s)
}

func (m Mode) String() string {
	if m == FM {
		return "fm"
	}
	return "mfm"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
