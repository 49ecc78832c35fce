package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/hfe"
	"github.com/sergev/fluxtrack/kryoflux"
	"github.com/sergev/fluxtrack/mfm"
	"github.com/sergev/fluxtrack/track"
)

var mkfluxFlags struct {
	format       formatFlags
	output       string
	cyl, head    int
	data         string
	pattern      string
	corruptCRC   []int
	corruptIDCRC []int
	drop         []int
	ticksPerCell int
}

var mkfluxCmd = &cobra.Command{
	Use:   "mkflux [flags] OUT",
	Short: "Encode a standard track as flux",
	Long: `Encode the sectors of one track and write the result as flux intervals,
a bit raster, a greasepack or KryoFlux stream, or an HFE image holding every
track of the format. Sector data come from --data, or from --pattern repeated.
A --data file larger than one track is taken as a disk image.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := mkfluxFlags.format.resolve()
		if err != nil {
			return err
		}
		data, err := mkfluxPayload(f)
		if err != nil {
			return err
		}
		damage := track.Damage{
			CorruptCRC:   mkfluxFlags.corruptCRC,
			CorruptIDCRC: mkfluxFlags.corruptIDCRC,
			Drop:         mkfluxFlags.drop,
		}

		if mkfluxFlags.output == kindHFE {
			return writeHFEImage(args[0], f, data, damage)
		}

		cyl, head := mkfluxFlags.cyl, mkfluxFlags.head
		cells, err := track.EncodeDamaged(f, cyl, head, trackPayload(f, data, cyl, head), damage)
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if err := writeTrack(&out, cmd, f, cells); err != nil {
			return err
		}
		if err := os.WriteFile(args[0], out.Bytes(), 0644); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"file":   args[0],
			"output": mkfluxFlags.output,
			"cells":  cells.Len(),
		}).Info("track written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mkfluxCmd)
	mkfluxFlags.format.register(mkfluxCmd.Flags())
	f := mkfluxCmd.Flags()
	f.StringVar(&mkfluxFlags.output, "output", kindIntervals, "output kind: intervals, raster, greasepack, kryoflux or hfe")
	f.IntVar(&mkfluxFlags.cyl, "cyl", 0, "cylinder number of the track")
	f.IntVar(&mkfluxFlags.head, "head", 0, "head number of the track")
	f.StringVar(&mkfluxFlags.data, "data", "", "file with sector data")
	f.StringVar(&mkfluxFlags.pattern, "pattern", "adaf00", "sector data pattern in hex, repeated")
	f.IntSliceVar(&mkfluxFlags.corruptCRC, "corrupt-crc", nil, "sector numbers written with a bad data CRC")
	f.IntSliceVar(&mkfluxFlags.corruptIDCRC, "corrupt-id-crc", nil, "sector numbers written with a bad ID field CRC")
	f.IntSliceVar(&mkfluxFlags.drop, "drop", nil, "sector numbers left out")
	f.IntVar(&mkfluxFlags.ticksPerCell, "ticks-per-cell", 2, "sample ticks per bit cell (greasepack and kryoflux default to the device clock)")
}

// mkfluxPayload returns the --data file contents, or one track of pattern.
func mkfluxPayload(f track.Format) ([]byte, error) {
	if mkfluxFlags.data != "" {
		return os.ReadFile(mkfluxFlags.data)
	}
	pattern, err := hex.DecodeString(mkfluxFlags.pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", mkfluxFlags.pattern, err)
	}
	if len(pattern) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	data := make([]byte, f.TrackSize())
	for i := range data {
		data[i] = pattern[i%len(pattern)]
	}
	return data, nil
}

// trackPayload picks the data of one track. Data larger than a track
// is a disk image ordered by cylinder, then head.
func trackPayload(f track.Format, data []byte, cyl, head int) []byte {
	size := f.TrackSize()
	if len(data) <= size {
		return data
	}
	offset := (cyl*f.Heads + head) * size
	if offset >= len(data) {
		return nil
	}
	return data[offset:min(offset+size, len(data))]
}

// ticksAt returns the ticks per cell for a sample clock, unless given by flag.
func ticksAt(cmd *cobra.Command, f track.Format, freq float64) int {
	if cmd.Flags().Changed("ticks-per-cell") {
		return mkfluxFlags.ticksPerCell
	}
	return max(1, int(math.Round(f.Clock.Seconds()*freq)))
}

// writeTrack encodes the cells of one track in the selected output kind.
func writeTrack(w io.Writer, cmd *cobra.Command, f track.Format, cells flux.Bits) error {
	switch mkfluxFlags.output {
	case kindRaster:
		return flux.WriteRaster(w, cells)

	case kindIntervals:
		s := flux.FromBits(cells, f.Clock, mkfluxFlags.ticksPerCell)
		return flux.WriteIntervals(w, s.Intervals)

	case kindGreasepack:
		s := flux.FromBits(cells, f.Clock, ticksAt(cmd, f, flux.GreaseweazleFreq))
		s.Index = []uint64{0}
		if s.Freq != flux.GreaseweazleFreq {
			log.Warnf("sample clock %.0f Hz: decode with --sample-freq %.0f", s.Freq, s.Freq)
		}
		_, err := w.Write(flux.Pack(s))
		return err

	case kindKryoflux:
		tpc := ticksAt(cmd, f, kryoflux.DefaultSampleClock)
		s := flux.FromBits(cells, f.Clock, tpc)
		s.Index = []uint64{0, uint64(f.TrackCells() * tpc)}
		return kryoflux.WriteStream(w, s, time.Now())
	}
	return fmt.Errorf("unknown output kind %q", mkfluxFlags.output)
}

// writeHFEImage encodes every track of the format into an HFE image.
func writeHFEImage(name string, f track.Format, data []byte, damage track.Damage) error {
	rpm := int(math.Round(float64(time.Minute) / float64(f.Revolution)))
	disk := hfe.NewDisk(f.Cylinders, f.Heads, f.Mode, f.Clock, rpm)
	for cyl := 0; cyl < f.Cylinders; cyl++ {
		for head := 0; head < f.Heads; head++ {
			cells, err := track.EncodeDamaged(f, cyl, head, trackPayload(f, data, cyl, head), damage)
			if err != nil {
				return err
			}
			if err := disk.SetTrack(cyl, head, cells); err != nil {
				return err
			}
		}
	}

	// Version 3 opcodes collide with FM cell patterns.
	version := hfe.HFEVersion3
	if f.Mode == mfm.FM {
		version = hfe.HFEVersion1
	}
	if err := hfe.Write(name, disk, version); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"file":      name,
		"cylinders": f.Cylinders,
		"heads":     f.Heads,
		"version":   int(version),
	}).Info("image written")
	return nil
}
