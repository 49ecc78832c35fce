package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sergev/fluxtrack/adapter"
	"github.com/sergev/fluxtrack/flux"
	"github.com/sergev/fluxtrack/kryoflux"
	"github.com/sergev/fluxtrack/store"
	"github.com/sergev/fluxtrack/track"
)

var captureFlags struct {
	format    formatFlags
	cyl, head int
	revs      int
	decode    bool
}

var captureCmd = &cobra.Command{
	Use:   "capture [flags] [OUT]",
	Short: "Read one track from a flux adapter",
	Long: `Read the flux of one track with an attached Greaseweazle, SuperCard Pro or
KryoFlux. The flux is saved to OUT as a KryoFlux stream when the name ends
in .raw, and as a greasepack otherwise. With --decode the track is decoded
and reported like the decode command does.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !captureFlags.decode {
			return fmt.Errorf("nothing to do: give an output file or --decode")
		}
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		f, err := captureFlags.format.resolve()
		if err != nil {
			return err
		}

		dev, err := adapter.Find(adapter.Options{
			Firmware: conf.Firmware,
			Verbose:  viper.GetBool("verbose"),
			Log:      log.StandardLogger(),
		})
		if err != nil {
			return fmt.Errorf("failed to find USB adapter: %w", err)
		}
		defer dev.Close()

		s, err := dev.ReadTrack(captureFlags.cyl, captureFlags.head, captureFlags.revs)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"cyl":       captureFlags.cyl,
			"head":      captureFlags.head,
			"intervals": len(s.Intervals),
			"rpm":       fmt.Sprintf("%.1f", s.RPM()),
		}).Info("track captured")

		if len(args) > 0 {
			if err := saveCapture(args[0], s); err != nil {
				return err
			}
		}
		if !captureFlags.decode {
			return nil
		}

		t := track.Decode(s.Revolution(), track.Options{
			Format:   f,
			Cylinder: captureFlags.cyl,
			Head:     captureFlags.head,
			Log:      log.StandardLogger(),
		})
		r := t.Report()
		printReport(fmt.Sprintf("c%d.h%d", captureFlags.cyl, captureFlags.head), r)
		if path := viper.GetString("db"); path != "" {
			db, err := store.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()
			source := "capture"
			if len(args) > 0 {
				source = args[0]
			}
			if err := db.Record(source, r); err != nil {
				return err
			}
		}
		return r.Err()
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureFlags.format.register(captureCmd.Flags())
	f := captureCmd.Flags()
	f.IntVar(&captureFlags.cyl, "cyl", 0, "cylinder to read")
	f.IntVar(&captureFlags.head, "head", 0, "head to read")
	f.IntVar(&captureFlags.revs, "revs", 2, "revolutions to capture")
	f.BoolVar(&captureFlags.decode, "decode", false, "decode the captured track")
}

// saveCapture writes the flux as a KryoFlux stream or a greasepack.
func saveCapture(name string, s flux.Sample) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(name)) == ".raw" {
		if err := kryoflux.WriteStream(file, s, time.Now()); err != nil {
			return err
		}
		return file.Close()
	}
	if s.Freq != flux.GreaseweazleFreq {
		log.Warnf("sample clock %.0f Hz: decode %s with --sample-freq %.0f", s.Freq, name, s.Freq)
	}
	if _, err := file.Write(flux.Pack(s)); err != nil {
		return err
	}
	return file.Close()
}
