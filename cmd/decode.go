package cmd

import (
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/sergev/fluxtrack/store"
	"github.com/sergev/fluxtrack/track"
)

var decodeFlags struct {
	format       formatFlags
	input        string
	cyl, head    int
	ticksPerCell int
	sampleFreq   float64
}

var decodeCmd = &cobra.Command{
	Use:   "decode [flags] FILE...",
	Short: "Decode sectors from flux files",
	Long: `Decode the sectors of one track per file and print a summary, an error
string with one character per sector ('E' for a data CRC error), and one line
per index mark and sector. HFE images decode every recorded track unless
--cyl or --head is given. Fails when sectors are missing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := decodeFlags.format.resolve()
		if err != nil {
			return err
		}
		lo := loadOptions{
			kind:         decodeFlags.input,
			cyl:          decodeFlags.cyl,
			head:         decodeFlags.head,
			allTracks:    !cmd.Flags().Changed("cyl") && !cmd.Flags().Changed("head"),
			ticksPerCell: decodeFlags.ticksPerCell,
			sampleFreq:   decodeFlags.sampleFreq,
		}

		// Tracks are independent; files decode in parallel.
		results := make([][]track.Report, len(args))
		var g errgroup.Group
		g.SetLimit(runtime.NumCPU())
		for i, name := range args {
			g.Go(func() error {
				reports, err := decodeFile(name, f, lo)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				results[i] = reports
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var db *store.Store
		if path := viper.GetString("db"); path != "" {
			if db, err = store.Open(path); err != nil {
				return err
			}
			defer db.Close()
		}

		missing := 0
		for i, name := range args {
			for _, r := range results[i] {
				label := name
				if len(results[i]) > 1 {
					label = fmt.Sprintf("%s@%d.%d", name, r.Cylinder, r.Head)
				}
				printReport(label, r)
				missing += r.Missing()
			}
			if db != nil {
				if err := db.Record(name, results[i]...); err != nil {
					return err
				}
			}
		}
		if missing > 0 {
			return &track.MissingError{N: missing}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeFlags.format.register(decodeCmd.Flags())
	f := decodeCmd.Flags()
	f.StringVar(&decodeFlags.input, "input", kindAuto, "input kind: raster, intervals, greasepack, kryoflux, hfe or auto")
	f.IntVar(&decodeFlags.cyl, "cyl", 0, "cylinder number of the track")
	f.IntVar(&decodeFlags.head, "head", 0, "head number of the track")
	f.IntVar(&decodeFlags.ticksPerCell, "ticks-per-cell", 2, "sample ticks per bit cell of raster and interval input")
	f.Float64Var(&decodeFlags.sampleFreq, "sample-freq", 0, "sample clock in Hz of interval and greasepack input")
}

// decodeFile decodes every track of one input file.
func decodeFile(name string, f track.Format, lo loadOptions) ([]track.Report, error) {
	inputs, err := loadInputs(name, f, lo)
	if err != nil {
		return nil, err
	}
	entry := log.WithField("file", name)
	reports := make([]track.Report, 0, len(inputs))
	for _, in := range inputs {
		t := track.Decode(in.sample, track.Options{
			Format:   in.format,
			Cylinder: in.cyl,
			Head:     in.head,
			Log:      entry,
		})
		reports = append(reports, t.Report())
	}
	return reports, nil
}

// printReport writes the summary, error string and detail lines of a track.
func printReport(label string, r track.Report) {
	fmt.Printf("%s %s\n", label, r.Summary())
	fmt.Println(r.ErrorString())
	if lines := r.String(); lines != "" {
		fmt.Println(lines)
	}
}
