package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sergev/fluxtrack/flux"
)

var histogramFlags struct {
	format       formatFlags
	input        string
	cyl, head    int
	ticksPerCell int
	sampleFreq   float64
}

var histogramCmd = &cobra.Command{
	Use:   "histogram [flags] FILE",
	Short: "Print the flux pulse histogram of a track",
	Long: `Print the number of flux intervals per length in sample ticks, and how
many fall in the 2, 3 and 4 cell classes of an MFM stream.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := histogramFlags.format.resolve()
		if err != nil {
			return err
		}
		inputs, err := loadInputs(args[0], f, loadOptions{
			kind:         histogramFlags.input,
			cyl:          histogramFlags.cyl,
			head:         histogramFlags.head,
			ticksPerCell: histogramFlags.ticksPerCell,
			sampleFreq:   histogramFlags.sampleFreq,
		})
		if err != nil {
			return err
		}
		in := inputs[0]

		// Bins up to six cells.
		ticksPerCell := in.sample.Freq * in.format.Clock.Seconds()
		h := flux.NewHistogram(in.sample, int(6*ticksPerCell)+1)
		if err := h.Print(os.Stdout); err != nil {
			return err
		}

		classes, other := h.Classes(ticksPerCell)
		fmt.Printf("%d intervals, %.2f ticks per cell\n", len(in.sample.Intervals), ticksPerCell)
		fmt.Printf("2 cells: %d, 3 cells: %d, 4 cells: %d, other: %d\n",
			classes[0], classes[1], classes[2], other)
		if rpm := in.sample.RPM(); rpm > 0 {
			fmt.Printf("Rotation Speed: %.1f RPM\n", rpm)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(histogramCmd)
	histogramFlags.format.register(histogramCmd.Flags())
	f := histogramCmd.Flags()
	f.StringVar(&histogramFlags.input, "input", kindAuto, "input kind: raster, intervals, greasepack, kryoflux, hfe or auto")
	f.IntVar(&histogramFlags.cyl, "cyl", 0, "cylinder number of an image track")
	f.IntVar(&histogramFlags.head, "head", 0, "head number of an image track")
	f.IntVar(&histogramFlags.ticksPerCell, "ticks-per-cell", 2, "sample ticks per bit cell of raster and interval input")
	f.Float64Var(&histogramFlags.sampleFreq, "sample-freq", 0, "sample clock in Hz of interval and greasepack input")
}
