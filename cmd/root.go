package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sergev/fluxtrack/config"

	// Adapters register themselves.
	_ "github.com/sergev/fluxtrack/greaseweazle"
	_ "github.com/sergev/fluxtrack/kryoflux"
	_ "github.com/sergev/fluxtrack/supercardpro"
)

var rootCmd = &cobra.Command{
	Use:   "fluxtrack",
	Short: "Decode and generate MFM/FM floppy tracks from flux",
	Long: `The fluxtrack tool recovers sectors from the flux of floppy disk tracks,
captured by a USB flux adapter or stored in a file, and builds flux for
standard IBM tracks.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

/*
Logging is set up from the environment:

	LOG_FORMAT		set to `json` for JSON logging
	LOG_FORCE_COLORS	set to non-empty for forcing colorized log entries
	LOG_METHODS		set to non-empty for including methods in log
	LOG_LEVEL		`panic`, `fatal`, `error`, `warn`, `info`, `debug`, `trace`
*/
func init() {
	log.SetOutput(os.Stderr)

	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else if os.Getenv("LOG_FORCE_COLORS") != "" {
		log.SetFormatter(&log.TextFormatter{
			ForceColors: true,
		})
	}

	if os.Getenv("LOG_METHODS") != "" {
		log.SetReportCaller(true)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		l, err := log.ParseLevel(level)
		if err != nil {
			log.Errorf("invalid log level: '%s'; valid levels are: panic, "+
				"fatal, error, warn, info, debug, trace", level)
		} else {
			log.SetLevel(l)
		}
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "debug output (FLUXTRACK_VERBOSE)")
	flags.String("formats", "", "format table file, default ~/.fluxtrack when present (FLUXTRACK_FORMATS)")
	flags.String("db", "", "SQLite database of decode results (FLUXTRACK_DB)")

	viper.SetEnvPrefix("FLUXTRACK")
	cobra.CheckErr(bindSettings(flags, "verbose", "formats", "db"))
}

// bindSettings lets viper read each flag, or its FLUXTRACK_ variable.
func bindSettings(flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("setting %s: %w", name, err)
		}
		if err := viper.BindEnv(name); err != nil {
			return fmt.Errorf("setting %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads the format table selected by --formats.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("formats"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
