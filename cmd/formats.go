package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sergev/fluxtrack/config"
)

var formatsInit bool

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the predefined disk formats",
	Long: `List the disk formats of the format table; the default is marked with '*'.
With --init, save the built-in table to ~/.fluxtrack (or the --formats file)
for editing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatsInit {
			path := viper.GetString("formats")
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("Created %s\n", path)
			return nil
		}

		conf, err := loadConfig()
		if err != nil {
			return err
		}
		for _, name := range conf.Names() {
			f, err := conf.Lookup(name)
			if err != nil {
				return err
			}
			mark := " "
			if name == conf.Default {
				mark = "*"
			}
			fmt.Printf("%s %s\n", mark, f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
	formatsCmd.Flags().BoolVar(&formatsInit, "init", false, "write the built-in format table for editing")
}
