package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sergev/fluxtrack/adapter"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the attached flux adapter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
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

		dev.PrintStatus()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
