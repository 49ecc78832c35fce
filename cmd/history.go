package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sergev/fluxtrack/store"
)

var historyFlags struct {
	file  string
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored decode results",
	Long:  "List the decode results recorded with --db, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("db")
		if path == "" {
			return errors.New("no database: use --db or FLUXTRACK_DB")
		}
		db, err := store.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.List(historyFlags.file, historyFlags.limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyFlags.file, "file", "", "only results of this input file")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "maximum number of results, 0 for all")
}
