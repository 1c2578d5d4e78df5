package cmds

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	recordCount int
	catColumns  []string
)

func init() {
	catCmd.Flags().IntVarP(&recordCount, "records", "n", -1, "The number of records to show, all when negative")
	catCmd.Flags().StringSliceVarP(&catColumns, "columns", "c", nil, "Comma separated list of columns to decode")
	rootCmd.AddCommand(catCmd)
}

var catCmd = &cobra.Command{
	Use:   "cat file-name.parquet",
	Short: "Decode the parquet file and print its rows",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			os.Exit(1)
		}
		s, err := newSession(os.Stderr)
		if err != nil {
			log.Fatal(err)
		}
		defer s.done()

		if err := catFile(context.Background(), os.Stdout, s, args[0], catColumns, recordCount); err != nil {
			log.Fatal(err)
		}
	},
}
