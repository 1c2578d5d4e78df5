package cmds

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pagesCmd)
}

var pagesCmd = &cobra.Command{
	Use:   "pages file-name.parquet",
	Short: "Prints the column chunks and page counts the decoder sees",
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

		if err := pagesFile(context.Background(), os.Stdout, s, args[0]); err != nil {
			log.Fatal(err)
		}
	},
}
