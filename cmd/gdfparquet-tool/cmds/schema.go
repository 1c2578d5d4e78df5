package cmds

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema file-name.parquet",
	Short: "Prints the leaf columns of the parquet file with their output types",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			os.Exit(1)
		}

		if err := schemaFile(context.Background(), os.Stdout, args[0]); err != nil {
			log.Fatal(err)
		}
	},
}
