package cmds

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rowCountCmd)
}

var rowCountCmd = &cobra.Command{
	Use:   "rowcount file-name.parquet",
	Short: "Prints the count of rows in Parquet file",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			os.Exit(1)
		}
		meta, err := readMeta(context.Background(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println("Total RowCount:", meta.NumRows)
	},
}
