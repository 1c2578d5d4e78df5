package cmds

import (
	"context"
	"log"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

var dumpMeta bool

func init() {
	metaCmd.Flags().BoolVar(&dumpMeta, "dump", false, "Dump the raw footer structure")
	rootCmd.AddCommand(metaCmd)
}

var metaCmd = &cobra.Command{
	Use:   "meta file-name.parquet",
	Short: "print the metadata of the parquet file",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			os.Exit(1)
		}

		if dumpMeta {
			meta, err := readMeta(context.Background(), args[0])
			if err != nil {
				log.Fatal(err)
			}
			spew.Fdump(os.Stdout, meta)
			return
		}
		if err := metaFile(context.Background(), os.Stdout, args[0]); err != nil {
			log.Fatal(err)
		}
	},
}
