package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foliodb/foliodb/cmd/db"
	"github.com/foliodb/foliodb/cmd/his"
	"github.com/foliodb/foliodb/cmd/util"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "foliodb",
		Short: "tag-oriented record database",
		Long: fmt.Sprintf(`foliodb (v%s)

A Redis-backed tag-oriented record database with atomic multi-record
commits, tag-indexed queries and per-record time series.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of foliodb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("foliodb v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(db.DatabaseCommands)
	RootCmd.AddCommand(his.HistoryCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("log level of the engine (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
