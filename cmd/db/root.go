package db

import (
	"github.com/spf13/cobra"

	"github.com/foliodb/foliodb/cmd/util"
	"github.com/foliodb/foliodb/folio"
)

var (
	store *folio.Folio

	// DatabaseCommands represents the db command group
	DatabaseCommands = &cobra.Command{
		Use:                "db",
		Short:              "Perform record store operations",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: teardownStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common store flags to the db command
	util.SetupStoreFlags(DatabaseCommands)

	// Add subcommands
	DatabaseCommands.AddCommand(infoCmd)
	DatabaseCommands.AddCommand(getCmd)
	DatabaseCommands.AddCommand(readCmd)
	DatabaseCommands.AddCommand(countCmd)
	DatabaseCommands.AddCommand(addCmd)
	DatabaseCommands.AddCommand(setCmd)
	DatabaseCommands.AddCommand(removeCmd)
	DatabaseCommands.AddCommand(perfTestCmd)
}

// setupStore opens the configured record store
func setupStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	store, err = util.OpenStore()
	return err
}

// teardownStore closes the record store
func teardownStore(_ *cobra.Command, _ []string) error {
	if store != nil {
		return store.Close()
	}
	return nil
}
