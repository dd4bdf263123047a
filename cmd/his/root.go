package his

import (
	"github.com/spf13/cobra"

	"github.com/foliodb/foliodb/cmd/util"
	"github.com/foliodb/foliodb/folio"
	"github.com/foliodb/foliodb/folio/his"
)

var (
	store    *folio.Folio
	hisStore *his.Store

	// HistoryCommands represents the his command group
	HistoryCommands = &cobra.Command{
		Use:                "his",
		Short:              "Perform time-series operations on historized points",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: teardownStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common store flags to the his command
	util.SetupStoreFlags(HistoryCommands)

	// Add subcommands
	HistoryCommands.AddCommand(readCmd)
	HistoryCommands.AddCommand(writeCmd)
	HistoryCommands.AddCommand(clearCmd)
}

// setupStore opens the record store and binds the history store to it
func setupStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	store, err = util.OpenStore()
	if err != nil {
		return err
	}
	hisStore = his.New(store)
	return nil
}

// teardownStore closes the record store
func teardownStore(_ *cobra.Command, _ []string) error {
	if store != nil {
		return store.Close()
	}
	return nil
}
