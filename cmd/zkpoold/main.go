package main

import (
	"fmt"
	"os"

	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/action"
	"github.com/kysee/zkpool/zk-pool/config"
	"github.com/kysee/zkpool/zk-pool/event"
	"github.com/kysee/zkpool/zk-pool/node"
	"github.com/kysee/zkpool/zk-pool/sct"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string
	home     string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zkpoold",
		Short: "shielded pool spend validation node",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(cfgPath); err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("home") {
				cfg.Home = home
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return utils.SetLogLevel(cfg.LogLevel)
		},
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path of the yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&home, "home", "", "state directory, empty for an in-memory state")

	rootCmd.AddCommand(
		setupCmd(),
		keygenCmd(),
		statusCmd(),
		nullifierCmd(),
		simulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openNode opens the state store of cfg and a node over it.
func openNode() (*node.Node, *event.Bus, error) {
	st, err := store.Open(cfg.Home)
	if err != nil {
		return nil, nil, err
	}
	st.SetSync(cfg.Store.Sync)

	tree, err := sct.NewTree(cfg.TreeDepth)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	bus := event.NewBus()
	n, err := node.New(st, tree, action.NewPipeline(cfg.ChainID, cfg.Pipeline.Workers), bus)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("open node at %q: %w", cfg.Home, err)
	}
	return n, bus, nil
}
