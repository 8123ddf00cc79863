// Command agent is the operator console for engagement symbols: create and
// run an engagement, inspect persisted state, validate records, and list
// the store.
package main

// #region imports
import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/grounded-agent/internal/config"
	"github.com/danielpatrickdp/grounded-agent/internal/logging"
	"github.com/danielpatrickdp/grounded-agent/internal/persist"
)

// #endregion

// #region root

var (
	flagConfig  string
	flagDataDir string
	flagDebug   bool
)

func main() {
	root := &cobra.Command{
		Use:           "agent",
		Short:         "Adversarial engagement controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to agent.yaml")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the state directory")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose logging")

	root.AddCommand(newRunCmd(), newInspectCmd(), newValidateCmd(), newListCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// #endregion root

// #region environment

// environment is everything a subcommand needs wired up.
type environment struct {
	cfg   config.Config
	store *persist.Store
	prov  *persist.Provenance
}

func setup() (*environment, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
		cfg.AuditDB = filepath.Join(flagDataDir, "audit.db")
	}
	if flagDebug {
		cfg.Debug = true
	}
	if err := logging.Init(cfg.Debug); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	store, err := persist.NewStore(persist.Options{Dir: cfg.DataDir, MaxBackups: cfg.MaxBackups})
	if err != nil {
		return nil, err
	}
	prov, err := persist.OpenProvenance(cfg.AuditDB)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, store: store, prov: prov}, nil
}

func (e *environment) close() {
	if e.prov != nil {
		e.prov.Close()
	}
	logging.Sync()
}

// #endregion environment
