package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/config"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/engine"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/index"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "essence",
	Short: "Tiered memory store with importance decay",
	Long:  "Essence keeps a tiered store of memory nodes whose relevance decays over time unless reinforced by access. A maintenance cycle promotes, demotes, and reclaims nodes based on their current importance.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default ~/.essence/config.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig resolves and validates the configuration for CLI commands.
func loadConfig() (config.Config, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// openStore opens the node store at the configured (or default) root.
func openStore(cfg config.Config) (*store.Store, error) {
	root := cfg.Storage.Root
	if root == "" {
		var err error
		root, err = store.DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(root)
}

// openIndex opens the search index with the process-wide embedder.
func openIndex(cfg config.Config) (*index.Index, error) {
	path := cfg.Index.Path
	if path == "" {
		var err error
		path, err = index.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return index.Open(path, index.DefaultEmbedder(cfg.Index))
}

// newEngine wires a maintenance engine from config, store, and index.
// idx may be nil; the engine then runs without duplicate detection or
// removal notifications.
func newEngine(cfg config.Config, st *store.Store, idx *index.Index) *engine.Engine {
	eng := engine.New(st, cfg)
	if idx != nil {
		eng.SetIndex(idx)
	}
	return eng
}

// setup is the common open sequence for commands needing everything.
func setup() (config.Config, *store.Store, *index.Index, *engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, nil, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return cfg, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	idx, err := openIndex(cfg)
	if err != nil {
		return cfg, nil, nil, nil, fmt.Errorf("open index: %w", err)
	}
	return cfg, st, idx, newEngine(cfg, st, idx), nil
}
