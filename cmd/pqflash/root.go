package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pqflash/internal/binio"
)

// app carries the global flags and the resolved configuration.
type app struct {
	configPath string
	envFile    string
	index      string
	logLevel   string

	cfg Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "pqflash",
		Short: "Query disk-resident PQ graph indexes",
		Long: `pqflash serves approximate nearest neighbor queries from a graph index
stored on local disk, S3 or MinIO.

Configuration is read from --config (YAML), then from the environment
(PQFLASH_* variables, optionally loaded from --env-file), then from flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	pf.StringVar(&a.index, "index", "", "index name (prefix of the _disk.index and _pq.bin blobs)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newInfoCmd(a), newSearchCmd(a), newCacheCmd(a))
	return cmd
}

func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	if a.index != "" {
		cfg.Index.Name = a.index
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// readQueries loads a .bin query file as one slice per row.
func readQueries(path string) ([][]float32, error) {
	if path == "" {
		return nil, fmt.Errorf("no query file")
	}
	m, err := binio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make([][]float32, m.Rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out, nil
}
