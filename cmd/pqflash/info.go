package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type infoOutput struct {
	Index         string   `yaml:"index"`
	Points        uint64   `yaml:"points"`
	Dimension     int      `yaml:"dimension"`
	MaxDegree     int      `yaml:"max_degree"`
	Metric        string   `yaml:"metric"`
	Medoids       []uint32 `yaml:"medoids,flow"`
	ReorderData   bool     `yaml:"reorder_data"`
	CachedNodes   int      `yaml:"cached_nodes"`
	ResidentBytes int64    `yaml:"resident_bytes"`
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the geometry of an index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openIndex(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			st := db.Stats()
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(infoOutput{
				Index:         st.Prefix,
				Points:        st.NumPoints,
				Dimension:     st.Dim,
				MaxDegree:     st.MaxDegree,
				Metric:        st.Metric.String(),
				Medoids:       st.Medoids,
				ReorderData:   st.HasReorderData,
				CachedNodes:   st.CachedNodes,
				ResidentBytes: st.ResidentBytes,
			})
		},
	}
}
