package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Print pending records as JSON lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

		d, err := buildDeps(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer d.Close()

		recs, err := d.relay.Pending(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, rec := range recs {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}
