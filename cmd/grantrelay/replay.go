package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run one sweep over pending records and exit",
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

		stats, err := d.relay.Replay(cmd.Context())
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
	},
}
