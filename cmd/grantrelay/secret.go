package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/grantrelay/signature"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook secret for GRANTRELAY_WEBHOOK_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), signature.GenerateSecret())
		return err
	},
}
