package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/grantrelay/signature"
)

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Print the X-Hub-Signature-256 value for a payload",
	Long: `sign reads a webhook payload from file, or stdin when no file is given,
and prints the signature header value under GRANTRELAY_WEBHOOK_SECRET. Use it
to send hand-crafted webhooks with curl.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("GRANTRELAY_WEBHOOK_SECRET")
		if secret == "" {
			return errors.New("GRANTRELAY_WEBHOOK_SECRET is not set")
		}

		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		payload, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", signature.Header, signature.Sign(payload, secret))
		return err
	},
}
