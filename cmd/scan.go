package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oraclesec/sentinel/internal/logging"
	"github.com/oraclesec/sentinel/internal/onchain"
)

var scanCmd = &cobra.Command{
	Use:   "scan <address>",
	Short: "Audit a single contract and print the summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := args[0]
		if !onchain.ValidAddress(address) {
			return fmt.Errorf("invalid contract address: %s", address)
		}

		logger := logging.NewStdoutLogger("sentinel")
		ag, err := buildAgent(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer ag.close()

		summary, err := ag.runner.Scan(cmd.Context(), address)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
