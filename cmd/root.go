// Package cmd defines the sentinel command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Autonomous smart contract audit agent",
	Long: `Sentinel fetches verified contract source from the block explorer,
runs pattern and LLM analysis, scores the risk, and publishes results
to IPFS and the on-chain security oracle.`,
}

var configPath string

// Execute adds all child commands to the root command and runs it.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sentinel.yaml", "path to config file")
}
