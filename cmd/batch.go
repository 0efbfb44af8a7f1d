package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oraclesec/sentinel/internal/logging"
	"github.com/oraclesec/sentinel/internal/pipeline"
)

// Well-known BSC contracts used to seed the oracle with real data.
// Tier 1 gets the full LLM pass; tier 2 runs pattern analysis only to
// keep API costs down.
var tier1Contracts = []string{
	"0x10ed43c718714eb63d5aa57b78b54704e256024e", // PancakeSwap Router V2
	"0x13f4ea83d0bd40e75c8222255bc855a974568dd4", // PancakeSwap Router V3
	"0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", // WBNB
	"0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82", // CAKE Token
	"0xcf6bb5389c92bdda8a3747ddb454cb7a64626c63", // Venus (XVS)
	"0xfd5840cd36d94d7229439859c0112a4185bc0255", // Venus vUSDT
	"0xfD36E2c2a6789Db23113685031d7F16329158384", // Venus Unitroller
	"0x55d398326f99059ff775485246999027b3197955", // BSC-USD (USDT)
	"0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", // USDC on BSC
	"0x1af3f329e8be154074d8769d1ffa4ee058b1dbc3", // DAI on BSC
	"0x2170ed0880ac9a755fd29b2688956bd959f933f8", // ETH on BSC
	"0x7130d2a12b9bcbfae4f2634d864a1ee1ce3ead9c", // BTCB
	"0xe9e7cea3dedca5984780bafc599bd69add087d56", // BUSD
	"0xa07c5b74c9b40447a954e1466938b865b6bbea36", // Venus vBNB
	"0x58F876857a02D6762E0101bb5C46A8c1ED44Dc16", // PancakeSwap WBNB-BUSD LP
}

var tier2Contracts = []string{
	"0x3ee2200efb3400fabb9aacf31297cbdd1d435d47", // ADA on BSC
	"0xcc42724c6683b7e57334c4e856f4c9965ed682bd", // MATIC on BSC
	"0x1d2f0da169ceb9fc7b3144628db156f3f6c60dbe", // XRP on BSC
	"0x4338665cbb7b2485a8855a139b75d5e34ab0db94", // Litecoin on BSC
	"0x7083609fce4d1d8dc0c979aab8c869ea2c873402", // DOT on BSC
	"0xbf5140a22578168fd562dccf235e5d43a02ce9b1", // UNI on BSC
	"0x0eb3a705fc54725037cc9e008bdede697f62f335", // ATOM on BSC
	"0xf8a0bf9cf54bb92f17374d9e9a321e6a111a51bd", // LINK on BSC
	"0x8595f9da7b868b1822194faed312235e43007b49", // Biswap Router
	"0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73", // PancakeSwap Factory V2
	"0x73feaa1ee314f8c655e354234017be2193c9e24e", // PancakeSwap MasterChef
	"0xa5f8c5dbd5f286960b9d90548680ae5ebff07652", // PancakeSwap MasterChef V2
	"0x45c54210128a065de780C4B0Df3d16664f7f859e", // PancakeSwap SmartRouter
	"0xb7f8bc63bbcad18155201308c8f3540b07f84f5e", // Thena Router
	"0x325E343f1dE602396E256B67eFd1F61C3A6B38Bd", // Thena Factory
	"0xD4CEc732b3B135eC52a3c0bc8Ce4b8cFb9dacE46", // Wombat Router
	"0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506", // SushiSwap Router BSC
	"0xB6BA90af76D139AB3170c7df0139636dB6120F7e", // ApeSwap Router
	"0xa184998ec58dc1da77a1f9f1e361541257a50cf4", // Alpaca Finance
	"0x858e3312ed3a876947ea49d572a7c42de08af7ee", // Biswap WBNB-USDT LP
}

// batchDelay spaces explorer requests under the free-tier rate limit.
const batchDelay = 1500 * time.Millisecond

var skipLLM bool

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Seed the report store by scanning well-known BSC contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context())
	},
}

func init() {
	batchCmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "pattern analysis only, even for tier 1")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(ctx context.Context) error {
	logger := logging.NewStdoutLogger("batch")

	ag, err := buildAgent(ctx, logger)
	if err != nil {
		return err
	}
	defer ag.close()

	// Batch runs skip IPFS and the oracle: the store is the product.
	var reviewer pipeline.Reviewer
	if !skipLLM {
		reviewer = ag.reviewer
	}
	fullRunner := pipeline.NewRunner(ag.fetcher, reviewer, nil, nil, ag.store, logger)
	staticRunner := pipeline.NewRunner(ag.fetcher, nil, nil, nil, ag.store, logger)

	scanned, failed := 0, 0
	scanTier := func(name string, runner *pipeline.Runner, addresses []string) error {
		logger.Info("tier started",
			logging.Field{Key: "tier", Value: name},
			logging.Field{Key: "contracts", Value: len(addresses)})
		for _, address := range addresses {
			summary, err := runner.Scan(ctx, address)
			if err != nil {
				failed++
				logger.Warn("batch scan failed",
					logging.Field{Key: "address", Value: address},
					logging.Field{Key: "error", Value: err.Error()})
			} else {
				scanned++
				logger.Info("batch scan done",
					logging.Field{Key: "contract", Value: summary.ContractName},
					logging.Field{Key: "score", Value: summary.RiskScore},
					logging.Field{Key: "level", Value: summary.RiskLevel})
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(batchDelay):
			}
		}
		return nil
	}

	if err := scanTier("full", fullRunner, tier1Contracts); err != nil {
		return err
	}
	if err := scanTier("static", staticRunner, tier2Contracts); err != nil {
		return err
	}

	fmt.Printf("done: %d scanned, %d failed\n", scanned, failed)
	return nil
}
