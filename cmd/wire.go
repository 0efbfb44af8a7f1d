package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oraclesec/sentinel/internal/config"
	"github.com/oraclesec/sentinel/internal/ipfs"
	"github.com/oraclesec/sentinel/internal/llm"
	"github.com/oraclesec/sentinel/internal/logging"
	"github.com/oraclesec/sentinel/internal/onchain"
	"github.com/oraclesec/sentinel/internal/pipeline"
	"github.com/oraclesec/sentinel/internal/report"
	"github.com/oraclesec/sentinel/internal/scanner"
)

// agent bundles the long-lived components every command needs.
type agent struct {
	cfg      *config.Config
	logger   logging.Logger
	db       *sql.DB
	store    *report.Store
	fetcher  *scanner.Client
	reviewer pipeline.Reviewer // nil when no LLM key is configured
	runner   *pipeline.Runner
	oracle   *onchain.OracleClient // nil when on-chain is disabled
}

// buildAgent constructs the pipeline from configuration. Optional
// integrations (LLM, IPFS, oracle) that are unconfigured are left nil
// and the pipeline skips them.
func buildAgent(ctx context.Context, logger logging.Logger) (*agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Server.DBPath, err)
	}

	store, err := report.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	fetcher := scanner.NewClient(scanner.Config{
		APIKey:  cfg.Source.APIKey,
		BaseURL: cfg.Source.BaseURL,
		Timeout: 20 * time.Second,
	}, logger)

	var reviewer pipeline.Reviewer
	if cfg.LLM.APIKey != "" {
		provider, err := llm.NewProvider(ctx, llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		reviewer = provider
		logger.Info("llm review enabled", logging.Field{Key: "provider", Value: provider.Name()})
	} else {
		logger.Info("llm review disabled, no api key")
	}

	var pinner pipeline.Pinner
	if pin := ipfs.NewClient(cfg.IPFS.APIKey, cfg.IPFS.Secret); pin.Enabled() {
		pinner = pin
		logger.Info("ipfs pinning enabled")
	}

	var oracleClient *onchain.OracleClient
	var oracle pipeline.Oracle
	if cfg.OnchainEnabled() {
		oracleClient, err = onchain.NewOracleClient(ctx, cfg.Chain.OracleAddress, cfg.Chain.PrivateKey, cfg.Chain.RPCURL, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		oracle = oracleClient
		logger.Info("oracle client initialized",
			logging.Field{Key: "agent", Value: oracleClient.AgentAddress()})
	}

	return &agent{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		fetcher:  fetcher,
		reviewer: reviewer,
		runner:   pipeline.NewRunner(fetcher, reviewer, pinner, oracle, store, logger),
		oracle:   oracleClient,
	}, nil
}

func (a *agent) close() {
	if a.db != nil {
		a.db.Close()
	}
}
