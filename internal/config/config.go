// Package config loads agent configuration from an optional YAML file
// with environment variable overrides. Environment wins so deployments
// can keep secrets out of the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration for the agent.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Scan   ScanConfig   `yaml:"scan"`
	Source SourceConfig `yaml:"source"`
	LLM    LLMConfig    `yaml:"llm"`
	IPFS   IPFSConfig   `yaml:"ipfs"`
	Chain  ChainConfig  `yaml:"chain"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`
}

// Duration wraps time.Duration so YAML values like "12s" or "24h"
// parse with time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ScanConfig controls queue admission.
type ScanConfig struct {
	MaxPending  int      `yaml:"max_pending"`
	MinInterval Duration `yaml:"min_interval"`
	Cooldown    Duration `yaml:"cooldown"`
	MaxHistory  int      `yaml:"max_history"`
}

// SourceConfig controls the explorer source fetcher.
type SourceConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LLMConfig selects and keys the review provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// IPFSConfig keys the Pinata pinning client.
type IPFSConfig struct {
	APIKey string `yaml:"api_key"`
	Secret string `yaml:"secret"`
}

// ChainConfig wires the on-chain oracle.
type ChainConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	OracleAddress string `yaml:"oracle_address"`
	PrivateKey    string `yaml:"private_key"`
	Skip          bool   `yaml:"skip"`
}

// Default returns development defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:   3001,
			DBPath: "sentinel.db",
		},
		Scan: ScanConfig{
			MaxPending:  10,
			MinInterval: Duration(12 * time.Second),
			Cooldown:    Duration(24 * time.Hour),
			MaxHistory:  50,
		},
		Source: SourceConfig{
			BaseURL: "https://api.bscscan.com/api",
		},
		LLM: LLMConfig{
			Provider: "gemini",
		},
		Chain: ChainConfig{
			RPCURL: "https://bsc-dataseed1.binance.org",
		},
	}
}

// Load reads the YAML file at path (missing file is fine) and applies
// environment overrides on top of defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	setEnv(&c.Server.DBPath, "DB_PATH")
	setEnv(&c.Source.APIKey, "BSCSCAN_API_KEY")
	setEnv(&c.Source.BaseURL, "BSCSCAN_BASE_URL")
	setEnv(&c.LLM.Provider, "LLM_PROVIDER")
	setEnv(&c.LLM.APIKey, "LLM_API_KEY")
	setEnv(&c.LLM.Model, "LLM_MODEL")
	setEnv(&c.IPFS.APIKey, "PINATA_API_KEY")
	setEnv(&c.IPFS.Secret, "PINATA_SECRET")
	setEnv(&c.Chain.RPCURL, "BSC_RPC_URL")
	setEnv(&c.Chain.OracleAddress, "ORACLE_ADDRESS")
	setEnv(&c.Chain.PrivateKey, "AGENT_PRIVATE_KEY")
	if v := os.Getenv("SKIP_ONCHAIN"); v != "" {
		c.Chain.Skip = v == "1" || v == "true"
	}
}

func setEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ListenAddr formats the server bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// OnchainEnabled reports whether oracle submission is configured and
// not explicitly skipped.
func (c *Config) OnchainEnabled() bool {
	return !c.Chain.Skip && c.Chain.OracleAddress != "" && c.Chain.PrivateKey != ""
}
