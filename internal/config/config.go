package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

type Config struct {
	Server  ServerConfig
	Chain   ChainConfig
	Voucher VoucherConfig
	Worker  WorkerConfig
	Redis   RedisConfig
	GRPC    GRPCConfig
}

type ServerConfig struct {
	Port             int  `mapstructure:"port"`
	RequireSignature bool `mapstructure:"require_signature"`
}

type ChainConfig struct {
	RPCURL         string `mapstructure:"rpc_url"`
	ChainID        int64  `mapstructure:"chain_id"`
	VoucherManager string `mapstructure:"voucher_manager"`
	SponsorKey     string `mapstructure:"sponsor_key"`
	FinalityDepth  uint64 `mapstructure:"finality_depth"`
	StatusPollMs   int64  `mapstructure:"status_poll_ms"`
}

type VoucherConfig struct {
	ContractAddress         string `mapstructure:"contract_address"`
	OneToken                string `mapstructure:"one_token"`
	InitialTokens           int64  `mapstructure:"initial_tokens"`
	InitialExpirationBlocks uint32 `mapstructure:"initial_expiration_blocks"`
	TokensToAdd             int64  `mapstructure:"tokens_to_add"`
	RenewalBlocks           uint32 `mapstructure:"renewal_blocks"`
	MinTokens               int64  `mapstructure:"min_tokens"`
}

type WorkerConfig struct {
	PollIntervalMs   int64 `mapstructure:"poll_interval_ms"`
	SubmitTimeoutSec int64 `mapstructure:"submit_timeout_sec"`
}

type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	InflightTTLSec int64  `mapstructure:"inflight_ttl_sec"`
}

type GRPCConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.require_signature", false)
	v.SetDefault("chain.finality_depth", 2)
	v.SetDefault("chain.status_poll_ms", 1000)
	v.SetDefault("voucher.one_token", "1000000000000")
	v.SetDefault("worker.poll_interval_ms", 500)
	v.SetDefault("worker.submit_timeout_sec", 120)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.inflight_ttl_sec", 300)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings (names kept from the original deployment's .env)
	bindings := map[string]string{
		"server.port":                       "PORT",
		"server.require_signature":          "REQUIRE_WALLET_SIGNATURE",
		"chain.rpc_url":                     "NETWORK",
		"chain.chain_id":                    "CHAIN_ID",
		"chain.voucher_manager":             "VOUCHER_MANAGER",
		"chain.sponsor_key":                 "SPONSOR_KEY",
		"chain.finality_depth":              "FINALITY_DEPTH",
		"chain.status_poll_ms":              "STATUS_POLL_MS",
		"voucher.contract_address":          "CONTRACT_ADDRESS",
		"voucher.one_token":                 "ONE_TOKEN",
		"voucher.initial_tokens":            "INITIAL_TOKENS_FOR_VOUCHER",
		"voucher.initial_expiration_blocks": "INITIAL_VOUCHER_EXPIRATION_TIME_IN_BLOCKS",
		"voucher.tokens_to_add":             "TOKENS_TO_ADD_TO_VOUCHER",
		"voucher.renewal_blocks":            "NEW_VOUCHER_EXPIRATION_TIME_IN_BLOCKS",
		"voucher.min_tokens":                "MIN_TOKENS_FOR_VOUCHER",
		"worker.poll_interval_ms":           "WORKER_WAITING_TIME_IN_MS",
		"worker.submit_timeout_sec":         "SUBMIT_TIMEOUT_SEC",
		"redis.addr":                        "REDIS_ADDR",
		"redis.password":                    "REDIS_PASSWORD",
		"redis.inflight_ttl_sec":            "INFLIGHT_TTL_SEC",
		"grpc.health_port":                  "GRPC_HEALTH_PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

// validate checks required keys. SPONSOR_KEY is optional: a
// missing key fails each batch with a configuration error instead.
func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "NETWORK"},
		{c.Chain.VoucherManager, "VOUCHER_MANAGER"},
		{c.Voucher.ContractAddress, "CONTRACT_ADDRESS"},
		{c.Voucher.OneToken, "ONE_TOKEN"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}

	type positive struct {
		val  int64
		name string
	}
	for _, p := range []positive{
		{c.Voucher.InitialTokens, "INITIAL_TOKENS_FOR_VOUCHER"},
		{int64(c.Voucher.InitialExpirationBlocks), "INITIAL_VOUCHER_EXPIRATION_TIME_IN_BLOCKS"},
		{c.Voucher.TokensToAdd, "TOKENS_TO_ADD_TO_VOUCHER"},
		{int64(c.Voucher.RenewalBlocks), "NEW_VOUCHER_EXPIRATION_TIME_IN_BLOCKS"},
		{c.Voucher.MinTokens, "MIN_TOKENS_FOR_VOUCHER"},
		{c.Worker.PollIntervalMs, "WORKER_WAITING_TIME_IN_MS"},
	} {
		if p.val <= 0 {
			return fmt.Errorf("config %s must be positive", p.name)
		}
	}
	return nil
}

// Policy builds the voucher amounts and durations. ONE_TOKEN may exceed int64.
func (c *Config) Policy() (voucher.Policy, error) {
	unit, ok := new(big.Int).SetString(c.Voucher.OneToken, 10)
	if !ok || unit.Sign() <= 0 {
		return voucher.Policy{}, fmt.Errorf("invalid ONE_TOKEN %q", c.Voucher.OneToken)
	}
	if !common.IsHexAddress(c.Voucher.ContractAddress) {
		return voucher.Policy{}, fmt.Errorf("invalid CONTRACT_ADDRESS %q", c.Voucher.ContractAddress)
	}
	return voucher.Policy{
		Program:         common.HexToAddress(c.Voucher.ContractAddress),
		TokenUnit:       unit,
		InitialTokens:   c.Voucher.InitialTokens,
		InitialDuration: c.Voucher.InitialExpirationBlocks,
		TopUpTokens:     c.Voucher.TokensToAdd,
		RenewalBlocks:   c.Voucher.RenewalBlocks,
		MinTokens:       c.Voucher.MinTokens,
	}, nil
}

func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

func (w WorkerConfig) SubmitTimeout() time.Duration {
	return time.Duration(w.SubmitTimeoutSec) * time.Second
}

func (r RedisConfig) InflightTTL() time.Duration {
	return time.Duration(r.InflightTTLSec) * time.Second
}
