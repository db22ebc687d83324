package relayer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/mayur2811/chainbridge/pkg/attest"
)

// ChainConfig locates the bridge contracts on one EVM network.
type ChainConfig struct {
	RPC        string
	Router     common.Address
	Vault      common.Address
	Tokens     []common.Address
	StartBlock uint64
}

type Config struct {
	SigningKey string
	Custody    ChainConfig
	Wrapped    ChainConfig

	Confirmations      uint64
	PollInterval       time.Duration
	MaxRetries         uint64
	RetryInitial       time.Duration
	RetryMax           time.Duration
	AttestationTimeout time.Duration
	RPCRateLimit       float64

	DataDir     string
	NATSURL     string
	NATSSubject string
	StatusAddr  string
	LogLevel    string
}

// SetDefaults registers the defaults of every optional key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("confirmations", 3)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("max_retries", 8)
	v.SetDefault("retry_initial", time.Second)
	v.SetDefault("retry_max", time.Minute)
	v.SetDefault("attestation_timeout", 30*time.Second)
	v.SetDefault("rpc_rate_limit", 0)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject", attest.DefaultSubject)
	v.SetDefault("status_addr", "[::]:6060")
	v.SetDefault("log_level", "info")
}

// LoadConfig reads the relayer configuration from v and validates it.
func LoadConfig(v *viper.Viper) (*Config, error) {
	custody, err := loadChain(v, "custody")
	if err != nil {
		return nil, err
	}
	wrapped, err := loadChain(v, "wrapped")
	if err != nil {
		return nil, err
	}
	c := &Config{
		SigningKey:         v.GetString("signing_key"),
		Custody:            custody,
		Wrapped:            wrapped,
		Confirmations:      v.GetUint64("confirmations"),
		PollInterval:       v.GetDuration("poll_interval"),
		MaxRetries:         v.GetUint64("max_retries"),
		RetryInitial:       v.GetDuration("retry_initial"),
		RetryMax:           v.GetDuration("retry_max"),
		AttestationTimeout: v.GetDuration("attestation_timeout"),
		RPCRateLimit:       v.GetFloat64("rpc_rate_limit"),
		DataDir:            v.GetString("data_dir"),
		NATSURL:            v.GetString("nats_url"),
		NATSSubject:        v.GetString("nats_subject"),
		StatusAddr:         v.GetString("status_addr"),
		LogLevel:           v.GetString("log_level"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadChain(v *viper.Viper, prefix string) (ChainConfig, error) {
	c := ChainConfig{
		RPC:        v.GetString(prefix + ".rpc"),
		StartBlock: v.GetUint64(prefix + ".start_block"),
	}
	var err error
	if c.Router, err = parseAddress(v.GetString(prefix + ".router")); err != nil {
		return c, fmt.Errorf("%s.router: %w", prefix, err)
	}
	if c.Vault, err = parseAddress(v.GetString(prefix + ".vault")); err != nil {
		return c, fmt.Errorf("%s.vault: %w", prefix, err)
	}
	for _, s := range v.GetStringSlice(prefix + ".tokens") {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			addr, err := parseAddress(part)
			if err != nil {
				return c, fmt.Errorf("%s.tokens: %w", prefix, err)
			}
			c.Tokens = append(c.Tokens, addr)
		}
	}
	return c, nil
}

func parseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// Validate fails on any missing required value so that a misconfigured
// relayer never starts.
func (c *Config) Validate() error {
	var errs []error
	if c.SigningKey == "" {
		errs = append(errs, errors.New("signing_key is required"))
	}
	if c.Custody.RPC == "" {
		errs = append(errs, errors.New("custody.rpc is required"))
	}
	if c.Custody.Router == (common.Address{}) {
		errs = append(errs, errors.New("custody.router is required"))
	}
	if c.Custody.Vault == (common.Address{}) {
		errs = append(errs, errors.New("custody.vault is required"))
	}
	if c.Wrapped.RPC == "" {
		errs = append(errs, errors.New("wrapped.rpc is required"))
	}
	if c.Wrapped.Router == (common.Address{}) {
		errs = append(errs, errors.New("wrapped.router is required"))
	}
	if len(c.Wrapped.Tokens) == 0 {
		errs = append(errs, errors.New("wrapped.tokens is required"))
	}
	if c.Wrapped.Vault != (common.Address{}) {
		errs = append(errs, errors.New("wrapped.vault must not be set"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.AttestationTimeout <= 0 {
		errs = append(errs, errors.New("attestation_timeout must be positive"))
	}
	if c.RetryInitial <= 0 || c.RetryMax < c.RetryInitial {
		errs = append(errs, errors.New("retry_initial must be positive and not above retry_max"))
	}
	if c.RPCRateLimit < 0 {
		errs = append(errs, errors.New("rpc_rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}
