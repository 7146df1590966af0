package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"
)

// Viper keys, dotted paths into the yaml config file. Command flags bind to
// the same keys so flags override the file.
const (
	KeyChainEndpoint        = "chain.endpoint"
	KeyChainDepositContract = "chain.deposit_contract"

	KeyWalletKeystore       = "wallet.keystore"
	KeyWalletPassphrase     = "wallet.passphrase"
	KeyWalletPassphraseFile = "wallet.passphrase_file"
	KeyWalletPrivateKey     = "wallet.private_key"

	KeyDepositDataFile    = "deposit.data_file"
	KeyDepositAmountGwei  = "deposit.amount_gwei"
	KeyDepositVerifyRoots = "deposit.verify_roots"

	KeyFeesBlockCount        = "fees.block_count"
	KeyFeesRewardPercentile  = "fees.reward_percentile"
	KeyFeesBaseFeeMultiplier = "fees.base_fee_multiplier"
	KeyFeesMinTipWei         = "fees.min_tip_wei"
	KeyFeesFeeCapWei         = "fees.fee_cap_wei"

	KeySubmissionMaxAttempts       = "submission.max_attempts"
	KeySubmissionRetryBaseDelayMs  = "submission.retry_base_delay_ms"
	KeySubmissionRetryMaxDelayMs   = "submission.retry_max_delay_ms"
	KeySubmissionReceiptPollMs     = "submission.receipt_poll_interval_ms"
	KeySubmissionReceiptTimeoutMs  = "submission.receipt_timeout_ms"
	KeySubmissionGasLimit          = "submission.gas_limit"
	KeySubmissionGasEstimateBuffer = "submission.gas_estimate_buffer"

	KeyLedgerBackend = "ledger.backend"
	KeyLedgerPath    = "ledger.path"
)

// MainnetDepositContract is the canonical beacon deposit contract address,
// shared by mainnet and the public testnets.
const MainnetDepositContract = "0x00000000219ab540356cBB839Cbe05303d7705Fa"

// Ledger backends.
const (
	LedgerBackendFile   = "file"
	LedgerBackendBadger = "badger"
)

type ChainConfig struct {
	Endpoint        string `yaml:"endpoint"`
	DepositContract string `yaml:"deposit_contract"`
}

type WalletConfig struct {
	Keystore       string `yaml:"keystore"`
	Passphrase     string `yaml:"passphrase,omitempty"`
	PassphraseFile string `yaml:"passphrase_file,omitempty"`
	PrivateKey     string `yaml:"private_key,omitempty"`
}

type DepositConfig struct {
	DataFile    string `yaml:"data_file"`
	AmountGwei  uint64 `yaml:"amount_gwei"`
	VerifyRoots bool   `yaml:"verify_roots"`
}

type FeeConfig struct {
	BlockCount        uint64  `yaml:"block_count"`
	RewardPercentile  float64 `yaml:"reward_percentile"`
	BaseFeeMultiplier int64   `yaml:"base_fee_multiplier"`
	MinTipWei         int64   `yaml:"min_tip_wei"`
	FeeCapWei         int64   `yaml:"fee_cap_wei"`
}

type SubmissionConfig struct {
	MaxAttempts           int    `yaml:"max_attempts"`
	RetryBaseDelayMs      int64  `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs       int64  `yaml:"retry_max_delay_ms"`
	ReceiptPollIntervalMs int64  `yaml:"receipt_poll_interval_ms"`
	ReceiptTimeoutMs      int64  `yaml:"receipt_timeout_ms"`
	GasLimit              uint64 `yaml:"gas_limit"`
	GasEstimateBuffer     uint64 `yaml:"gas_estimate_buffer"`
}

type LedgerConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type Config struct {
	Chain      ChainConfig      `yaml:"chain"`
	Wallet     WalletConfig     `yaml:"wallet"`
	Deposit    DepositConfig    `yaml:"deposit"`
	Fees       FeeConfig        `yaml:"fees"`
	Submission SubmissionConfig `yaml:"submission"`
	Ledger     LedgerConfig     `yaml:"ledger"`
}

// DefaultConfig carries the values a run uses when the file and the flags
// stay silent. Fee fallbacks and caps follow the submitter's production
// defaults: 100 gwei fee cap, 1 gwei minimum tip.
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			DepositContract: MainnetDepositContract,
		},
		Deposit: DepositConfig{
			VerifyRoots: true,
		},
		Fees: FeeConfig{
			BlockCount:        10,
			RewardPercentile:  60,
			BaseFeeMultiplier: 2,
			MinTipWei:         1_000_000_000,   // 1 gwei
			FeeCapWei:         100_000_000_000, // 100 gwei
		},
		Submission: SubmissionConfig{
			MaxAttempts:           5,
			RetryBaseDelayMs:      1000,
			RetryMaxDelayMs:       30_000,
			ReceiptPollIntervalMs: 2000,
			ReceiptTimeoutMs:      120_000,
			GasEstimateBuffer:     5000,
		},
		Ledger: LedgerConfig{
			Backend: LedgerBackendFile,
			Path:    "successful_deposits.json",
		},
	}
}

// SetDefaults registers every default on the viper instance so New sees a
// complete key space.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault(KeyChainDepositContract, d.Chain.DepositContract)
	v.SetDefault(KeyDepositVerifyRoots, d.Deposit.VerifyRoots)
	v.SetDefault(KeyFeesBlockCount, d.Fees.BlockCount)
	v.SetDefault(KeyFeesRewardPercentile, d.Fees.RewardPercentile)
	v.SetDefault(KeyFeesBaseFeeMultiplier, d.Fees.BaseFeeMultiplier)
	v.SetDefault(KeyFeesMinTipWei, d.Fees.MinTipWei)
	v.SetDefault(KeyFeesFeeCapWei, d.Fees.FeeCapWei)
	v.SetDefault(KeySubmissionMaxAttempts, d.Submission.MaxAttempts)
	v.SetDefault(KeySubmissionRetryBaseDelayMs, d.Submission.RetryBaseDelayMs)
	v.SetDefault(KeySubmissionRetryMaxDelayMs, d.Submission.RetryMaxDelayMs)
	v.SetDefault(KeySubmissionReceiptPollMs, d.Submission.ReceiptPollIntervalMs)
	v.SetDefault(KeySubmissionReceiptTimeoutMs, d.Submission.ReceiptTimeoutMs)
	v.SetDefault(KeySubmissionGasEstimateBuffer, d.Submission.GasEstimateBuffer)
	v.SetDefault(KeyLedgerBackend, d.Ledger.Backend)
	v.SetDefault(KeyLedgerPath, d.Ledger.Path)
}

// New builds a Config from the viper instance the command layer prepared.
func New(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	c := &Config{
		Chain: ChainConfig{
			Endpoint:        v.GetString(KeyChainEndpoint),
			DepositContract: v.GetString(KeyChainDepositContract),
		},
		Wallet: WalletConfig{
			Keystore:       v.GetString(KeyWalletKeystore),
			Passphrase:     v.GetString(KeyWalletPassphrase),
			PassphraseFile: v.GetString(KeyWalletPassphraseFile),
			PrivateKey:     v.GetString(KeyWalletPrivateKey),
		},
		Deposit: DepositConfig{
			DataFile:    v.GetString(KeyDepositDataFile),
			AmountGwei:  v.GetUint64(KeyDepositAmountGwei),
			VerifyRoots: v.GetBool(KeyDepositVerifyRoots),
		},
		Fees: FeeConfig{
			BlockCount:        v.GetUint64(KeyFeesBlockCount),
			RewardPercentile:  v.GetFloat64(KeyFeesRewardPercentile),
			BaseFeeMultiplier: v.GetInt64(KeyFeesBaseFeeMultiplier),
			MinTipWei:         v.GetInt64(KeyFeesMinTipWei),
			FeeCapWei:         v.GetInt64(KeyFeesFeeCapWei),
		},
		Submission: SubmissionConfig{
			MaxAttempts:           v.GetInt(KeySubmissionMaxAttempts),
			RetryBaseDelayMs:      v.GetInt64(KeySubmissionRetryBaseDelayMs),
			RetryMaxDelayMs:       v.GetInt64(KeySubmissionRetryMaxDelayMs),
			ReceiptPollIntervalMs: v.GetInt64(KeySubmissionReceiptPollMs),
			ReceiptTimeoutMs:      v.GetInt64(KeySubmissionReceiptTimeoutMs),
			GasLimit:              v.GetUint64(KeySubmissionGasLimit),
			GasEstimateBuffer:     v.GetUint64(KeySubmissionGasEstimateBuffer),
		},
		Ledger: LedgerConfig{
			Backend: v.GetString(KeyLedgerBackend),
			Path:    v.GetString(KeyLedgerPath),
		},
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations that would misprice or missend deposits.
func (c *Config) Validate() error {
	if c.Chain.Endpoint == "" {
		return errors.New("chain.endpoint must be set")
	}
	if !common.IsHexAddress(c.Chain.DepositContract) {
		return fmt.Errorf("chain.deposit_contract is not a valid address: %q", c.Chain.DepositContract)
	}

	hasKeystore := c.Wallet.Keystore != ""
	hasPrivateKey := c.Wallet.PrivateKey != ""
	if hasKeystore == hasPrivateKey {
		return errors.New("exactly one of wallet.keystore and wallet.private_key must be set")
	}
	if c.Wallet.Passphrase != "" && c.Wallet.PassphraseFile != "" {
		return errors.New("wallet.passphrase and wallet.passphrase_file are mutually exclusive")
	}

	if c.Fees.BlockCount == 0 {
		return errors.New("fees.block_count must be positive")
	}
	if c.Fees.RewardPercentile <= 0 || c.Fees.RewardPercentile > 100 {
		return errors.New("fees.reward_percentile must be in (0, 100]")
	}
	if c.Fees.BaseFeeMultiplier < 2 {
		return errors.New("fees.base_fee_multiplier must be at least 2")
	}
	if c.Fees.MinTipWei <= 0 {
		return errors.New("fees.min_tip_wei must be positive")
	}
	if c.Fees.FeeCapWei <= 0 {
		return errors.New("fees.fee_cap_wei must be positive")
	}

	if c.Submission.MaxAttempts < 1 {
		return errors.New("submission.max_attempts must be at least 1")
	}
	if c.Submission.RetryBaseDelayMs <= 0 || c.Submission.RetryMaxDelayMs < c.Submission.RetryBaseDelayMs {
		return errors.New("submission retry delays must be positive and max >= base")
	}
	if c.Submission.ReceiptPollIntervalMs <= 0 || c.Submission.ReceiptTimeoutMs <= 0 {
		return errors.New("submission receipt poll interval and timeout must be positive")
	}

	switch c.Ledger.Backend {
	case LedgerBackendFile, LedgerBackendBadger:
	default:
		return fmt.Errorf("ledger.backend must be %q or %q", LedgerBackendFile, LedgerBackendBadger)
	}
	if c.Ledger.Path == "" {
		return errors.New("ledger.path must be set")
	}

	return nil
}

// WalletPassphrase resolves the wallet passphrase, reading the file variant
// when configured. The value never ends up in logs.
func (c *Config) WalletPassphrase() (string, error) {
	if c.Wallet.PassphraseFile != "" {
		raw, err := os.ReadFile(c.Wallet.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("read passphrase file: %w", err)
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
	return c.Wallet.Passphrase, nil
}

func (c *Config) DepositContractAddress() common.Address {
	return common.HexToAddress(c.Chain.DepositContract)
}

func (c SubmissionConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c SubmissionConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func (c SubmissionConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(c.ReceiptPollIntervalMs) * time.Millisecond
}

func (c SubmissionConfig) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutMs) * time.Millisecond
}

// WriteExample writes a starter config file with every default filled in.
func WriteExample(path string) error {
	example := DefaultConfig()
	example.Chain.Endpoint = "http://127.0.0.1:8545"
	example.Wallet.Keystore = "wallet/keystore.json"
	example.Wallet.PassphraseFile = "wallet/passphrase.txt"
	example.Deposit.DataFile = "deposit_data.json"

	out, err := yaml.Marshal(example)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}
