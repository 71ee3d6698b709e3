package config

import (
	"time"

	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/manip"
	"github.com/chainaudit/chainaudit/pkg/valid"
	va "github.com/go-ozzo/ozzo-validation/v4"
)

type (
	AppConfig struct {
		LogLevel      string        `param:"log-level"`
		LogFile       string        `param:"log-file"`
		HTTPConfig    HTTPConfig    `param:"http"`
		StoreConfig   StoreConfig   `param:"store"`
		GithubConfig  GithubConfig  `param:"github"`
		WebhookConfig WebhookConfig `param:"webhook"`
		ScannerConfig ScannerConfig `param:"scanner"`
		LedgerConfig  LedgerConfig  `param:"ledger"`
		AccountConfig AccountConfig `param:"account"`
	}
	HTTPConfig struct {
		Addr            string        `param:"addr"`
		ShutdownTimeout time.Duration `param:"shutdown-timeout"`
	}
	StoreConfig struct {
		Dir string `param:"dir"`
	}
	GithubConfig struct {
		APIURL string `param:"api-url"`
	}
	// Hooks are only registered when PublicURL is set
	WebhookConfig struct {
		PublicURL string `param:"public-url"`
		Secret    string `param:"secret"`
	}
	ScannerConfig struct {
		Command   []string      `param:"command"`
		Extension string        `param:"extension"`
		Timeout   time.Duration `param:"timeout"`
	}
	LedgerConfig struct {
		Enabled          bool          `param:"enabled"`
		RPCURL           string        `param:"rpc-url"`
		ContractAddress  string        `param:"contract-address"`
		PrivateKey       string        `param:"private-key"`
		ChainID          int64         `param:"chain-id"`
		MinBalance       string        `param:"min-balance"`
		GasBufferPercent int           `param:"gas-buffer-percent"`
		ReceiptTimeout   time.Duration `param:"receipt-timeout"`
		VerifyTx         bool          `param:"verify-tx"`
		RetryAttempts    int           `param:"retry-attempts"`
		RetryPause       time.Duration `param:"retry-pause"`
		RetryBackoff     string        `param:"retry-backoff"`
	}
	AccountConfig struct {
		BcryptCost int `param:"bcrypt-cost"`
	}
)

const (
	BackoffConstant = "constant"
	BackoffLinear   = "linear"
)

// Dotted keys and their default values
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"log-level":                 logg.Info.Value(),
		"log-file":                  "",
		"http.addr":                 ":5001",
		"http.shutdown-timeout":     "10s",
		"store.dir":                 "./data",
		"github.api-url":            "https://api.github.com/",
		"webhook.public-url":        "",
		"webhook.secret":            "",
		"scanner.command":           []string{"bandit", "-f", "json", "-q"},
		"scanner.extension":         ".py",
		"scanner.timeout":           "60s",
		"ledger.enabled":            false,
		"ledger.rpc-url":            "",
		"ledger.contract-address":   "",
		"ledger.private-key":        "",
		"ledger.chain-id":           0,
		"ledger.min-balance":        "0.01",
		"ledger.gas-buffer-percent": 20,
		"ledger.receipt-timeout":    "300s",
		"ledger.verify-tx":          false,
		"ledger.retry-attempts":     3,
		"ledger.retry-pause":        "1s",
		"ledger.retry-backoff":      BackoffConstant,
		"account.bcrypt-cost":       0,
	}
}

func (appCfg AppConfig) Validate() error {
	return va.ValidateStruct(&appCfg,
		va.Field(&appCfg.LogLevel, va.Required, va.In(manip.DowncastSlice(logg.ValidLevelValues())...)),
		va.Field(&appCfg.HTTPConfig),
		va.Field(&appCfg.StoreConfig),
		va.Field(&appCfg.GithubConfig),
		va.Field(&appCfg.WebhookConfig),
		va.Field(&appCfg.ScannerConfig),
		va.Field(&appCfg.LedgerConfig),
		va.Field(&appCfg.AccountConfig),
	)
}

func (c HTTPConfig) Validate() error {
	return va.ValidateStruct(&c,
		va.Field(&c.Addr, va.Required),
		va.Field(&c.ShutdownTimeout, va.Min(time.Duration(0))),
	)
}

func (c StoreConfig) Validate() error {
	return va.ValidateStruct(&c,
		va.Field(&c.Dir, va.Required),
	)
}

func (c GithubConfig) Validate() error {
	return va.ValidateStruct(&c,
		va.Field(&c.APIURL, va.Required, valid.URL),
	)
}

func (c WebhookConfig) Validate() error {
	return va.ValidateStruct(&c,
		va.Field(&c.PublicURL, valid.URL),
	)
}

func (c ScannerConfig) Validate() error {
	return va.ValidateStruct(&c,
		va.Field(&c.Command, va.Required),
		va.Field(&c.Extension, va.Required, valid.Extension),
		va.Field(&c.Timeout, va.Required, va.Min(time.Second)),
	)
}

// Connection fields are only required with the ledger enabled
func (c LedgerConfig) Validate() error {
	return va.ValidateStruct(&c,
		va.Field(&c.RPCURL, va.When(c.Enabled, va.Required)),
		va.Field(&c.ContractAddress, va.When(c.Enabled, va.Required, valid.EthAddress)),
		va.Field(&c.PrivateKey, va.When(c.Enabled, va.Required)),
		va.Field(&c.MinBalance, va.Required),
		va.Field(&c.GasBufferPercent, va.Min(0), va.Max(500)),
		va.Field(&c.ReceiptTimeout, va.Required),
		va.Field(&c.RetryAttempts, va.Required, va.Min(1)),
		va.Field(&c.RetryBackoff, va.Required, va.In(BackoffConstant, BackoffLinear)),
	)
}

func (c AccountConfig) Validate() error {
	return va.ValidateStruct(&c,
		va.Field(&c.BcryptCost, va.When(c.BcryptCost != 0, va.Min(4), va.Max(31))),
	)
}
