package build

import (
	"context"
	"io"
	"time"

	"github.com/chainaudit/chainaudit/pkg/account"
	"github.com/chainaudit/chainaudit/pkg/api"
	"github.com/chainaudit/chainaudit/pkg/app/config"
	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/intake"
	"github.com/chainaudit/chainaudit/pkg/ledger"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/project"
	"github.com/chainaudit/chainaudit/pkg/pulls"
	"github.com/chainaudit/chainaudit/pkg/retry"
	"github.com/chainaudit/chainaudit/pkg/scan"
	"github.com/chainaudit/chainaudit/pkg/source"
	"github.com/chainaudit/chainaudit/pkg/source/providers"
)

type AppParams struct {
	Server          *api.Server
	DB              *database.Database
	ShutdownTimeout time.Duration
	LogCloser       io.Closer
	AppLog          logg.Logg
}

func App(ctx context.Context, appCfg *config.AppConfig) (result *AppParams, err error) {
	// Logger
	var appLog logg.Logg
	var logCloser io.Closer
	if appLog, logCloser, err = Log(appCfg.LogLevel, appCfg.LogFile); err != nil {
		err = errors.WithMessage(err, "unable to build logger")
		return
	}
	dbLog := appLog.WithPrefix("db")
	sourceLog := appLog.WithPrefix("source")
	scanLog := appLog.WithPrefix("scan")
	ledgerLog := appLog.WithPrefix("ledger")
	pullsLog := appLog.WithPrefix("pulls")
	intakeLog := appLog.WithPrefix("intake")
	accountLog := appLog.WithPrefix("account")
	projectLog := appLog.WithPrefix("project")
	apiLog := appLog.WithPrefix("api")

	// Database
	var db *database.Database
	if db, err = database.New(appCfg.StoreConfig.Dir, dbLog); err != nil {
		err = errors.WithMessagev(err, "unable to build database", appCfg.StoreConfig.Dir)
		return
	}

	// Code host
	var host *providers.GithubProvider
	if host, err = providers.NewGithubProvider(appCfg.GithubConfig.APIURL, sourceLog); err != nil {
		err = errors.WithMessage(err, "unable to build github provider")
		return
	}
	fetcher := source.NewFetcher(host, sourceLog)

	// Scanner
	scanCfg := appCfg.ScannerConfig
	runner := scan.NewExecRunner(scanCfg.Command, scanLog)
	scanner := scan.NewScanner(runner, scanCfg.Extension, scanCfg.Timeout, scanLog)

	// Ledger
	var chain ledger.Ledger
	if chain, err = buildLedger(ctx, &appCfg.LedgerConfig, ledgerLog); err != nil {
		err = errors.WithMessage(err, "unable to build ledger")
		return
	}
	ledgerSettings := pulls.LedgerSettings{
		Ledger:   chain,
		Policy:   buildRetryPolicy(&appCfg.LedgerConfig),
		VerifyTx: appCfg.LedgerConfig.VerifyTx,
	}

	// Services
	hook := project.HookConfig{PublicURL: appCfg.WebhookConfig.PublicURL, Secret: appCfg.WebhookConfig.Secret}
	services := &api.Services{
		Pulls:    pulls.NewService(db, fetcher, scanner, ledgerSettings, pullsLog),
		Intake:   intake.New(db, chain, intakeLog),
		Accounts: account.NewService(db, appCfg.AccountConfig.BcryptCost, accountLog),
		Projects: project.NewService(db, host, hook, projectLog),
	}

	serverCfg := api.Config{Addr: appCfg.HTTPConfig.Addr, WebhookSecret: appCfg.WebhookConfig.Secret}

	result = &AppParams{
		Server:          api.NewServer(serverCfg, services, apiLog),
		DB:              db,
		ShutdownTimeout: appCfg.HTTPConfig.ShutdownTimeout,
		LogCloser:       logCloser,
		AppLog:          appLog,
	}

	return
}

// Returns a nil interface when the ledger is disabled
func buildLedger(ctx context.Context, ledgerCfg *config.LedgerConfig, log logg.Logg) (result ledger.Ledger, err error) {
	if !ledgerCfg.Enabled {
		log.Info("ledger mirroring is disabled")
		return
	}

	cfg := &ledger.Config{
		RPCURL:           ledgerCfg.RPCURL,
		ContractAddress:  ledgerCfg.ContractAddress,
		PrivateKey:       ledgerCfg.PrivateKey,
		ChainID:          ledgerCfg.ChainID,
		GasBufferPercent: ledgerCfg.GasBufferPercent,
		ReceiptTimeout:   ledgerCfg.ReceiptTimeout,
	}
	if cfg.MinBalance, err = ledger.ParseEther(ledgerCfg.MinBalance); err != nil {
		err = errors.WithMessagev(err, "invalid minimum balance", ledgerCfg.MinBalance)
		return
	}

	var ethLedger *ledger.EthLedger
	if ethLedger, err = ledger.Dial(ctx, cfg, log); err != nil {
		return
	}
	log.WithFields(logg.Fields{"account": ethLedger.Account(), "contract": cfg.ContractAddress}).Info("ledger mirroring is enabled")
	result = ethLedger

	return
}

func buildRetryPolicy(ledgerCfg *config.LedgerConfig) *retry.Policy {
	backoff := retry.Constant(ledgerCfg.RetryPause)
	if ledgerCfg.RetryBackoff == config.BackoffLinear {
		backoff = retry.Linear(ledgerCfg.RetryPause)
	}
	return retry.NewPolicy(ledgerCfg.RetryAttempts, backoff)
}
