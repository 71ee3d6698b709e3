package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hako/durafmt"
)

const (
	DefaultReceiptTimeout = 300 * time.Second
	DefaultGasBuffer      = 20
)

// Node API used by EthLedger, satisfied by *ethclient.Client
type Backend interface {
	bind.DeployBackend
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

type Config struct {
	RPCURL           string
	ContractAddress  string
	PrivateKey       string
	ChainID          int64
	MinBalance       *big.Int
	GasBufferPercent int
	ReceiptTimeout   time.Duration
}

// Ledger backed by the registry contract on an Ethereum-compatible chain.
// Constructed once at startup and shared, the account nonce is serialized by nonceMutex.
type EthLedger struct {
	backend        Backend
	abi            abi.ABI
	contract       common.Address
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	minBalance     *big.Int
	gasBuffer      int
	receiptTimeout time.Duration
	nonceMutex     sync.Mutex
	log            logg.Logg
}

func Dial(ctx context.Context, cfg *Config, log logg.Logg) (result *EthLedger, err error) {
	var client *ethclient.Client
	if client, err = ethclient.DialContext(ctx, cfg.RPCURL); err != nil {
		err = errors.Wrapv(err, "unable to connect to ledger node", cfg.RPCURL)
		return
	}
	return NewEthLedger(client, cfg, log)
}

func NewEthLedger(backend Backend, cfg *Config, log logg.Logg) (result *EthLedger, err error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		err = errors.Errorv("invalid contract address", cfg.ContractAddress)
		return
	}

	var key *ecdsa.PrivateKey
	if key, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x")); err != nil {
		err = errors.Wrap(err, "invalid ledger private key")
		return
	}

	var parsed abi.ABI
	if parsed, err = parseRegistryABI(); err != nil {
		return
	}

	result = &EthLedger{
		backend:        backend,
		abi:            parsed,
		contract:       common.HexToAddress(cfg.ContractAddress),
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		minBalance:     cfg.MinBalance,
		gasBuffer:      cfg.GasBufferPercent,
		receiptTimeout: cfg.ReceiptTimeout,
		log:            log,
	}
	if cfg.ChainID > 0 {
		result.chainID = big.NewInt(cfg.ChainID)
	}
	if result.minBalance == nil {
		result.minBalance, _ = ParseEther(DefaultMinBalance)
	}
	if result.receiptTimeout <= 0 {
		result.receiptTimeout = DefaultReceiptTimeout
	}

	return
}

func (l *EthLedger) Account() string {
	return l.from.Hex()
}

func (l *EthLedger) IsPullRequestLogged(ctx context.Context, id int64) (logged bool, err error) {
	var data []byte
	if data, err = l.abi.Pack(methodGetPullRequest, big.NewInt(id)); err != nil {
		err = errors.Wrap(err, "unable to pack ledger call")
		return
	}

	var output []byte
	if output, err = l.backend.CallContract(ctx, ethereum.CallMsg{To: &l.contract, Data: data}, nil); err != nil {
		err = errors.Wrapv(err, "unable to read pull request from ledger", id)
		return
	}
	if len(output) == 0 {
		err = errors.Errorv("empty ledger response, is the contract deployed?", l.contract.Hex())
		return
	}

	var values []interface{}
	if values, err = l.abi.Unpack(methodGetPullRequest, output); err != nil {
		err = errors.Wrap(err, "unable to unpack ledger response")
		return
	}
	if len(values) < 5 {
		err = errors.Errorv("unexpected ledger response size", len(values))
		return
	}

	logged, _ = values[4].(bool)

	return
}

// Transaction hash of the latest PullRequestLogged event for the id
func (l *EthLedger) FindPullRequestLog(ctx context.Context, id int64) (txHash string, found bool, err error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{l.contract},
		Topics: [][]common.Hash{
			{l.abi.Events[eventPullRequest].ID},
			{common.BigToHash(big.NewInt(id))},
		},
	}

	var logs []types.Log
	if logs, err = l.backend.FilterLogs(ctx, query); err != nil {
		err = errors.Wrapv(err, "unable to filter ledger events", id)
		return
	}
	if len(logs) == 0 {
		return
	}

	txHash = logs[len(logs)-1].TxHash.Hex()
	found = true

	return
}

func (l *EthLedger) TransactionExists(ctx context.Context, txHash string) (exists bool, err error) {
	_, _, err = l.backend.TransactionByHash(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		err = nil
		return
	}
	if err != nil {
		err = errors.Wrapv(err, "unable to look up transaction", txHash)
		return
	}
	exists = true
	return
}

func (l *EthLedger) LogPullRequest(ctx context.Context, entry *PullRequestEntry) (txHash string, err error) {
	var data []byte
	data, err = l.abi.Pack(methodLogPullRequest, big.NewInt(entry.ID), entry.ProjectName, entry.Developer, entry.Timestamp, entry.Status)
	if err != nil {
		err = errors.Wrap(err, "unable to pack pull request entry")
		return
	}
	return l.transact(ctx, data, l.log.WithField("pr", entry.ID))
}

func (l *EthLedger) LogCommit(ctx context.Context, entry *CommitEntry) (txHash string, err error) {
	var data []byte
	if data, err = l.abi.Pack(methodLogCommit, entry.Hash, entry.ProjectName, entry.Author, entry.Timestamp); err != nil {
		err = errors.Wrap(err, "unable to pack commit entry")
		return
	}
	return l.transact(ctx, data, l.log.WithField("commit", entry.Hash))
}

func (l *EthLedger) transact(ctx context.Context, data []byte, log logg.Logg) (txHash string, err error) {
	var signed *types.Transaction
	if signed, err = l.submit(ctx, data, log); err != nil {
		return
	}
	txHash = signed.Hash().Hex()
	log = log.WithField("tx", txHash)

	waitCtx, cancel := context.WithTimeout(ctx, l.receiptTimeout)
	defer cancel()

	start := time.Now()
	var receipt *types.Receipt
	if receipt, err = bind.WaitMined(waitCtx, l.backend, signed); err != nil {
		err = errors.Wrapv(err, "no receipt for transaction", txHash, durafmt.Parse(l.receiptTimeout).String())
		return
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = errors.Errorv("transaction reverted", txHash)
		return
	}

	log.WithField("block", receipt.BlockNumber).
		WithField("wait", durafmt.Parse(time.Since(start)).String()).
		Info("ledger transaction mined")

	return
}

// Preflight, sign and send. Holds the nonce mutex so two submissions never share a nonce.
func (l *EthLedger) submit(ctx context.Context, data []byte, log logg.Logg) (signed *types.Transaction, err error) {
	l.nonceMutex.Lock()
	defer l.nonceMutex.Unlock()

	if l.chainID == nil {
		if l.chainID, err = l.backend.ChainID(ctx); err != nil {
			err = errors.Wrap(err, "unable to get chain id")
			return
		}
	}

	var balance *big.Int
	if balance, err = l.backend.BalanceAt(ctx, l.from, nil); err != nil {
		err = errors.Wrap(err, "unable to get account balance")
		return
	}
	if err = checkMinimum(balance, l.minBalance); err != nil {
		return
	}

	var gasPrice *big.Int
	if gasPrice, err = l.backend.SuggestGasPrice(ctx); err != nil {
		err = errors.Wrap(err, "unable to get gas price")
		return
	}

	var estimate uint64
	if estimate, err = l.backend.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &l.contract, Data: data}); err != nil {
		err = errors.Wrap(err, "unable to estimate gas")
		return
	}
	gasLimit := bufferedGas(estimate, l.gasBuffer)
	if err = checkCost(balance, new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))); err != nil {
		return
	}

	var nonce uint64
	if nonce, err = l.backend.PendingNonceAt(ctx, l.from); err != nil {
		err = errors.Wrap(err, "unable to get account nonce")
		return
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &l.contract,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	if signed, err = types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key); err != nil {
		err = errors.Wrap(err, "unable to sign transaction")
		return
	}

	log.WithFields(logg.Fields{
		"nonce":    nonce,
		"gas":      gasLimit,
		"gasPrice": gasPrice.String(),
		"balance":  FormatEther(balance),
	}).Debug("sending ledger transaction")

	if err = l.backend.SendTransaction(ctx, signed); err != nil {
		err = errors.Wrap(err, "unable to send transaction")
	}

	return
}
