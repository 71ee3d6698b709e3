package ledger

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contractHex = "0xc4a28C2308822811d2e08558FA25E1d035792d73"

type fakeBackend struct {
	balance       *big.Int
	gasPrice      *big.Int
	estimate      uint64
	estimateErr   error
	nonce         uint64
	receiptStatus uint64
	callOutput    []byte
	logs          []types.Log
	knownTx       map[common.Hash]bool
	sent          []*types.Transaction
	filterQuery   ethereum.FilterQuery
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: f.receiptStatus, TxHash: hash, BlockNumber: big.NewInt(12)}, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callOutput, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.filterQuery = q
	return f.logs, nil
}

func (f *fakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if f.knownTx[hash] {
		return types.NewTx(&types.LegacyTx{}), false, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1337), nil
}

func ether(amount string) *big.Int {
	wei, err := ParseEther(amount)
	if err != nil {
		panic(err)
	}
	return wei
}

func newTestEthLedger(t *testing.T, backend *fakeBackend) *EthLedger {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	l, err := NewEthLedger(backend, &Config{
		ContractAddress:  contractHex,
		PrivateKey:       "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
		GasBufferPercent: DefaultGasBuffer,
		ReceiptTimeout:   5 * time.Second,
	}, logg.NewNopLogg())
	require.NoError(t, err)

	return l
}

func TestParseEther(t *testing.T) {
	wei, err := ParseEther("0.01")

	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", wei.String())

	_, err = ParseEther("lots")
	assert.Error(t, err)
}

func TestEthLedger_LogPullRequest(t *testing.T) {
	tests := []struct {
		name          string
		balance       string
		receiptStatus uint64
		expKind       errors.Kind
		expErr        string
		expSent       int
	}{
		{"below minimum", "0.005", types.ReceiptStatusSuccessful, errors.InsufficientFunds, "below the 0.010000 ETH minimum", 0},
		{"below estimated cost", "0.02", types.ReceiptStatusSuccessful, errors.InsufficientFunds, "does not cover the estimated cost", 0},
		{"mined", "1", types.ReceiptStatusSuccessful, "", "", 1},
		{"reverted", "1", types.ReceiptStatusFailed, errors.Unknown, "transaction reverted", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runLogPullRequestTest(t, tt.balance, tt.receiptStatus, tt.expKind, tt.expErr, tt.expSent)
		})
	}
}

func runLogPullRequestTest(t *testing.T, balance string, receiptStatus uint64, expKind errors.Kind, expErr string, expSent int) {
	// 100000 gas * 1.2 * 200 gwei = 0.024 ETH
	backend := &fakeBackend{
		balance:       ether(balance),
		gasPrice:      big.NewInt(200000000000),
		estimate:      100000,
		nonce:         9,
		receiptStatus: receiptStatus,
	}
	l := newTestEthLedger(t, backend)

	// Fire
	txHash, err := l.LogPullRequest(context.Background(), &PullRequestEntry{ID: 1, ProjectName: "proj1", Developer: "dev1", Timestamp: "t", Status: "approved"})

	assert.Len(t, backend.sent, expSent)
	if expErr != "" {
		require.Error(t, err)
		assert.Contains(t, err.Error(), expErr)
		assert.Equal(t, expKind, errors.KindOf(err))
		return
	}
	require.NoError(t, err)
	sent := backend.sent[0]
	assert.Equal(t, sent.Hash().Hex(), txHash)
	assert.Equal(t, uint64(120000), sent.Gas())
	assert.Equal(t, uint64(9), sent.Nonce())
	assert.Equal(t, common.HexToAddress(contractHex), *sent.To())
	assert.Equal(t, l.abi.Methods[methodLogPullRequest].ID, sent.Data()[:4])
}

func TestEthLedger_LogPullRequest_MinimumBeforeEstimate(t *testing.T) {
	backend := &fakeBackend{
		balance:     ether("0.005"),
		gasPrice:    big.NewInt(200000000000),
		estimateErr: errors.New("execution reverted: insufficient funds for gas"),
	}
	l := newTestEthLedger(t, backend)

	// Fire
	_, err := l.LogPullRequest(context.Background(), &PullRequestEntry{ID: 1, ProjectName: "proj1"})

	require.Error(t, err)
	assert.Equal(t, errors.InsufficientFunds, errors.KindOf(err))
	assert.Contains(t, err.Error(), "below the 0.010000 ETH minimum")
	assert.Empty(t, backend.sent)
}

func TestEthLedger_LogPullRequest_EstimateFailure(t *testing.T) {
	backend := &fakeBackend{
		balance:     ether("1"),
		gasPrice:    big.NewInt(200000000000),
		estimateErr: errors.New("execution reverted"),
	}
	l := newTestEthLedger(t, backend)

	// Fire
	_, err := l.LogPullRequest(context.Background(), &PullRequestEntry{ID: 1, ProjectName: "proj1"})

	require.Error(t, err)
	assert.NotEqual(t, errors.InsufficientFunds, errors.KindOf(err))
	assert.Contains(t, err.Error(), "unable to estimate gas")
	assert.Empty(t, backend.sent)
}

func TestEthLedger_IsPullRequestLogged(t *testing.T) {
	parsed, err := parseRegistryABI()
	require.NoError(t, err)
	output, err := parsed.Methods[methodGetPullRequest].Outputs.Pack("proj1", "dev1", "t", "approved", true)
	require.NoError(t, err)
	l := newTestEthLedger(t, &fakeBackend{callOutput: output})

	// Fire
	logged, err := l.IsPullRequestLogged(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, logged)
}

func TestEthLedger_IsPullRequestLogged_NoContract(t *testing.T) {
	l := newTestEthLedger(t, &fakeBackend{})

	// Fire
	_, err := l.IsPullRequestLogged(context.Background(), 1)

	assert.Error(t, err)
}

func TestEthLedger_FindPullRequestLog(t *testing.T) {
	first := common.HexToHash("0x01")
	latest := common.HexToHash("0x02")
	backend := &fakeBackend{logs: []types.Log{{TxHash: first}, {TxHash: latest}}}
	l := newTestEthLedger(t, backend)

	// Fire
	txHash, found, err := l.FindPullRequestLog(context.Background(), 42)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, latest.Hex(), txHash)
	require.Len(t, backend.filterQuery.Topics, 2)
	assert.Equal(t, l.abi.Events[eventPullRequest].ID, backend.filterQuery.Topics[0][0])
	assert.Equal(t, common.BigToHash(big.NewInt(42)), backend.filterQuery.Topics[1][0])
}

func TestEthLedger_TransactionExists(t *testing.T) {
	known := common.HexToHash("0xaa")
	l := newTestEthLedger(t, &fakeBackend{knownTx: map[common.Hash]bool{known: true}})

	exists, err := l.TransactionExists(context.Background(), known.Hex())
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = l.TransactionExists(context.Background(), common.HexToHash("0xbb").Hex())
	require.NoError(t, err)
	assert.False(t, exists)
}
