package ledger

import (
	"math/big"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/ethereum/go-ethereum/params"
)

const DefaultMinBalance = "0.01"

// Decimal amount of the native unit ("0.01") to wei
func ParseEther(amount string) (wei *big.Int, err error) {
	value, ok := new(big.Rat).SetString(strings.TrimSpace(amount))
	if !ok || value.Sign() < 0 {
		err = errors.Errorv("invalid ether amount", amount)
		return
	}
	value.Mul(value, new(big.Rat).SetInt(big.NewInt(params.Ether)))
	wei = new(big.Int).Quo(value.Num(), value.Denom())
	return
}

func FormatEther(wei *big.Int) string {
	value := new(big.Float).Quo(new(big.Float).SetInt(wei), new(big.Float).SetInt(big.NewInt(params.Ether)))
	return value.Text('f', 6)
}

// Balance must hold the fixed minimum before anything is estimated
func checkMinimum(balance, minBalance *big.Int) error {
	if balance.Cmp(minBalance) < 0 {
		return errors.Kindf(errors.InsufficientFunds, "insufficient balance: %s ETH is below the %s ETH minimum",
			FormatEther(balance), FormatEther(minBalance))
	}
	return nil
}

func checkCost(balance, cost *big.Int) error {
	if balance.Cmp(cost) < 0 {
		return errors.Kindf(errors.InsufficientFunds, "insufficient balance: %s ETH does not cover the estimated cost of %s ETH",
			FormatEther(balance), FormatEther(cost))
	}
	return nil
}

// Gas limit with a percentage buffer on top of the estimate
func bufferedGas(estimate uint64, bufferPercent int) uint64 {
	return estimate * uint64(100+bufferPercent) / 100
}
