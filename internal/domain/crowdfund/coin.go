package crowdfund

import (
	"fmt"
	"math/bits"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

type Coin struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount,string"`
}

func NewCoin(amount uint64, denom string) Coin {
	return Coin{Denom: denom, Amount: amount}
}

func (c Coin) String() string {
	return fmt.Sprintf("%d%s", c.Amount, c.Denom)
}

func (c Coin) IsZero() bool {
	return c.Amount == 0
}

func addAmount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domainErrors.ErrAmountOverflow
	}
	return sum, nil
}

func mulAmount(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, domainErrors.ErrAmountOverflow
	}
	return lo, nil
}

func subSaturating(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// amountOf sums the funds sent in denom. Funds in any other denomination are rejected.
func amountOf(funds []Coin, denom string) (uint64, error) {
	var total uint64
	for _, c := range funds {
		if c.Amount == 0 {
			continue
		}
		if c.Denom != denom {
			return 0, domainErrors.ErrInvalidFunds
		}
		var err error
		if total, err = addAmount(total, c.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func nonPayable(funds []Coin) error {
	for _, c := range funds {
		if !c.IsZero() {
			return domainErrors.ErrNonPayable
		}
	}
	return nil
}
