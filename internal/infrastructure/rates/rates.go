package rates

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

var hundred = decimal.NewFromInt(100)

// Rate is a percentage fee paid to Recipient on every payment. An additive
// rate is charged on top of the amount, a deductive one is taken out of it.
type Rate struct {
	Name      string
	Recipient string
	Percent   decimal.Decimal
	Deductive bool
}

type RateConfig struct {
	Name      string `json:"name" yaml:"name"`
	Recipient string `json:"recipient" yaml:"recipient"`
	Percent   string `json:"percent" yaml:"percent"`
	Deductive bool   `json:"deductive" yaml:"deductive"`
}

// Table applies its rates in order. The zero value charges nothing.
type Table struct {
	rates []Rate
}

func NewTable(rates ...Rate) *Table {
	return &Table{rates: rates}
}

func FromConfig(cfgs []RateConfig) (*Table, error) {
	rates := make([]Rate, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Recipient == "" {
			return nil, fmt.Errorf("rate %q: recipient is required", cfg.Name)
		}
		pct, err := decimal.NewFromString(cfg.Percent)
		if err != nil {
			return nil, fmt.Errorf("rate %q: invalid percent %q: %w", cfg.Name, cfg.Percent, err)
		}
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return nil, fmt.Errorf("rate %q: percent must be between 0 and 100", cfg.Name)
		}
		rates = append(rates, Rate{
			Name:      cfg.Name,
			Recipient: cfg.Recipient,
			Percent:   pct,
			Deductive: cfg.Deductive,
		})
	}
	return NewTable(rates...), nil
}

func (t *Table) Rates() []Rate {
	return append([]Rate(nil), t.rates...)
}

// OnFundsTransfer computes one bank send per non-zero fee, rounded down.
// Deductive fees reduce the remainder, additive ones leave it untouched.
func (t *Table) OnFundsTransfer(ctx context.Context, payer string, amount crowdfund.Coin) (*crowdfund.RatesResult, error) {
	result := &crowdfund.RatesResult{Remainder: amount}
	if t == nil {
		return result, nil
	}

	base := decimal.NewFromBigInt(new(big.Int).SetUint64(amount.Amount), 0)
	for _, rate := range t.rates {
		fee, err := percentOf(base, rate.Percent)
		if err != nil {
			return nil, err
		}
		if fee == 0 {
			continue
		}
		if rate.Deductive {
			if fee > result.Remainder.Amount {
				return nil, domainErrors.ErrInvalidFunds
			}
			result.Remainder.Amount -= fee
		}
		result.Msgs = append(result.Msgs, crowdfund.BankSend(rate.Recipient, crowdfund.NewCoin(fee, amount.Denom)))
	}
	return result, nil
}

func percentOf(base, pct decimal.Decimal) (uint64, error) {
	fee := base.Mul(pct).Div(hundred).Floor().BigInt()
	if !fee.IsUint64() {
		return 0, domainErrors.ErrAmountOverflow
	}
	return fee.Uint64(), nil
}
