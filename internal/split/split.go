// Package split computes each payer's share of a collection total.
//
// Shares are rounded to two decimal places, half away from zero. When the
// payer count does not divide the total evenly the rounded shares do not sum
// back to the total; that drift is accepted and never redistributed.
package split

import (
	"errors"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every share is rounded to.
const Places = 2

var ErrNoPayers = errors.New("no payers to split the amount between")

// Share returns round(total / payers, 2).
func Share(total decimal.Decimal, payers int) (decimal.Decimal, error) {
	if payers <= 0 {
		return decimal.Zero, ErrNoPayers
	}
	return total.Div(decimal.NewFromInt(int64(payers))).Round(Places), nil
}

// Apply sets AmountToPay on every payer to the computed share and returns it.
func Apply(total decimal.Decimal, payers []*models.Obligation) (decimal.Decimal, error) {
	share, err := Share(total, len(payers))
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range payers {
		p.AmountToPay = share
	}
	return share, nil
}

// Collected is the amount actually gathered when n payers each pay share.
func Collected(share decimal.Decimal, n int) decimal.Decimal {
	return share.Mul(decimal.NewFromInt(int64(n)))
}
