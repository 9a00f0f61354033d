package projection

import (
	"github.com/shopspring/decimal"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/services/format"
)

// CardOptions describe the token shown in the card row.
type CardOptions struct {
	TokenSymbol string
	TotalSupply decimal.Decimal
}

// SummaryCards renders the card row. Nil totals render the zero state.
func SummaryCards(totals *domain.Totals, opts CardOptions) domain.SummaryCards {
	cards := domain.SummaryCards{
		TotalPurchases:    withSymbol("0", opts.TokenSymbol),
		TotalPurchasesUSD: "$0",
		TotalSupply:       withSymbol(format.WholeCompact(opts.TotalSupply), opts.TokenSymbol),
		CirculatingOffset: "0%",
	}
	if totals == nil {
		return cards
	}

	cards.TotalPurchases = withSymbol(format.Compact(totals.TotalBaseAmount), opts.TokenSymbol)
	cards.TotalPurchasesUSD = format.USD(totals.TotalQuoteAmountUSD)
	cards.CirculatingOffset = totals.TotalCirculatingSupply.String() + "%"

	return cards
}

func withSymbol(amount, symbol string) string {
	if symbol == "" {
		return amount
	}
	return amount + " " + symbol
}
