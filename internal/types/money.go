// README: Common money value object used across modules.
package types

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Percent returns p percent of m, truncated toward zero.
func (m Money) Percent(p int) Money {
	return Money{Amount: m.Amount * int64(p) / 100, Currency: m.Currency}
}

// Sub subtracts n from m, clamping at zero so a discount can never
// drive a price negative.
func (m Money) Sub(n Money) Money {
	out := Money{Amount: m.Amount - n.Amount, Currency: m.Currency}
	if out.Amount < 0 {
		out.Amount = 0
	}
	return out
}

func (m Money) IsZero() bool { return m.Amount == 0 }
