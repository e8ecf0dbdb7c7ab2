// README: Tariff definitions used to price new orders.
package tariff

import "taxihub/internal/types"

type Tariff struct {
	ID       types.ID
	Name     string
	Active   bool
	BaseFare types.Money
	PerKm    int64 // minor units per kilometre, same currency as BaseFare
}

// PriceFor computes the full ride price for a distance, before discounts.
func (t Tariff) PriceFor(distanceKm float64) types.Money {
	amount := t.BaseFare.Amount + int64(distanceKm*float64(t.PerKm))
	return types.Money{Amount: amount, Currency: t.BaseFare.Currency}
}
