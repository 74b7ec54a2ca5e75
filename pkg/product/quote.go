package product

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// UnknownBrand is reported when the catalog entry carries no brand.
const UnknownBrand = "N/A"

// Price holds the store's prices for one item. Regular is null when the
// retailer publishes no price; Promo is zero when no promotion is active.
type Price struct {
	Regular decimal.NullDecimal
	Promo   decimal.Decimal
}

// MarshalJSON emits prices as bare JSON numbers, exactly as received.
func (p Price) MarshalJSON() ([]byte, error) {
	var regular json.RawMessage = []byte("null")
	if p.Regular.Valid {
		regular = json.RawMessage(p.Regular.Decimal.String())
	}
	return json.Marshal(struct {
		Regular json.RawMessage `json:"regular"`
		Promo   json.RawMessage `json:"promo"`
	}{
		Regular: regular,
		Promo:   json.RawMessage(p.Promo.String()),
	})
}

// Quote is the price payload for one product at one store. It is built
// fresh for every request.
type Quote struct {
	UPC         string `json:"upc"`
	Brand       string `json:"brand"`
	Description string `json:"description"`
	Price       Price  `json:"price"`
}
