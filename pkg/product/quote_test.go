package product

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPrice_MarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		price Price
		want  string
	}{
		{
			name:  "regular and zero promo",
			price: Price{Regular: decimal.NewNullDecimal(decimal.RequireFromString("3.49"))},
			want:  `{"regular":3.49,"promo":0}`,
		},
		{
			name:  "no regular price",
			price: Price{Promo: decimal.RequireFromString("1.25")},
			want:  `{"regular":null,"promo":1.25}`,
		},
		{
			name:  "many decimals kept",
			price: Price{Regular: decimal.NewNullDecimal(decimal.RequireFromString("0.123456789"))},
			want:  `{"regular":0.123456789,"promo":0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.price)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}
