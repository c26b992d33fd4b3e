package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	DiscountFixed   DiscountKind = "fixed"
	DiscountPercent DiscountKind = "percent"
)

type Discount struct {
	Code  string
	Kind  DiscountKind
	Value decimal.Decimal
}

// AmountFor returns the reduction for a given base amount. Percentages apply
// to the base amount only.
func (d Discount) AmountFor(base decimal.Decimal) decimal.Decimal {
	if d.Kind == DiscountPercent {
		return base.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	}
	return d.Value.Round(2)
}

// Catalog maps upper-cased codes to discounts.
type Catalog map[string]Discount

func (c Catalog) Lookup(code string) (Discount, bool) {
	d, ok := c[strings.ToUpper(strings.TrimSpace(code))]
	return d, ok
}

// ParseCatalog reads "CODE:fixed:10,CODE2:percent:15".
func ParseCatalog(raw string) (Catalog, error) {
	catalog := Catalog{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return catalog, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("discount entry %q: want CODE:kind:value", entry)
		}

		kind := DiscountKind(strings.ToLower(parts[1]))
		if kind != DiscountFixed && kind != DiscountPercent {
			return nil, fmt.Errorf("discount entry %q: unknown kind %s", entry, parts[1])
		}

		value, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("discount entry %q: %w", entry, err)
		}
		if value.IsNegative() || (kind == DiscountPercent && value.GreaterThan(decimal.NewFromInt(100))) {
			return nil, fmt.Errorf("discount entry %q: value out of range", entry)
		}

		code := strings.ToUpper(parts[0])
		catalog[code] = Discount{Code: code, Kind: kind, Value: value}
	}

	return catalog, nil
}
