package pricing

type PriceType string

const (
	PerBooking PriceType = "PER_BOOKING"
	PerNight   PriceType = "PER_NIGHT"
	PerUnit    PriceType = "PER_UNIT"
)

func (t PriceType) Valid() bool {
	switch t {
	case PerBooking, PerNight, PerUnit:
		return true
	}
	return false
}

// SelectedExtra is what a guest picked; it is stored on the booking as-is.
type SelectedExtra struct {
	ExtraID string `json:"extraId"`
	Qty     int    `json:"qty"`
}

type ExtraOption struct {
	ID        string
	Price     int
	PriceType PriceType
}

// ExtrasTotal sums the selected extras against the option catalog. Unknown ids add nothing.
func ExtrasTotal(selected []SelectedExtra, options []ExtraOption, nights int) int {
	byID := make(map[string]ExtraOption, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}
	total := 0
	for _, it := range selected {
		o, ok := byID[it.ExtraID]
		if !ok {
			continue
		}
		switch o.PriceType {
		case PerBooking:
			total += o.Price
		case PerNight:
			total += o.Price * nights
		case PerUnit:
			total += o.Price * it.Qty
		}
	}
	return total
}

// Sanitize clamps quantities to at least one and drops ids missing from options.
func Sanitize(selected []SelectedExtra, options []ExtraOption) []SelectedExtra {
	known := make(map[string]bool, len(options))
	for _, o := range options {
		known[o.ID] = true
	}
	out := make([]SelectedExtra, 0, len(selected))
	for _, it := range selected {
		if !known[it.ExtraID] {
			continue
		}
		qty := it.Qty
		if qty < 1 {
			qty = 1
		}
		out = append(out, SelectedExtra{ExtraID: it.ExtraID, Qty: qty})
	}
	return out
}
