package market

import (
	"strings"
)

// Market is a parsed `exchange.type[.subtype]` descriptor.
type Market struct {
	Exchange string
	Type     string
	SubType  string
}

func (m Market) String() string {
	if m.SubType == "" {
		return m.Exchange + "." + m.Type
	}
	return m.Exchange + "." + m.Type + "." + m.SubType
}

// ParseMarket parses descriptors like binance.spot or okx.swap.linear.
func ParseMarket(s string) (Market, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Market{}, &ConfigError{
			Field:  "market",
			Value:  s,
			Reason: "must be <exchange>.<type> (e.g. binance.spot) or <exchange>.<type>.<subtype> (e.g. okx.swap.linear)",
		}
	}
	for _, p := range parts {
		if p == "" {
			return Market{}, &ConfigError{Field: "market", Value: s, Reason: "empty segment"}
		}
	}
	m := Market{
		Exchange: strings.ToLower(parts[0]),
		Type:     strings.ToLower(parts[1]),
	}
	if len(parts) == 3 {
		m.SubType = strings.ToLower(parts[2])
	}
	switch m.Type {
	case TypeSpot, TypeSwap, TypeFuture:
	default:
		return Market{}, &ConfigError{Field: "market", Value: s, Reason: "type must be spot, swap or future"}
	}
	switch m.SubType {
	case "", SubLinear, SubInverse:
	default:
		return Market{}, &ConfigError{Field: "market", Value: s, Reason: "subtype must be linear or inverse"}
	}
	return m, nil
}

// Matches reports whether an instrument falls under this market's type and
// optional subtype.
func (m Market) Matches(in Instrument) bool {
	if in.Type != m.Type {
		return false
	}
	return m.SubType == "" || in.SubType == m.SubType
}
