package exchanges

import (
	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/config"
	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// New builds the venue for a market descriptor. Unknown or disabled exchanges
// and unsupported market types are *market.ConfigError.
func New(m market.Market, cfg config.ExchangeConfig, log zerolog.Logger) (Venue, error) {
	if cfg.Disabled {
		return nil, &market.ConfigError{Field: "exchanges." + m.Exchange + ".disabled", Value: "true", Reason: "exchange is disabled in config"}
	}
	switch m.Exchange {
	case "binance":
		v, err := NewBinance(m, cfg, log)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "okx":
		v, err := NewOKX(m, cfg, log)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "backpack":
		v, err := NewBackpack(m, cfg, log)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "hyperliquid":
		v, err := NewHyperliquid(m, cfg, log)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "mock":
		return NewMock(m, cfg), nil
	}
	return nil, &market.ConfigError{Field: "exchange", Value: m.Exchange, Reason: "unsupported exchange"}
}

// MaxBatch caps the symbols of one subscription for an exchange.
func MaxBatch(exchange string) int {
	switch exchange {
	case "binance":
		return 200
	case "okx", "backpack", "hyperliquid":
		return 100
	case "mock":
		return 1000
	}
	return 50
}
