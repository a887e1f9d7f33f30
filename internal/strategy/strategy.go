// Package strategy declares the contract the runtime consumes from the
// trading strategy. Strategy state is the strategy's own; the core only
// drives these entry points from scheduled tasks.
package strategy

import (
	"main/internal/pricing"
	"main/internal/schema"
)

// Strategy is the volatility-arbitrage decision maker behind the signal task.
type Strategy interface {
	// OnMarketData folds one validated quote into strategy state.
	OnMarketData(msg *schema.MarketDataMessage)

	// ScanAndGenerateSignals appends trading signals for one underlying and
	// its option chain to out.
	ScanAndGenerateSignals(underlying float64, chain []pricing.Option, mkt *schema.MarketDataMessage, out *[]schema.TradingSignalMessage)

	// OnFill reports one execution back to the strategy.
	OnFill(signal *schema.TradingSignalMessage, price float64, qty int32, tsNs uint64)
}
