package schema

// EventKind is the typed tag of one journal frame.
type EventKind uint32

const (
	EventUnknown                EventKind = 0
	EventMarketDataUpdate       EventKind = 1
	EventTradingSignalGenerated EventKind = 2
	EventControlMessageReceived EventKind = 3
	EventStrategyParameterChange EventKind = 4
	EventVolatilityModelUpdate  EventKind = 5
	EventPricingEngineRequest   EventKind = 6
	EventPricingEngineResult    EventKind = 7
	EventOrderFromExchange      EventKind = 8
	EventSystemStatusChange     EventKind = 9
	EventPerformanceMetric      EventKind = 10
	EventError                  EventKind = 11
	EventWarning                EventKind = 12
	EventInfo                   EventKind = 13
	EventDebug                  EventKind = 14

	// Kinds at or above EventCustomBase are reserved for strategy-defined
	// payloads.
	EventCustomBase EventKind = 100
)

func (k EventKind) String() string {
	switch k {
	case EventMarketDataUpdate:
		return "MARKET_DATA_UPDATE"
	case EventTradingSignalGenerated:
		return "TRADING_SIGNAL_GENERATED"
	case EventControlMessageReceived:
		return "CONTROL_MESSAGE_RECEIVED"
	case EventStrategyParameterChange:
		return "STRATEGY_PARAMETER_CHANGE"
	case EventVolatilityModelUpdate:
		return "VOLATILITY_MODEL_UPDATE"
	case EventPricingEngineRequest:
		return "PRICING_ENGINE_REQUEST"
	case EventPricingEngineResult:
		return "PRICING_ENGINE_RESULT"
	case EventOrderFromExchange:
		return "ORDER_EVENT_FROM_EXCHANGE"
	case EventSystemStatusChange:
		return "SYSTEM_STATUS_CHANGE"
	case EventPerformanceMetric:
		return "PERFORMANCE_METRIC_LOG"
	case EventError:
		return "ERROR_LOG"
	case EventWarning:
		return "WARNING_LOG"
	case EventInfo:
		return "INFO_LOG"
	case EventDebug:
		return "DEBUG_LOG"
	default:
		if k >= EventCustomBase {
			return "CUSTOM_STRATEGY_EVENT"
		}
		return "UNKNOWN"
	}
}
