package schema

// ControlType identifies the operation requested by a ControlMessage.
type ControlType uint32

const (
	ControlUnknown ControlType = 0

	// System control.
	ControlStartTrading   ControlType = 1
	ControlStopTrading    ControlType = 2
	ControlEmergencyStop  ControlType = 3
	ControlSystemShutdown ControlType = 4

	// Configuration control.
	ControlUpdateParameters ControlType = 10
	ControlResetModels      ControlType = 11
	ControlReloadConfig     ControlType = 12
	ControlSetLogLevel      ControlType = 13

	// Monitoring and status.
	ControlSystemStatus       ControlType = 20
	ControlHeartbeat          ControlType = 21
	ControlPerformanceRequest ControlType = 22
	ControlHealthCheck        ControlType = 23

	// Schedule coordination.
	ControlScheduleUpdate    ControlType = 30
	ControlTimingSync        ControlType = 31
	ControlPerformanceReport ControlType = 32
	ControlDeadlineWarning   ControlType = 33
)

// Priority orders control traffic; lower value is more urgent.
type Priority uint32

const (
	PriorityEmergency  Priority = 0
	PriorityCritical   Priority = 1
	PriorityHigh       Priority = 2
	PriorityNormal     Priority = 3
	PriorityLow        Priority = 4
	PriorityBackground Priority = 5
)

func (t ControlType) String() string {
	switch t {
	case ControlStartTrading:
		return "START_TRADING"
	case ControlStopTrading:
		return "STOP_TRADING"
	case ControlEmergencyStop:
		return "EMERGENCY_STOP"
	case ControlSystemShutdown:
		return "SYSTEM_SHUTDOWN"
	case ControlUpdateParameters:
		return "UPDATE_PARAMETERS"
	case ControlResetModels:
		return "RESET_MODELS"
	case ControlReloadConfig:
		return "RELOAD_CONFIG"
	case ControlSetLogLevel:
		return "SET_LOG_LEVEL"
	case ControlSystemStatus:
		return "SYSTEM_STATUS"
	case ControlHeartbeat:
		return "HEARTBEAT"
	case ControlPerformanceRequest:
		return "PERFORMANCE_REQUEST"
	case ControlHealthCheck:
		return "HEALTH_CHECK"
	case ControlScheduleUpdate:
		return "SCHEDULE_UPDATE"
	case ControlTimingSync:
		return "TIMING_SYNC"
	case ControlPerformanceReport:
		return "PERFORMANCE_REPORT"
	case ControlDeadlineWarning:
		return "DEADLINE_WARNING"
	default:
		return "UNKNOWN"
	}
}
