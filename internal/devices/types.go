package devices

import (
	"encoding/json"
	"time"
)

// History caps. All device histories are bounded rings: appending beyond the
// cap drops the oldest entries.
const (
	maxBatteryHistory  = 100
	maxOperations      = 200
	maxBrownouts       = 50
	maxOTAEvents       = 10
	maxSignalHistory   = 100
	maxClosedSessions  = 20
)

// Charging sources, closed set, in priority order.
const (
	ChargeSourceESP32         = "esp32"
	ChargeSourceVoltageRise   = "voltage_rise"
	ChargeSourceTrendOverride = "trend_override"
	ChargeSourceNone          = "none"
)

// Operation types, closed set.
const (
	OpWake    = "wake"
	OpDisplay = "display"
	OpOTA     = "ota"
)

type BatterySample struct {
	T               time.Time `json:"t"`
	V               float64   `json:"v"`
	Charging        bool      `json:"charging"`
	IsDisplayUpdate bool      `json:"isDisplayUpdate"`
}

type OperationSample struct {
	T       time.Time `json:"t"`
	Type    string    `json:"type"`
	VBefore float64   `json:"vBefore"`
	VAfter  float64   `json:"vAfter"`
	Drop    float64   `json:"drop"`
	FW      string    `json:"fw,omitempty"`
	RSSI    int       `json:"rssi,omitempty"`
}

type BrownoutEvent struct {
	T                       time.Time `json:"t"`
	Count                   int       `json:"count"`
	DisplayUpdatesInSession int       `json:"displayUpdatesInSession"`
	WakesInSession          int       `json:"wakesInSession"`
}

type OTAEvent struct {
	T           time.Time `json:"t"`
	FromVersion string    `json:"fromVersion"`
	ToVersion   string    `json:"toVersion"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

type SignalSample struct {
	T    time.Time `json:"t"`
	RSSI int       `json:"rssi"`
}

// BatterySession covers one off-charger period: opened on the
// charging→discharging edge, closed on the next discharging→charging edge.
type BatterySession struct {
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	StartVoltage   float64    `json:"startVoltage"`
	EndVoltage     float64    `json:"endVoltage,omitempty"`
	StartPercent   float64    `json:"startPercent"`
	EndPercent     float64    `json:"endPercent,omitempty"`
	Wakes          int        `json:"wakes"`
	DisplayUpdates int        `json:"displayUpdates"`
	OTAUpdates     int        `json:"otaUpdates"`
	DropTotal      float64    `json:"dropTotal"`
}

type UsageStats struct {
	TotalWakes          int     `json:"totalWakes"`
	TotalDisplayUpdates int     `json:"totalDisplayUpdates"`
	TotalOTAUpdates     int     `json:"totalOtaUpdates"`
	WakeDropTotal       float64 `json:"wakeDropTotal"`
	DisplayDropTotal    float64 `json:"displayDropTotal"`
	OTADropTotal        float64 `json:"otaDropTotal"`
}

// Device is the full per-frame telemetry record.
type Device struct {
	DeviceID        string    `json:"deviceId"`
	FirmwareVersion string    `json:"firmwareVersion,omitempty"`
	LastSeen        time.Time `json:"lastSeen"`
	LastStatus      string    `json:"lastStatus,omitempty"`

	Voltage             float64    `json:"voltage,omitempty"`
	Percent             float64    `json:"percent,omitempty"`
	IsCharging          bool       `json:"isCharging"`
	ChargingSource      string     `json:"chargingSource,omitempty"`
	LastChargeTimestamp *time.Time `json:"lastChargeTimestamp,omitempty"`

	BatteryHistory  []BatterySample   `json:"batteryHistory,omitempty"`
	CurrentSession  *BatterySession   `json:"currentSession,omitempty"`
	BatterySessions []BatterySession  `json:"batterySessions,omitempty"`
	OperationSamples []OperationSample `json:"operationSamples,omitempty"`

	BrownoutCount   int             `json:"brownoutCount"`
	BrownoutHistory []BrownoutEvent `json:"brownoutHistory,omitempty"`
	OTAHistory      []OTAEvent      `json:"otaHistory,omitempty"`

	SignalStrength int            `json:"signalStrength,omitempty"`
	SignalHistory  []SignalSample `json:"signalHistory,omitempty"`

	UsageStats UsageStats `json:"usageStats"`
}

// StatusReport is the POST /api/device-status body. Unknown fields are
// rejected at the handler boundary.
type StatusReport struct {
	DeviceID  string          `json:"deviceId"`
	Status    DeviceStatus    `json:"status"`
	Profiling json.RawMessage `json:"profiling,omitempty"`
}

type DeviceStatus struct {
	BatteryVoltage  float64  `json:"batteryVoltage,omitempty"`
	BatteryPercent  *float64 `json:"batteryPercent,omitempty"`
	IsCharging      *bool    `json:"isCharging,omitempty"`
	SignalStrength  *int     `json:"signalStrength,omitempty"`
	FirmwareVersion string   `json:"firmwareVersion,omitempty"`
	Status          string   `json:"status,omitempty"` // wake, display_*, ota_*, ota_failed
	BrownoutCount   *int     `json:"brownoutCount,omitempty"`
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
