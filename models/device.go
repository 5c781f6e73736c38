package models

// DeviceStatus tracks the lifecycle of a bridge target.
type DeviceStatus string

const (
	StatusUnknown      DeviceStatus = "unknown"
	StatusConnecting   DeviceStatus = "connecting"
	StatusConnected    DeviceStatus = "connected"
	StatusDisconnected DeviceStatus = "disconnected"
)

// DeviceInfo identifies one bridge target. Serial is the key used for
// all bridge invocations (IP:port for network targets, hardware serial
// for USB). Name and Model may be empty when the device never answered
// a getprop query.
type DeviceInfo struct {
	Serial string       `json:"serial"`
	Name   string       `json:"name,omitempty"`
	Model  string       `json:"model,omitempty"`
	Status DeviceStatus `json:"status"`
}

// DeviceHistoryEntry is one row of the connection-history store.
type DeviceHistoryEntry struct {
	Serial     string `json:"serial"`
	Name       string `json:"name,omitempty"`
	Model      string `json:"model,omitempty"`
	LastStatus string `json:"last_status"`
	LastSeen   int64  `json:"last_seen"`
}
