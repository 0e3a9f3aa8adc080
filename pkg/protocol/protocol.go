// Package protocol defines the MQTT topic layout and JSON payloads shared
// between the edge node and the downstream bridge agent.
package protocol

import (
	"encoding/json"
	"fmt"
)

// DefaultPrefix is the deployment's topic namespace.
const DefaultPrefix = "nus-smartstop"

// Topics builds the node's topic set from a prefix and device ID.
type Topics struct {
	prefix   string
	deviceID string
}

// NewTopics creates the topic set. An empty prefix uses DefaultPrefix.
func NewTopics(prefix, deviceID string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{prefix: prefix, deviceID: deviceID}
}

// IRSensor is the people-count telemetry topic.
func (t Topics) IRSensor() string { return t.prefix + "/ir-sensor/data" }

// Voice is the voice-activity telemetry topic.
func (t Topics) Voice() string { return t.prefix + "/voice" }

// Ultrasonic is the occupancy telemetry topic.
func (t Topics) Ultrasonic() string { return t.prefix + "/ultrasonic/data" }

// Status is the connection status topic.
func (t Topics) Status() string { return t.prefix + "/status" }

// Command is the inbound command topic for this device.
func (t Topics) Command() string { return t.prefix + "/command/" + t.deviceID }

// IRReport is the people-count payload.
// Location tags the reading for the time-series bridge.
type IRReport struct {
	PeopleCount int    `json:"people_count"`
	Location    string `json:"location"`
	Entries     int64  `json:"total_entries,omitempty"`
	Exits       int64  `json:"total_exits,omitempty"`
}

// CombinedReport is the IR payload variant carrying the voice flag,
// published when voice detection runs on the same node.
type CombinedReport struct {
	DeviceID    string `json:"deviceId"`
	PeopleCount int    `json:"people_count"`
	Voice       bool   `json:"voice"`
}

// VoiceReport is the voice-activity payload.
type VoiceReport struct {
	DeviceID string `json:"deviceId"`
	Voice    bool   `json:"voice"`
}

// ZoneReport is one ultrasonic zone in an UltrasonicReport.
// Occupied is 0 or 1 to match the bridge agent's schema.
type ZoneReport struct {
	Distance float64 `json:"distance"`
	Occupied int     `json:"occupied"`
}

// UltrasonicReport is the occupancy payload, keyed by zone name.
type UltrasonicReport struct {
	Sensors map[string]ZoneReport `json:"sensors"`
	Density float64               `json:"density"`
}

// StatusReport announces the node's connection state.
type StatusReport struct {
	DeviceID string `json:"deviceId"`
	Status   string `json:"status"` // "online" or "offline"
}

// Marshal encodes a payload as compact JSON.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	return data, nil
}
