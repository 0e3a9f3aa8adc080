// Package telemetry publishes the node's sensing state over MQTT and
// dispatches inbound commands.
//
// Publishing is rate-limited per metric: voice state goes out on a fixed
// short interval, people counts only on change, occupancy on its own
// sampling cadence. The connectivity watchdog checks session liveness
// periodically and reconnects with bounded backoff; a broker outage never
// touches the sensing loops, which keep running and simply lose telemetry
// until the session returns.
package telemetry

import (
	"fmt"
	"time"
)

// Config holds MQTT telemetry configuration.
type Config struct {
	// Broker is the MQTT broker URL, e.g. "tcp://10.0.0.5:1883".
	Broker string `json:"broker"`

	// DeviceID identifies this node in payloads and the command topic.
	DeviceID string `json:"device_id"`

	// Location tags people-count readings for the time-series bridge.
	Location string `json:"location"`

	// Prefix is the topic namespace; empty uses the deployment default.
	Prefix string `json:"prefix"`

	// Username and Password are optional broker credentials.
	Username string `json:"username"`
	Password string `json:"password"`

	// QoS for all publishes.
	QoS byte `json:"qos"`

	// CombinedIR publishes the {deviceId,people_count,voice} variant on
	// the IR topic instead of the plain {people_count,location} form.
	CombinedIR bool `json:"combined_ir"`

	// VoiceInterval is the fixed voice-state publish cadence.
	VoiceInterval time.Duration `json:"voice_interval"`

	// LivenessInterval is how often the watchdog checks the session.
	LivenessInterval time.Duration `json:"liveness_interval"`

	// ReconnectMin and ReconnectMax bound the reconnect backoff.
	ReconnectMin time.Duration `json:"reconnect_min"`
	ReconnectMax time.Duration `json:"reconnect_max"`

	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration `json:"connect_timeout"`

	// PublishTimeout bounds waiting on a single publish token. It must
	// stay short: publishes run on the telemetry loop, and a stall here
	// delays every queued report behind it.
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// DefaultConfig returns a Config with the deployed cadence.
func DefaultConfig() Config {
	return Config{
		Broker:           "tcp://localhost:1883",
		DeviceID:         "smartstop-node",
		Location:         "unknown",
		QoS:              0,
		VoiceInterval:    time.Second,
		LivenessInterval: 5 * time.Second,
		ReconnectMin:     time.Second,
		ReconnectMax:     time.Minute,
		ConnectTimeout:   10 * time.Second,
		PublishTimeout:   2 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker must be set")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device_id must be set")
	}
	if c.VoiceInterval <= 0 {
		return fmt.Errorf("voice_interval must be positive, got %v", c.VoiceInterval)
	}
	if c.LivenessInterval <= 0 {
		return fmt.Errorf("liveness_interval must be positive, got %v", c.LivenessInterval)
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("reconnect backoff bounds invalid: %v..%v", c.ReconnectMin, c.ReconnectMax)
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish_timeout must be positive, got %v", c.PublishTimeout)
	}
	return nil
}
