package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/smartstop/go-smartstop/pkg/occupancy"
	"github.com/smartstop/go-smartstop/pkg/protocol"
	"github.com/smartstop/go-smartstop/pkg/state"
)

// ErrConnectFailed indicates the initial broker connection failed.
// The watchdog keeps retrying; the node does not treat this as fatal.
var ErrConnectFailed = errors.New("telemetry: broker connect failed")

// Commands receives dispatched inbound commands. All callbacks are
// invoked from the MQTT client's handler goroutine and must not block.
type Commands struct {
	PlayTrack  func(track int) error
	StopAudio  func()
	ResetCount func()
}

// Publisher serializes system state to the MQTT topics and consumes
// commands. Counts are pushed through NotifyCount, occupancy snapshots
// through NotifyOccupancy; both are non-blocking and drop under backlog,
// the same policy as the edge event queue.
type Publisher struct {
	cfg    Config
	topics protocol.Topics
	sys    *state.SystemState
	cmds   Commands
	logger *slog.Logger

	client mqtt.Client

	countCh chan countUpdate
	occCh   chan occupancy.Snapshot
}

type countUpdate struct {
	count   int
	entries int64
	exits   int64
}

// New creates a publisher bound to the shared system state.
func New(cfg Config, sys *state.SystemState, cmds Commands, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("telemetry config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		cfg:     cfg,
		topics:  protocol.NewTopics(cfg.Prefix, cfg.DeviceID),
		sys:     sys,
		cmds:    cmds,
		logger:  logger,
		countCh: make(chan countUpdate, 8),
		occCh:   make(chan occupancy.Snapshot, 4),
	}, nil
}

// Connect establishes the broker session and subscribes to the command
// topic. A failed initial connect is returned as ErrConnectFailed so the
// caller can hand the session to the watchdog instead of giving up.
func (p *Publisher) Connect() error {
	offline, err := protocol.Marshal(protocol.StatusReport{DeviceID: p.cfg.DeviceID, Status: "offline"})
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.DeviceID + "-" + uuid.NewString()[:8])
	opts.SetConnectTimeout(p.cfg.ConnectTimeout)
	opts.SetAutoReconnect(false) // the watchdog owns reconnection
	opts.SetWill(p.topics.Status(), string(offline), p.cfg.QoS, false)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)

	p.client = mqtt.NewClient(opts)

	p.logger.Info("connecting to broker", "broker", p.cfg.Broker)
	token := p.client.Connect()
	if !token.WaitTimeout(p.cfg.ConnectTimeout) || token.Error() != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, token.Error())
	}
	return nil
}

// Close publishes the offline status and disconnects.
func (p *Publisher) Close() {
	if p.client == nil {
		return
	}
	if p.client.IsConnectionOpen() {
		p.publishStatus("offline")
		p.client.Disconnect(250)
		p.logger.Info("disconnected from broker")
	}
}

// onConnect announces the node and (re)subscribes to commands.
// Subscriptions do not survive a session drop with clean sessions, so
// this runs on every connect.
func (p *Publisher) onConnect(client mqtt.Client) {
	p.logger.Info("broker session established")
	p.publishStatus("online")

	topic := p.topics.Command()
	token := client.Subscribe(topic, p.cfg.QoS, p.onCommand)
	if token.WaitTimeout(p.cfg.ConnectTimeout) && token.Error() == nil {
		p.logger.Debug("subscribed", "topic", topic)
	} else {
		p.logger.Warn("command subscribe failed", "topic", topic, "error", token.Error())
	}
}

func (p *Publisher) onConnectionLost(_ mqtt.Client, err error) {
	p.logger.Warn("broker session lost", "error", err)
}

// onCommand parses and dispatches one inbound command message.
// Malformed payloads are logged and ignored; no state is mutated.
func (p *Publisher) onCommand(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := protocol.ParseCommand(msg.Payload())
	if err != nil {
		p.logger.Warn("ignoring command", "error", err)
		return
	}

	switch cmd.Action {
	case protocol.ActionResetCount:
		if p.cmds.ResetCount != nil {
			p.cmds.ResetCount()
		}
	case protocol.ActionStopAudio:
		if p.cmds.StopAudio != nil {
			p.cmds.StopAudio()
		}
	case protocol.ActionPlayTrack:
		if p.cmds.PlayTrack != nil {
			if err := p.cmds.PlayTrack(cmd.Track); err != nil {
				p.logger.Warn("play command rejected", "track", cmd.Track, "error", err)
			}
		}
	}
}

// NotifyCount queues a people-count change for publishing.
// Non-blocking; safe to call from the counter task.
func (p *Publisher) NotifyCount(count int, entries, exits int64) {
	select {
	case p.countCh <- countUpdate{count: count, entries: entries, exits: exits}:
	default:
	}
}

// NotifyOccupancy queues an occupancy snapshot for publishing.
// Non-blocking; safe to call from the estimator task.
func (p *Publisher) NotifyOccupancy(snap occupancy.Snapshot) {
	select {
	case p.occCh <- snap:
	default:
	}
}

// Run publishes until the context is cancelled: voice on its fixed
// interval, counts as they change, occupancy as cycles complete.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.VoiceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case upd := <-p.countCh:
			p.publishCount(upd)

		case snap := <-p.occCh:
			p.publishOccupancy(snap)

		case <-ticker.C:
			p.publishVoice()
		}
	}
}

func (p *Publisher) publishVoice() {
	p.publish(p.topics.Voice(), protocol.VoiceReport{
		DeviceID: p.cfg.DeviceID,
		Voice:    p.sys.VoiceActive(),
	})
}

func (p *Publisher) publishCount(upd countUpdate) {
	if p.cfg.CombinedIR {
		p.publish(p.topics.IRSensor(), protocol.CombinedReport{
			DeviceID:    p.cfg.DeviceID,
			PeopleCount: upd.count,
			Voice:       p.sys.VoiceActive(),
		})
		return
	}
	p.publish(p.topics.IRSensor(), protocol.IRReport{
		PeopleCount: upd.count,
		Location:    p.cfg.Location,
		Entries:     upd.entries,
		Exits:       upd.exits,
	})
}

func (p *Publisher) publishOccupancy(snap occupancy.Snapshot) {
	report := protocol.UltrasonicReport{
		Sensors: make(map[string]protocol.ZoneReport, len(snap.Zones)),
		Density: snap.Density,
	}
	for _, z := range snap.Zones {
		occupied := 0
		if z.Occupied {
			occupied = 1
		}
		report.Sensors[z.Name] = protocol.ZoneReport{
			Distance: z.SmoothedDistance,
			Occupied: occupied,
		}
	}
	p.publish(p.topics.Ultrasonic(), report)
}

func (p *Publisher) publishStatus(status string) {
	p.publish(p.topics.Status(), protocol.StatusReport{
		DeviceID: p.cfg.DeviceID,
		Status:   status,
	})
}

// publish sends one payload, dropping it when the session is down.
// Telemetry loss during an outage is acceptable; blocking is not.
func (p *Publisher) publish(topic string, payload any) {
	if p.client == nil || !p.client.IsConnectionOpen() {
		return
	}

	data, err := protocol.Marshal(payload)
	if err != nil {
		p.logger.Warn("marshal failed", "topic", topic, "error", err)
		return
	}

	token := p.client.Publish(topic, p.cfg.QoS, false, data)
	// The short publish timeout keeps one slow ack from stalling the
	// telemetry loop behind it.
	if token.WaitTimeout(p.cfg.PublishTimeout) && token.Error() != nil {
		p.logger.Warn("publish failed", "topic", topic, "error", token.Error())
	}
}
