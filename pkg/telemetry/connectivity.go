package telemetry

import (
	"context"
	"time"
)

// Watch monitors the broker session and reconnects with bounded
// exponential backoff. Connectivity loss is never fatal; the sensing
// tasks keep running and telemetry resumes when the session returns.
func (p *Publisher) Watch(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.LivenessInterval)
	defer ticker.Stop()

	backoff := p.cfg.ReconnectMin

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if p.client != nil && p.client.IsConnectionOpen() {
			backoff = p.cfg.ReconnectMin
			continue
		}

		p.logger.Warn("broker session down, reconnecting", "backoff", backoff)
		if err := p.reconnect(); err != nil {
			p.logger.Warn("reconnect failed", "error", err)
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			if backoff > p.cfg.ReconnectMax {
				backoff = p.cfg.ReconnectMax
			}
			continue
		}

		p.logger.Info("broker session restored")
		backoff = p.cfg.ReconnectMin
	}
}

// reconnect re-dials the existing client. The OnConnect handler restores
// the status publication and command subscription.
func (p *Publisher) reconnect() error {
	if p.client == nil {
		return p.Connect()
	}
	token := p.client.Connect()
	if !token.WaitTimeout(p.cfg.ConnectTimeout) || token.Error() != nil {
		return ErrConnectFailed
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
