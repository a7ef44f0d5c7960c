package irc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/matt0x6f/irc-engine/internal/codec"
)

// readLoop frames and decodes lines for the loop. The terminating error is
// delivered on the same channel so it is seen after every line before it.
func (e *Engine) readLoop(ctx context.Context, a *attempt, r *codec.Reader) {
	defer a.wg.Done()
	for {
		line, err := r.ReadLine()
		select {
		case a.inbound <- inbound{line: line, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// writeLoop drains the outbound queue. A failed write severs the connection
// so the read side observes it, unless the user is already closing.
func (e *Engine) writeLoop(ctx context.Context, a *attempt, c *codec.Codec, limiter *rate.Limiter) {
	defer a.wg.Done()
	defer close(a.writerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-a.out.ch:
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			payload := append(c.Encode(line), '\r', '\n')
			if _, err := a.conn.Write(payload); err != nil {
				if !e.ctl.userClosing.Load() {
					a.fail(fmt.Errorf("write failed: %w", err))
					a.conn.ForceClose()
				}
				return
			}
			e.metrics.LineOut()
		}
	}
}

// liveness sends a lag probe every interval after an initial grace delay and
// severs the connection when a probe stays unanswered past the ping timeout
func (e *Engine) liveness(ctx context.Context, a *attempt) {
	defer a.wg.Done()

	timer := time.NewTimer(e.probeGrace)
	defer timer.Stop()

	var outstanding bool
	var sent time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.answered:
			outstanding = false
		case <-timer.C:
			if outstanding && time.Since(sent) > e.pingTimeout {
				e.log.Warn().Dur("timeout", e.pingTimeout).Msg("Lag probe unanswered, closing connection")
				a.fail(fmt.Errorf("%w (%d seconds)", ErrPingTimeout, int(e.pingTimeout.Seconds())))
				a.conn.ForceClose()
				return
			}
			if !outstanding {
				select {
				case a.probes <- uuid.NewString():
					outstanding = true
					sent = time.Now()
				default:
				}
			}
			timer.Reset(e.probeInterval)
		}
	}
}
