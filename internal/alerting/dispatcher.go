package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"plus-ev-alerts/internal/odds"
)

// Recorder observes delivery attempts.
type Recorder interface {
	NotificationSent(channel string, err error)
}

// Dispatcher fans notifications out to every configured channel. A channel
// failure is logged and recorded but does not stop delivery elsewhere.
type Dispatcher struct {
	notifiers []Notifier
	location  *time.Location
	recorder  Recorder
	logger    zerolog.Logger
}

// NewDispatcher wires channels together. recorder may be nil.
func NewDispatcher(notifiers []Notifier, location *time.Location, recorder Recorder, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		location:  location,
		recorder:  recorder,
		logger:    logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.notifiers) > 0
}

// Dispatch sends one notification per opportunity to every channel and
// returns the number of successful deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, opps []odds.Opportunity) int {
	if !d.Enabled() {
		return 0
	}
	delivered := 0
	for _, o := range opps {
		note := Notification{Opportunity: o, Location: d.location}
		for _, n := range d.notifiers {
			err := n.Notify(ctx, note)
			if d.recorder != nil {
				d.recorder.NotificationSent(n.Name(), err)
			}
			if err != nil {
				d.logger.Error().Err(err).Str("channel", n.Name()).Str("opportunity_id", o.ID).Msg("failed to dispatch alert")
				continue
			}
			delivered++
		}
	}
	return delivered
}
