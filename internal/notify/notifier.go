// Package notify renders alerts and delivers them through every configured
// channel, committing an alert to history only once some channel took it.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewired-gh/polynotify/internal/logger"
	"github.com/rewired-gh/polynotify/internal/models"
)

// Channel is one outbound notification channel.
type Channel interface {
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
	// Send delivers one rendered message.
	Send(ctx context.Context, text string) error
	Close() error
}

// Committer records a delivered alert.
type Committer interface {
	Commit(ctx context.Context, alert *models.Alert) error
}

// Dispatcher sends alerts through an ordered list of channels.
type Dispatcher struct {
	channels  []Channel
	committer Committer
}

func NewDispatcher(committer Committer, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, committer: committer}
}

// Channels returns the number of configured channels.
func (d *Dispatcher) Channels() int {
	return len(d.channels)
}

// Dispatch tries every channel for every alert. A channel failure is logged
// and does not stop the others. An alert no channel accepted is left
// uncommitted so a later cycle can retry it. A commit failure aborts the
// dispatch and is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []models.Alert) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	if len(d.channels) == 0 {
		logger.Warn("No notification channels configured; %d alerts not sent", len(alerts))
		return 0, nil
	}

	committed := 0
	for i := range alerts {
		a := &alerts[i]
		text := Render(a)

		delivered := 0
		for _, ch := range d.channels {
			if err := ch.Send(ctx, text); err != nil {
				logger.Error("Failed to send %s alert for %s via %s: %v", a.Kind, a.MarketID(), ch.Name(), err)
				continue
			}
			delivered++
		}
		if delivered == 0 {
			logger.Warn("%s alert for %s was not delivered by any channel", a.Kind, a.MarketID())
			continue
		}

		if err := d.committer.Commit(ctx, a); err != nil {
			return committed, fmt.Errorf("failed to commit %s alert for %s: %w", a.Kind, a.MarketID(), err)
		}
		committed++
		logger.Debug("Sent %s alert for %s via %d/%d channels", a.Kind, a.MarketID(), delivered, len(d.channels))
	}
	return committed, nil
}

// Close closes every channel.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, ch := range d.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
