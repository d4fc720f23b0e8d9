package push

import (
	"context"
	"errors"
	"fmt"

	"medbrief/internal/store"
)

// Delivery is the data sent to recipients when a deck is pushed.
type Delivery struct {
	TopicName   string   `json:"topic_name"`
	PPTFilename string   `json:"ppt_filename"`
	Recipients  []string `json:"recipients"`
	PreviewLink string   `json:"preview_link,omitempty"`
	DiffSummary string   `json:"diff_summary,omitempty"`
}

// Notifier delivers a deck notification over one channel.
type Notifier interface {
	Name() string
	Channel() store.Channel
	Send(ctx context.Context, d *Delivery) error
}

// Manager fans a delivery out to the notifiers matching a topic's channels.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new delivery manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends the delivery via every notifier whose channel is enabled
// for the topic. Errors are joined, not short-circuited.
func (m *Manager) Broadcast(ctx context.Context, channels []store.Channel, d *Delivery) error {
	enabled := make(map[store.Channel]bool, len(channels))
	for _, c := range channels {
		enabled[c] = true
	}

	var errs []error
	for _, n := range m.notifiers {
		if !enabled[n.Channel()] {
			continue
		}
		if err := n.Send(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
