// Package channels implements the delivery channels the worker dispatches
// to. Each channel pairs a payload formatter with a sender; the registry
// gives the worker uniform access by channel type.
package channels

import (
	"context"

	"duewatch/internal/types"
)

// Sender delivers a formatted notification to one destination. The
// destination string is channel-specific: a chat ID for telegram, an email
// address for email. Implementations must honor ctx cancellation and apply
// a bounded send timeout; a hung provider surfaces as an error.
type Sender interface {
	// Type returns the channel this sender serves.
	Type() types.ChannelType

	// Send formats the payload for this channel and transmits it.
	Send(ctx context.Context, payload types.Payload, destination string) error
}

// Registry holds the configured senders keyed by channel type.
type Registry struct {
	senders map[types.ChannelType]Sender
}

// NewRegistry builds a registry from the given senders.
func NewRegistry(senders ...Sender) *Registry {
	m := make(map[types.ChannelType]Sender, len(senders))
	for _, s := range senders {
		m[s.Type()] = s
	}
	return &Registry{senders: m}
}

// Get returns the sender for a channel type, or nil when the channel is
// unknown. The worker treats an unknown channel as a terminal per-entry
// data error.
func (r *Registry) Get(ch types.ChannelType) Sender {
	return r.senders[ch]
}
