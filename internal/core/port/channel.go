package port

import "github.com/glimchat/glim/internal/core/domain"

// SignalChannel is one participant's control-message transport: one
// long-lived channel per user for invitations, one per room per call.
// Send must never block the caller on network I/O; implementations
// queue and deliver in order.
type SignalChannel interface {
	ID() string
	Send(env domain.Envelope) error
	Close() error
}
