// Package natsutil holds small NATS-specific error classification helpers,
// kept separate from internal/types so that package stays free of a NATS
// dependency.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// IsTransient reports whether err indicates a connectivity or throttling
// condition that the kvstore's caller should classify as KindTransient
// rather than KindPermanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}
