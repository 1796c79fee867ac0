// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// PendingSubject is the NATS subject a PENDING transition is announced
// on. Worker instances subscribe here instead of polling the queue.
const PendingSubject = "discovery.jobs.pending"

// Stream is the change-stream abstraction the Queue publishes to and the
// Worker subscribes from. Nil-safe callers treat a nil Stream as
// "announce nothing".
type Stream interface {
	// PublishPending announces that canonicalQuery's job has entered (or
	// re-entered) state PENDING.
	PublishPending(ctx context.Context, canonicalQuery string) error
	// Subscribe registers handler to be called with the canonical query
	// for every PENDING announcement.
	Subscribe(handler func(canonicalQuery string)) (unsubscribe func() error, err error)
}

// NATSStream implements Stream over an existing *nats.Conn.
type NATSStream struct {
	conn *nats.Conn
}

// NewNATSStream wraps an already-connected NATS client.
func NewNATSStream(conn *nats.Conn) *NATSStream {
	return &NATSStream{conn: conn}
}

func (s *NATSStream) PublishPending(ctx context.Context, canonicalQuery string) error {
	if err := s.conn.Publish(PendingSubject, []byte(canonicalQuery)); err != nil {
		return fmt.Errorf("publish %s: %w", PendingSubject, err)
	}
	return nil
}

func (s *NATSStream) Subscribe(handler func(canonicalQuery string)) (func() error, error) {
	sub, err := s.conn.Subscribe(PendingSubject, func(msg *nats.Msg) {
		handler(string(msg.Data))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", PendingSubject, err)
	}
	return sub.Unsubscribe, nil
}
