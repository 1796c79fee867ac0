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
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedBroker runs an in-process NATS server, for deployments that
// don't want to operate a standalone broker just for the discovery
// stream. It uses nats-server/v2's own documented embedded-server
// pattern, the same library the rest of this package's Stream already
// depends on.
type EmbeddedBroker struct {
	srv *server.Server
}

// StartEmbeddedBroker starts an embedded NATS server bound to an
// OS-assigned local port and blocks (up to 5s) until it is ready for
// connections.
func StartEmbeddedBroker() (*EmbeddedBroker, error) {
	srv, err := server.NewServer(&server.Options{
		Host:           "127.0.0.1",
		Port:           -1, // OS-assigned
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server did not become ready within 5s")
	}
	return &EmbeddedBroker{srv: srv}, nil
}

// Connect returns a client connection to the embedded broker.
func (b *EmbeddedBroker) Connect() (*nats.Conn, error) {
	conn, err := nats.Connect(b.srv.ClientURL())
	if err != nil {
		return nil, fmt.Errorf("connect to embedded NATS server: %w", err)
	}
	return conn, nil
}

// Shutdown stops the embedded broker, draining existing connections first.
func (b *EmbeddedBroker) Shutdown() {
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}
