// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"log/slog"
	"os"
)

// contextKey avoids collisions with other packages' context keys.
type contextKey int

const correlationIDKey contextKey = iota

// NewLogger builds the process-root structured JSON logger; components
// derive their own loggers from it with logger.With.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithCorrelationID returns a context carrying the given correlation id, and
// a logger pre-populated with it so every subsequent record carries the
// same id without the caller threading it through every slog.String call.
func WithCorrelationID(ctx context.Context, logger *slog.Logger, correlationID string) (context.Context, *slog.Logger) {
	ctx = context.WithValue(ctx, correlationIDKey, correlationID)
	return ctx, logger.With(slog.String("correlation_id", correlationID))
}

// CorrelationID extracts the correlation id stashed by WithCorrelationID, or
// "" if none is present.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
