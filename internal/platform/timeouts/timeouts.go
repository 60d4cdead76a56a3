// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Request caps the handling time of a single API request.
const Request = 15 * time.Second

// Shutdown limits how long a server waits for in-flight work during graceful shutdown.
const Shutdown = 5 * time.Second

// NotificationDispatch bounds the post-commit notification hand-off.
const NotificationDispatch = 10 * time.Second

// NotificationDelivery bounds a single outbound email attempt.
const NotificationDelivery = 30 * time.Second

// GRPCDial bounds dialing a gRPC dependency and waiting for its health check.
const GRPCDial = 2 * time.Second
