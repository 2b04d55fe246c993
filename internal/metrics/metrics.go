// Package metrics exposes Prometheus instrumentation for the SMB client:
// message and byte counters on the worker path, credit occupancy, and
// transform pipeline counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts outbound SMB2 messages by command name.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "messages_sent_total",
		Help:      "Outbound SMB2 messages by command.",
	}, []string{"command"})

	// MessagesReceived counts inbound SMB2 messages by command name.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "messages_received_total",
		Help:      "Inbound SMB2 messages by command.",
	}, []string{"command"})

	// BytesSent counts bytes handed to the transport.
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "bytes_sent_total",
		Help:      "Bytes written to the transport, after transforms.",
	})

	// BytesReceived counts bytes read from the transport.
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "bytes_received_total",
		Help:      "Bytes read from the transport, before transforms.",
	})

	// CreditsAvailable tracks the current credit balance.
	CreditsAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "smbclient",
		Name:      "credits_available",
		Help:      "Credits currently available for sending.",
	})

	// RequestsInFlight tracks outstanding request count.
	RequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "smbclient",
		Name:      "requests_in_flight",
		Help:      "Requests awaiting a response.",
	})

	// FramesEncrypted counts outbound frames wrapped in transform envelopes.
	FramesEncrypted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "frames_encrypted_total",
		Help:      "Outbound frames encrypted into transform envelopes.",
	})

	// FramesCompressed counts outbound frames wrapped in compression envelopes.
	FramesCompressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "frames_compressed_total",
		Help:      "Outbound frames compressed into compression envelopes.",
	})

	// Notifications counts server-initiated messages routed to sinks.
	Notifications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "notifications_total",
		Help:      "Server-initiated notifications dispatched.",
	})

	// Timeouts counts operations that hit their receive deadline.
	Timeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smbclient",
		Name:      "operation_timeouts_total",
		Help:      "Receive operations that timed out.",
	})
)
