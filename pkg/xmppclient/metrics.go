package xmppclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// elementsReceivedTotal counts inbound top-level elements by kind
	elementsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmpp_client_elements_received_total",
		Help: "Total number of top-level stream elements received by kind",
	}, []string{"kind"})

	stateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmpp_client_state_transitions_total",
		Help: "Total number of connection state transitions by target state",
	}, []string{"state"})

	authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmpp_client_auth_failures_total",
		Help: "Total number of authentication failures by cause",
	}, []string{"cause"})

	pingsAnsweredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmpp_client_pings_answered_total",
		Help: "Total number of XEP-0199 pings answered",
	})
)
