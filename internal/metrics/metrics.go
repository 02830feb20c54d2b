// Package metrics exposes the pipeline's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesComposited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_frames_composited_total",
		Help: "Frames composited and handed to the encoder.",
	})

	FramesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_frames_skipped_total",
		Help: "Ticks skipped because no encoded sample was ready.",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_whip_reconnects_total",
		Help: "Full WHIP reconnect attempts.",
	})

	ICERestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_whip_ice_restarts_total",
		Help: "ICE restarts attempted on a degraded connection.",
	})

	ParamUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_param_updates_total",
		Help: "Parameter updates delivered to the processor.",
	})

	ParamsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_param_updates_coalesced_total",
		Help: "Submitted parameter values superseded before sending.",
	})

	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "driftcast_connection_state",
		Help: "Current connection state as its enum value.",
	})
)
