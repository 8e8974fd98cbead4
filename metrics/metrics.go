// Package metrics declares the Prometheus instruments of the node.
//
// Instruments are created unregistered by New so tests can use them freely;
// the launcher registers them once with Register and serves them with Serve.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concordia"

type Metrics struct {
	ChainHeight        prometheus.Gauge
	BlocksConnected    prometheus.Counter
	BlocksDisconnected prometheus.Counter
	Reorgs             prometheus.Counter
	RejectedBlocks     *prometheus.CounterVec

	EpochSubsidy       prometheus.Gauge
	RewardsStoreErrors prometheus.Counter
	UTXOScanDuration   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_height",
			Help:      "Height of the active chain tip",
		}),
		BlocksConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_connected_total",
			Help:      "Blocks connected to the active chain",
		}),
		BlocksDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_disconnected_total",
			Help:      "Blocks disconnected from the active chain",
		}),
		Reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorgs_total",
			Help:      "Chain reorganizations that disconnected at least one block",
		}),
		RejectedBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_rejected_total",
			Help:      "Blocks rejected by consensus checks",
		}, []string{"code"}),
		EpochSubsidy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "epoch_subsidy",
			Help:      "Dynamic subsidy of the latest computed epoch, in base units",
		}),
		RewardsStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "store_errors_total",
			Help:      "Failed writes to the durable rewards store",
		}),
		UTXOScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "utxo_scan_seconds",
			Help:      "Duration of the circulating supply scan at epoch boundaries",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ChainHeight,
		m.BlocksConnected,
		m.BlocksDisconnected,
		m.Reorgs,
		m.RejectedBlocks,
		m.EpochSubsidy,
		m.RewardsStoreErrors,
		m.UTXOScanDuration,
	}
}

// Register adds every instrument to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// Serve exposes g on addr under /metrics. The server runs until Close.
func Serve(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
