package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TileRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdb_tile_requests_total",
		Help: "Total number of feature tile requests",
	}, []string{"kind"})
	TileDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdb_tile_duration_ms",
		Help:    "Feature tile request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	}, []string{"kind"})
	TilesMissingTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cdb_tiles_missing_total",
		Help: "Total number of requests with no on-disk tile",
	})
	BlacklistHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cdb_blacklist_hits_total",
		Help: "Total tile requests short-circuited by the blacklist",
	})
	BlacklistAddsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cdb_blacklist_adds_total",
		Help: "Total names added to the blacklist",
	})
	FeaturesEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdb_features_emitted_total",
		Help: "Total features emitted by model source",
	}, []string{"source"})
	FeaturesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdb_features_dropped_total",
		Help: "Total features dropped by reason",
	}, []string{"reason"})
	OrphansRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cdb_orphans_registered_total",
		Help: "Total unreferenced archive entries recorded",
	})
	OrphansClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cdb_orphans_claimed_total",
		Help: "Total unreferenced archive entries claimed by a feature",
	})
	CaptureFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdb_capture_fail_total",
		Help: "Total capture sink write failures",
	}, []string{"sink"})
	DriverHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdb_driver_heartbeat_total",
		Help: "Feature source driver heartbeat count by status",
	}, []string{"driver", "status"})
)

func init() {
	prometheus.MustRegister(TileRequestsTotal)
	prometheus.MustRegister(TileDurationMs)
	prometheus.MustRegister(TilesMissingTotal)
	prometheus.MustRegister(BlacklistHitsTotal)
	prometheus.MustRegister(BlacklistAddsTotal)
	prometheus.MustRegister(FeaturesEmittedTotal)
	prometheus.MustRegister(FeaturesDroppedTotal)
	prometheus.MustRegister(OrphansRegisteredTotal)
	prometheus.MustRegister(OrphansClaimedTotal)
	prometheus.MustRegister(CaptureFailTotal)
	prometheus.MustRegister(DriverHeartbeatTotal)
}

// 文档注释：返回 Prometheus 指标处理器，在主入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
