package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueTickets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duel_queue_tickets",
			Help: "Current number of waiting tickets per time-limit bucket",
		},
		[]string{"time_limit"},
	)

	liveMatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duel_live_matches",
			Help: "Current number of active matches",
		},
	)

	waitingRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duel_waiting_rooms",
			Help: "Current number of private rooms waiting for a second player",
		},
	)

	connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duel_connections",
			Help: "Current number of registered player connections",
		},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duel_queue_operations_total",
			Help: "Total matchmaking and room operations",
		},
		[]string{"operation", "status"},
	)

	matchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duel_match_outcomes_total",
			Help: "Total decided matches by outcome kind",
		},
		[]string{"kind"},
	)

	matchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duel_match_duration_seconds",
			Help:    "Time from match start to decided outcome",
			Buckets: prometheus.ExponentialBuckets(15, 2, 8),
		},
		[]string{"kind"},
	)

	judgeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duel_judge_requests_total",
			Help: "Total judge evaluations",
		},
		[]string{"mode", "status"},
	)

	judgeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duel_judge_duration_seconds",
			Help:    "Round trip duration of judge evaluations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"mode"},
	)
)

// Snapshot is the point-in-time state the gauges are refreshed from.
type Snapshot struct {
	QueueTickets map[int]int
	LiveMatches  int
	WaitingRooms int
	Connections  int
}

// SnapshotFunc gathers a Snapshot from the live services.
type SnapshotFunc func() Snapshot

type Monitor struct {
	snapshot SnapshotFunc
}

func NewMonitor(snapshot SnapshotFunc) *Monitor {
	return &Monitor{snapshot: snapshot}
}

// CollectMetrics refreshes all gauges. It is run periodically by the
// service scheduler.
func (m *Monitor) CollectMetrics() {
	if m == nil || m.snapshot == nil {
		return
	}

	s := m.snapshot()

	queueTickets.Reset()
	for limit, waiting := range s.QueueTickets {
		queueTickets.WithLabelValues(strconv.Itoa(limit)).Set(float64(waiting))
	}
	liveMatches.Set(float64(s.LiveMatches))
	waitingRooms.Set(float64(s.WaitingRooms))
	connections.Set(float64(s.Connections))
}

// Track queue and room operations
func (m *Monitor) TrackQueueOperation(operation, status string) {
	queueOperations.WithLabelValues(operation, status).Inc()
}

// Track a decided match
func (m *Monitor) TrackMatchOutcome(kind string, duration time.Duration) {
	matchOutcomes.WithLabelValues(kind).Inc()
	matchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Track a judge round trip
func (m *Monitor) TrackJudgeRequest(mode, status string, duration time.Duration) {
	judgeRequests.WithLabelValues(mode, status).Inc()
	judgeDuration.WithLabelValues(mode).Observe(duration.Seconds())
}
