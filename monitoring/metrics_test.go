package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_CollectMetrics(t *testing.T) {
	m := NewMonitor(func() Snapshot {
		return Snapshot{
			QueueTickets: map[int]int{5: 3, 10: 1},
			LiveMatches:  4,
			WaitingRooms: 2,
			Connections:  11,
		}
	})

	m.CollectMetrics()

	assert.Equal(t, 3.0, testutil.ToFloat64(queueTickets.WithLabelValues("5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(queueTickets.WithLabelValues("10")))
	assert.Equal(t, 4.0, testutil.ToFloat64(liveMatches))
	assert.Equal(t, 2.0, testutil.ToFloat64(waitingRooms))
	assert.Equal(t, 11.0, testutil.ToFloat64(connections))
}

func TestMonitor_NilIsSafe(t *testing.T) {
	var m *Monitor

	assert.NotPanics(t, func() {
		m.CollectMetrics()
		m.TrackQueueOperation("join", "success")
		m.TrackMatchOutcome("draw", time.Minute)
		m.TrackJudgeRequest("submit", "success", time.Second)
	})
}

func TestMonitor_TrackQueueOperation(t *testing.T) {
	m := NewMonitor(nil)
	before := testutil.ToFloat64(queueOperations.WithLabelValues("pair", "success"))

	m.TrackQueueOperation("pair", "success")

	assert.Equal(t, before+1, testutil.ToFloat64(queueOperations.WithLabelValues("pair", "success")))
}
