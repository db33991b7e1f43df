package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyQuantiles(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.AddLatency(int64(i))
	}

	qs := m.latencyQuantiles(100, 0.50, 0.99, 0.999)
	assert.Equal(t, 0.05, qs[0])
	assert.Equal(t, 0.099, qs[1])
	assert.Equal(t, 0.1, qs[2])

	assert.Equal(t, []float64{0, 0, 0}, m.latencyQuantiles(0, 0.50, 0.99, 0.999))
}

func TestLatencyOverflowBucket(t *testing.T) {
	m := NewMetrics()
	m.AddLatency(MaxLatencyMicros + 500)

	assert.Equal(t, int64(1), m.LatencyHistogram[MaxLatencyMicros].Load())
	qs := m.latencyQuantiles(1, 0.50)
	assert.Equal(t, float64(MaxLatencyMicros)/1000.0, qs[0])
}

func TestMarshalJSONSnapshot(t *testing.T) {
	m := NewMetrics()
	m.IncOrdersReceived()
	m.AddTrades(2, 15)
	m.AddLatency(250)

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(raw, &snapshot))
	assert.Equal(t, float64(1), snapshot["orders_received"])
	assert.Equal(t, float64(2), snapshot["trades_executed"])
	assert.Equal(t, float64(15), snapshot["volume_traded"])
	assert.Contains(t, snapshot, "latency_p99_ms")
}
