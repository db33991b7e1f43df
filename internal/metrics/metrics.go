package metrics

import (
	"encoding/json"
	"math"
	"sync/atomic"
	"time"
)

const (
	MaxLatencyMicros = 100000 // Track up to 100ms with 1us precision
)

// Metrics holds thread-safe counters for the exchange. Placement latency is
// recorded per order in a lock-free histogram for accurate percentiles.
type Metrics struct {
	StartTime       time.Time
	OrdersReceived  atomic.Int64
	OrdersRejected  atomic.Int64
	OrdersCancelled atomic.Int64
	OrdersResting   atomic.Int64
	TradesExecuted  atomic.Int64
	VolumeTraded    atomic.Int64 // sum of trade qty across all tickers
	TotalLatency    atomic.Int64 // in microseconds

	// Index i stores count of placements taking i microseconds.
	// Last index stores all placements >= MaxLatencyMicros.
	LatencyHistogram [MaxLatencyMicros + 1]atomic.Int64
}

// NewMetrics creates a new Metrics struct.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
	}
}

// IncOrdersReceived increments the total orders counter.
func (m *Metrics) IncOrdersReceived() {
	m.OrdersReceived.Add(1)
}

// IncOrdersRejected counts admission failures (insufficient balance or
// liquidity, validation).
func (m *Metrics) IncOrdersRejected() {
	m.OrdersRejected.Add(1)
}

// IncOrdersCancelled increments the cancelled orders counter.
func (m *Metrics) IncOrdersCancelled() {
	m.OrdersCancelled.Add(1)
}

// IncOrdersResting increments the resting orders counter.
func (m *Metrics) IncOrdersResting() {
	m.OrdersResting.Add(1)
}

// DecOrdersResting decrements the resting orders counter.
func (m *Metrics) DecOrdersResting() {
	m.OrdersResting.Add(-1)
}

// AddTrades records count executions moving qty units in total.
func (m *Metrics) AddTrades(count, qty int64) {
	m.TradesExecuted.Add(count)
	m.VolumeTraded.Add(qty)
}

// AddLatency adds to the total latency and updates the histogram.
func (m *Metrics) AddLatency(microseconds int64) {
	m.TotalLatency.Add(microseconds)

	idx := microseconds
	if idx > MaxLatencyMicros {
		idx = MaxLatencyMicros
	}
	m.LatencyHistogram[idx].Add(1)
}

// latencyQuantiles sweeps the histogram once and returns, per quantile in
// qs, the latency in milliseconds below which that share of placements
// completed. qs must be ascending.
func (m *Metrics) latencyQuantiles(total int64, qs ...float64) []float64 {
	out := make([]float64, len(qs))
	if total == 0 {
		return out
	}

	next := 0
	var seen int64
	for bucket := 0; bucket <= MaxLatencyMicros && next < len(qs); bucket++ {
		seen += m.LatencyHistogram[bucket].Load()
		for next < len(qs) && seen >= int64(math.Ceil(float64(total)*qs[next])) {
			out[next] = float64(bucket) / 1000.0
			next++
		}
	}
	for ; next < len(qs); next++ {
		out[next] = float64(MaxLatencyMicros) / 1000.0
	}
	return out
}

// MarshalJSON renders a snapshot of all counters plus derived latency and
// throughput figures.
func (m *Metrics) MarshalJSON() ([]byte, error) {
	received := m.OrdersReceived.Load()

	var avgMs float64
	if received > 0 {
		avgMs = float64(m.TotalLatency.Load()) / float64(received) / 1000.0
	}
	var perSec float64
	if uptime := time.Since(m.StartTime).Seconds(); uptime > 0 {
		perSec = float64(received) / uptime
	}
	quantiles := m.latencyQuantiles(received, 0.50, 0.99, 0.999)

	return json.Marshal(map[string]any{
		"orders_received":           received,
		"orders_rejected":           m.OrdersRejected.Load(),
		"orders_cancelled":          m.OrdersCancelled.Load(),
		"orders_resting":            m.OrdersResting.Load(),
		"trades_executed":           m.TradesExecuted.Load(),
		"volume_traded":             m.VolumeTraded.Load(),
		"latency_avg_ms":            avgMs,
		"latency_p50_ms":            quantiles[0],
		"latency_p99_ms":            quantiles[1],
		"latency_p999_ms":           quantiles[2],
		"throughput_orders_per_sec": perSec,
	})
}
