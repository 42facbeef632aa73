package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the round engine collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RoundsTotal      prometheus.Counter
	RoundsVoided     prometheus.Counter
	BetsTotal        prometheus.Counter
	CashoutsTotal    prometheus.Counter
	RejectionsTotal  *prometheus.CounterVec
	StakedTotal      prometheus.Counter
	PaidOutTotal     prometheus.Counter
	CrashPoint       prometheus.Histogram
	ConnectedClients prometheus.Gauge
	DroppedClients   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RoundsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crash_rounds_total",
			Help: "Rounds settled",
		}),
		RoundsVoided: f.NewCounter(prometheus.CounterOpts{
			Name: "crash_rounds_voided_total",
			Help: "Rounds aborted by a round loop failure",
		}),
		BetsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crash_bets_total",
			Help: "Bets admitted",
		}),
		CashoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crash_cashouts_total",
			Help: "Cash-outs admitted, manual and automatic",
		}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crash_rejections_total",
			Help: "Rejected client requests by reason",
		}, []string{"reason"}),
		StakedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crash_staked_total",
			Help: "Sum of admitted stakes",
		}),
		PaidOutTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crash_paid_out_total",
			Help: "Sum of settled payouts",
		}),
		CrashPoint: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crash_point",
			Help:    "Distribution of crash points",
			Buckets: []float64{1.01, 1.5, 2, 3, 5, 10, 25, 100, 1000},
		}),
		ConnectedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "crash_connected_clients",
			Help: "Live websocket connections",
		}),
		DroppedClients: f.NewCounter(prometheus.CounterOpts{
			Name: "crash_dropped_clients_total",
			Help: "Connections removed after a failed or backed-up send",
		}),
	}
}

func (m *Metrics) RoundSettled(crashPoint float64) {
	if m == nil {
		return
	}
	m.RoundsTotal.Inc()
	m.CrashPoint.Observe(crashPoint)
}

func (m *Metrics) RoundVoided() {
	if m == nil {
		return
	}
	m.RoundsVoided.Inc()
}

func (m *Metrics) BetPlaced(stake float64) {
	if m == nil {
		return
	}
	m.BetsTotal.Inc()
	m.StakedTotal.Add(stake)
}

func (m *Metrics) CashedOut() {
	if m == nil {
		return
	}
	m.CashoutsTotal.Inc()
}

func (m *Metrics) PaidOut(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.PaidOutTotal.Add(amount)
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.ConnectedClients.Inc()
}

func (m *Metrics) ClientDisconnected(dropped bool) {
	if m == nil {
		return
	}
	m.ConnectedClients.Dec()
	if dropped {
		m.DroppedClients.Inc()
	}
}
