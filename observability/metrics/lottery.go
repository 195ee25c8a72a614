package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LotteryMetrics struct {
	purchases     prometheus.Counter
	entriesSold   prometheus.Counter
	drawPhases    *prometheus.CounterVec
	claims        *prometheus.CounterVec
	claimedAmount prometheus.Counter
	rejected      *prometheus.CounterVec
	pot           prometheus.Gauge
	unclaimed     prometheus.Gauge
	round         prometheus.Gauge
	auditVerdicts *prometheus.CounterVec
}

var (
	lotteryOnce     sync.Once
	lotteryRegistry *LotteryMetrics
)

func Lottery() *LotteryMetrics {
	lotteryOnce.Do(func() {
		lotteryRegistry = &LotteryMetrics{
			purchases: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lottery_purchases_total",
				Help: "Count of successful buy_entries invocations.",
			}),
			entriesSold: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lottery_entries_sold_total",
				Help: "Total entries issued across all cycles.",
			}),
			drawPhases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lottery_draw_transitions_total",
				Help: "Draw phase transitions by phase.",
			}, []string{"phase"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lottery_claims_total",
				Help: "Paid prize claims by tier.",
			}, []string{"tier"}),
			claimedAmount: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lottery_claimed_amount_total",
				Help: "Total base units paid out to winners.",
			}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lottery_rejected_total",
				Help: "Rejected invocations by operation and reason.",
			}, []string{"op", "reason"}),
			pot: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lottery_pot",
				Help: "Pot of the current cycle in base units.",
			}),
			unclaimed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lottery_unclaimed_prizes",
				Help: "Prize amounts reserved for registered but unpaid winners.",
			}),
			round: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lottery_round",
				Help: "Latest round produced by the node.",
			}),
			auditVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lottery_audit_verdicts_total",
				Help: "Cycle verification outcomes.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			lotteryRegistry.purchases,
			lotteryRegistry.entriesSold,
			lotteryRegistry.drawPhases,
			lotteryRegistry.claims,
			lotteryRegistry.claimedAmount,
			lotteryRegistry.rejected,
			lotteryRegistry.pot,
			lotteryRegistry.unclaimed,
			lotteryRegistry.round,
			lotteryRegistry.auditVerdicts,
		)
	})
	return lotteryRegistry
}

func (m *LotteryMetrics) ObservePurchase(entries uint64) {
	if m == nil {
		return
	}
	m.purchases.Inc()
	m.entriesSold.Add(float64(entries))
}

func (m *LotteryMetrics) ObserveDrawPhase(phase string) {
	if m == nil {
		return
	}
	if phase == "" {
		phase = "unknown"
	}
	m.drawPhases.WithLabelValues(phase).Inc()
}

func (m *LotteryMetrics) ObserveClaim(tier uint8, amount uint64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(fmt.Sprintf("%d", tier)).Inc()
	m.claimedAmount.Add(float64(amount))
}

func (m *LotteryMetrics) ObserveRejected(op, reason string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.rejected.WithLabelValues(op, reason).Inc()
}

func (m *LotteryMetrics) SetLedger(pot, unclaimed uint64) {
	if m == nil {
		return
	}
	m.pot.Set(float64(pot))
	m.unclaimed.Set(float64(unclaimed))
}

func (m *LotteryMetrics) SetRound(round uint64) {
	if m == nil {
		return
	}
	m.round.Set(float64(round))
}

func (m *LotteryMetrics) ObserveAuditVerdict(pass bool) {
	if m == nil {
		return
	}
	outcome := "fail"
	if pass {
		outcome = "pass"
	}
	m.auditVerdicts.WithLabelValues(outcome).Inc()
}

func (m *LotteryMetrics) ObserveAuditError() {
	if m == nil {
		return
	}
	m.auditVerdicts.WithLabelValues("error").Inc()
}

// PurchasesCounter exposes the successful purchase counter.
func (m *LotteryMetrics) PurchasesCounter() prometheus.Counter { return m.purchases }

// EntriesSoldCounter exposes the issued entry counter.
func (m *LotteryMetrics) EntriesSoldCounter() prometheus.Counter { return m.entriesSold }

// DrawPhaseVec exposes draw transitions keyed by phase.
func (m *LotteryMetrics) DrawPhaseVec() *prometheus.CounterVec { return m.drawPhases }

// ClaimsVec exposes paid claims keyed by tier.
func (m *LotteryMetrics) ClaimsVec() *prometheus.CounterVec { return m.claims }

// ClaimedAmountCounter exposes the total paid to winners.
func (m *LotteryMetrics) ClaimedAmountCounter() prometheus.Counter { return m.claimedAmount }

// RejectedVec exposes rejected invocations keyed by op and reason.
func (m *LotteryMetrics) RejectedVec() *prometheus.CounterVec { return m.rejected }

// PotGauge exposes the current pot.
func (m *LotteryMetrics) PotGauge() prometheus.Gauge { return m.pot }

// UnclaimedGauge exposes the reserved prize total.
func (m *LotteryMetrics) UnclaimedGauge() prometheus.Gauge { return m.unclaimed }

// RoundGauge exposes the latest round.
func (m *LotteryMetrics) RoundGauge() prometheus.Gauge { return m.round }

// AuditVerdictVec exposes audit outcomes keyed by pass, fail or error.
func (m *LotteryMetrics) AuditVerdictVec() *prometheus.CounterVec { return m.auditVerdicts }
