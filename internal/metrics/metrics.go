// ============================================================================
// wfh-check Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露抽查排程與出勤指標
//
// 指標分類:
//
//   1. 計數器 (Counter)：
//      - wfh_rounds_opened_total: 已開啟的抽查輪數
//      - wfh_round_acks_total: 抽查回覆數
//      - wfh_missed_responses_total: 逾時未回覆的人次
//      - wfh_probe_slots_skipped_total: 因時鐘漂移錯過的排程時刻
//      - wfh_checkins_total{status}: 上班打卡（on_time / late）
//      - wfh_checkouts_total: 下班打卡
//      - wfh_messages_ignored_total{reason}: 被忽略的訊息
//      - wfh_messages_sent_total{kind} / wfh_send_failures_total: 送出結果
//      - wfh_reports_total: 每日報告次數
//      - wfh_callback_panics_total{task}: 排程回呼中被攔下的 panic
//
//   2. 性能指標 (Histogram)：
//      - wfh_ack_latency_seconds: 從開輪到回覆的時間
//
//   3. 狀態指標 (Gauge)：
//      - wfh_current_round: 當日目前輪次（-1 表示尚未開始）
//      - wfh_roster_size: 名冊人數
//
// HTTP 端點:
//   由 gin 路由掛載 /metrics（promhttp）
//
// ============================================================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector Prometheus 指標收集器；nil *Collector 的所有方法皆為 no-op
type Collector struct {
	roundsOpened   prometheus.Counter
	roundAcks      prometheus.Counter
	missedReplies  prometheus.Counter
	slotsSkipped   prometheus.Counter
	checkIns       *prometheus.CounterVec
	checkOuts      prometheus.Counter
	ignored        *prometheus.CounterVec
	sent           *prometheus.CounterVec
	sendFailures   prometheus.Counter
	reports        prometheus.Counter
	callbackPanics *prometheus.CounterVec

	ackLatency prometheus.Histogram

	currentRound prometheus.Gauge
	rosterSize   prometheus.Gauge
}

// NewCollector 創建並註冊指標；reg 為 nil 時使用 prometheus.DefaultRegisterer
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		roundsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfh_rounds_opened_total",
			Help: "Total number of probe rounds opened",
		}),
		roundAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfh_round_acks_total",
			Help: "Total number of probe acknowledgments",
		}),
		missedReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfh_missed_responses_total",
			Help: "Employees still unanswered when a round timeout fired",
		}),
		slotsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfh_probe_slots_skipped_total",
			Help: "Scheduled probe times that passed without a matching tick",
		}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfh_checkins_total",
			Help: "Check-ins by punctuality",
		}, []string{"status"}),
		checkOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfh_checkouts_total",
			Help: "Total number of check-outs",
		}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfh_messages_ignored_total",
			Help: "Inbound messages dropped without effect",
		}, []string{"reason"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfh_messages_sent_total",
			Help: "Outbound messages handed to the dispatcher",
		}, []string{"kind"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfh_send_failures_total",
			Help: "Outbound messages that failed or were dropped",
		}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfh_reports_total",
			Help: "Daily reports emitted",
		}),
		callbackPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfh_callback_panics_total",
			Help: "Panics recovered inside scheduled callbacks",
		}, []string{"task"}),
		ackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wfh_ack_latency_seconds",
			Help:    "Time from round open to acknowledgment",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600},
		}),
		currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wfh_current_round",
			Help: "Current 0-based round index, -1 before the first probe",
		}),
		rosterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wfh_roster_size",
			Help: "Number of employees on the roster",
		}),
	}

	reg.MustRegister(
		c.roundsOpened,
		c.roundAcks,
		c.missedReplies,
		c.slotsSkipped,
		c.checkIns,
		c.checkOuts,
		c.ignored,
		c.sent,
		c.sendFailures,
		c.reports,
		c.callbackPanics,
		c.ackLatency,
		c.currentRound,
		c.rosterSize,
	)
	c.currentRound.Set(-1)

	return c
}

// RecordRoundOpened 記錄開輪
func (c *Collector) RecordRoundOpened(round int) {
	if c == nil {
		return
	}
	c.roundsOpened.Inc()
	c.currentRound.Set(float64(round))
}

// RecordAck 記錄回覆與延遲
func (c *Collector) RecordAck(latencySeconds float64) {
	if c == nil {
		return
	}
	c.roundAcks.Inc()
	c.ackLatency.Observe(latencySeconds)
}

// RecordMissed 記錄逾時未回覆人數
func (c *Collector) RecordMissed(n int) {
	if c == nil {
		return
	}
	c.missedReplies.Add(float64(n))
}

// RecordSlotSkipped 記錄錯過的排程時刻
func (c *Collector) RecordSlotSkipped() {
	if c == nil {
		return
	}
	c.slotsSkipped.Inc()
}

// RecordCheckIn 記錄上班打卡
func (c *Collector) RecordCheckIn(late bool) {
	if c == nil {
		return
	}
	status := "on_time"
	if late {
		status = "late"
	}
	c.checkIns.WithLabelValues(status).Inc()
}

// RecordCheckOut 記錄下班打卡
func (c *Collector) RecordCheckOut() {
	if c == nil {
		return
	}
	c.checkOuts.Inc()
}

// RecordIgnored 記錄被忽略的訊息
func (c *Collector) RecordIgnored(reason string) {
	if c == nil {
		return
	}
	c.ignored.WithLabelValues(reason).Inc()
}

// RecordSent 記錄交給送出池的訊息
func (c *Collector) RecordSent(kind string) {
	if c == nil {
		return
	}
	c.sent.WithLabelValues(kind).Inc()
}

// RecordSendFailure 記錄送出失敗
func (c *Collector) RecordSendFailure() {
	if c == nil {
		return
	}
	c.sendFailures.Inc()
}

// RecordReport 記錄每日報告並重設輪次
func (c *Collector) RecordReport() {
	if c == nil {
		return
	}
	c.reports.Inc()
	c.currentRound.Set(-1)
}

// RecordPanic 記錄排程回呼 panic
func (c *Collector) RecordPanic(task string) {
	if c == nil {
		return
	}
	c.callbackPanics.WithLabelValues(task).Inc()
}

// SetRosterSize 設定名冊人數
func (c *Collector) SetRosterSize(n int) {
	if c == nil {
		return
	}
	c.rosterSize.Set(float64(n))
}
