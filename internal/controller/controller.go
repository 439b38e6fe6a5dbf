// ============================================================================
// wfh-check 控制器 - 抽查排程與出勤狀態機
// ============================================================================
//
// Package: internal/controller
// 文件: controller.go
// 功能: 系統核心控制器，協調排程、帳本、訊息與每日報告
//
// 架構設計:
//   這是整個系統的"大腦"，負責協調以下組件：
//   - schedule.Generator: 每日隨機抽查時刻
//   - ledger.Ledger: 當日出勤狀態（DaySession）
//   - Outbox (worker.Pool): 非阻塞送出群組訊息
//   - snapshot.Manager: 封存每日報告
//
// 三個邏輯任務（由 Tick(now) 依序評估）:
//   1. Round Timeout - 到期的抽查回覆窗口，列出未回覆者
//   2. Probe Tick    - 當前時刻等於排程時刻時開啟新一輪
//   3. Daily Cutoff  - 產生報告、封存、重置為下一天
//
//   "下次觸發時間"都是顯式狀態（nextProbe, timeouts[i].fireAt, nextCutoff），
//   測試以假時鐘直接呼叫 Tick，不需要 goroutine。
//
// 核心循環 (Start 之後):
//   1. Tick Loop   - ticker 驅動 Tick(clock.Now())
//   2. Ingest Loop - 從 inbox 取出訊息交給 HandleMessage
//   3. Result Loop - 接收送出結果，記錄失敗
//
// 並發安全:
//   - c.mu 串行化所有帳本寫入（單一寫入者）
//   - stopCh channel 用於優雅關閉所有循環
//   - sync.WaitGroup 確保所有 goroutine 正確退出
//
// 錯誤隔離:
//   每個排程回呼都在 guard() 內執行，panic 會被記錄並吞下，
//   下一個週期照常觸發（cutoff 的重新排程以 defer 完成）。
//
// ============================================================================

package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/clock"
	"github.com/ChuLiYu/wfh-check/internal/ledger"
	"github.com/ChuLiYu/wfh-check/internal/metrics"
	"github.com/ChuLiYu/wfh-check/internal/report"
	"github.com/ChuLiYu/wfh-check/internal/roster"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/internal/snapshot"
	"github.com/ChuLiYu/wfh-check/internal/worker"
	"github.com/ChuLiYu/wfh-check/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrStopped 表示 Controller 已停止，不再接收訊息
	ErrStopped = errors.New("controller stopped")
	// ErrInboxFull 表示 inbox 已滿，訊息被拒絕
	ErrInboxFull = errors.New("controller inbox full")
	// ErrAlreadyStarted 表示重複呼叫 Start
	ErrAlreadyStarted = errors.New("controller already started")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Config Controller 配置
type Config struct {
	ChatID          string          // 監控的群組
	ProbesPerDay    int             // 每日抽查次數
	ResponseTimeout time.Duration   // 每輪回覆期限
	Windows         []types.Window  // 允許抽查的時段
	LateBoundary    types.TimeOfDay // 遲到界線
	CheckOutStart   types.TimeOfDay // 下班打卡窗口（含）
	CheckOutEnd     types.TimeOfDay // 下班打卡窗口（含）
	ReportCutoff    types.TimeOfDay // 每日報告時刻
	TickInterval    time.Duration   // Tick Loop 間隔
	SendTimeout     time.Duration   // 單則訊息送出超時
	InboxSize       int             // inbox 緩衝大小
}

// DefaultConfig 返回預設配置（ChatID 需另外設定）
func DefaultConfig() Config {
	return Config{
		ProbesPerDay:    5,
		ResponseTimeout: 10 * time.Minute,
		Windows: []types.Window{
			{Start: 10, End: 12},
			{Start: 13, End: 16},
			{Start: 17, End: 20},
		},
		LateBoundary:  types.NewTimeOfDay(10, 0),
		CheckOutStart: types.NewTimeOfDay(20, 0),
		CheckOutEnd:   types.NewTimeOfDay(21, 0),
		ReportCutoff:  types.NewTimeOfDay(21, 0),
		TickInterval:  time.Second,
		SendTimeout:   10 * time.Second,
		InboxSize:     256,
	}
}

// Validate 檢查與排程無關的欄位；時段與次數由 schedule.NewGenerator 檢查
func (cfg Config) Validate() error {
	if cfg.ChatID == "" {
		return schedule.Invalid("chat_id", "must not be empty")
	}
	if cfg.ResponseTimeout <= 0 {
		return schedule.Invalid("response_timeout", "must be positive, got %s", cfg.ResponseTimeout)
	}
	for field, t := range map[string]types.TimeOfDay{
		"late_boundary":  cfg.LateBoundary,
		"checkout_start": cfg.CheckOutStart,
		"checkout_end":   cfg.CheckOutEnd,
		"report_cutoff":  cfg.ReportCutoff,
	} {
		if t < 0 || t >= types.MinutesPerDay {
			return schedule.Invalid(field, "%d minutes is outside the day", int(t))
		}
	}
	if cfg.CheckOutStart > cfg.CheckOutEnd {
		return schedule.Invalid("checkout", "window %s-%s is reversed", cfg.CheckOutStart, cfg.CheckOutEnd)
	}
	for _, w := range cfg.Windows {
		if types.NewTimeOfDay(w.End, 0) > cfg.ReportCutoff {
			return schedule.Invalid("report_cutoff", "%s falls before the end of window %s", cfg.ReportCutoff, w)
		}
	}
	return nil
}

// Outbox 非阻塞的訊息送出佇列（worker.Pool）
type Outbox interface {
	Submit(task worker.Task) error
}

// resultSource 由 worker.Pool 實作；Controller 負責排空結果並在停止時關閉
type resultSource interface {
	ReceiveResult() (worker.Result, error)
	Stop()
}

// Deps Controller 的協作者
type Deps struct {
	Roster  *roster.Directory
	Clock   clock.TimeSource
	Outbox  Outbox
	Metrics *metrics.Collector // 可為 nil
	Archive *snapshot.Manager  // 可為 nil，不封存報告
	Rand    *rand.Rand         // 可為 nil，使用隨機種子
	Logger  *slog.Logger       // 可為 nil，使用 slog.Default()
}

// pendingTimeout 一個已排程的回覆期限；session 以值捕獲
type pendingTimeout struct {
	session *ledger.DaySession
	round   int
	fireAt  time.Time
}

// Controller 核心控制器
type Controller struct {
	mu        sync.Mutex // 串行化 Tick / HandleMessage / OpenRound
	cfg       Config
	rules     ledger.Rules
	roster    *roster.Directory
	clock     clock.TimeSource
	loc       *time.Location
	outbox    Outbox
	metrics   *metrics.Collector
	archive   *snapshot.Manager
	log       *slog.Logger
	generator *schedule.Generator
	ledger    *ledger.Ledger

	schedule   schedule.DailySchedule // 當日抽查時刻
	nextProbe  int                    // schedule 中下一個未消耗的索引
	timeouts   []pendingTimeout       // 尚未觸發的回覆期限
	nextCutoff time.Time              // 下一次每日報告時間

	inbox     chan types.InboundMessage
	stopCh    chan struct{}
	loopWg    sync.WaitGroup // tick + ingest
	resultWg  sync.WaitGroup // result loop
	started   bool
	stopped   bool
	startTime time.Time
}

// ============================================================================
// 建構與生命週期
// ============================================================================

// NewController 驗證配置、抽出第一天的排程並計算第一次 cutoff
//
// 啟動時的 cutoff 為「今天的 cutoff（若尚未到達），否則明天的」，
// 第一個 DaySession 涵蓋該 cutoff 所在的日期。
func NewController(cfg Config, deps Deps) (*Controller, error) {
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaults.SendTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaults.InboxSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case deps.Roster == nil || deps.Roster.Len() == 0:
		return nil, errors.New("controller needs a non-empty roster")
	case deps.Clock == nil:
		return nil, errors.New("controller needs a clock")
	case deps.Outbox == nil:
		return nil, errors.New("controller needs an outbox")
	}

	generator, err := schedule.NewGenerator(cfg.Windows, cfg.ProbesPerDay, deps.Rand)
	if err != nil {
		return nil, err
	}
	first, err := generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to draw first schedule: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loc := deps.Clock.Location()
	now := deps.Clock.Now().In(loc)
	cutoff := nextCutoffAfter(now, cfg.ReportCutoff, loc)

	c := &Controller{
		cfg: cfg,
		rules: ledger.Rules{
			LateBoundary:  cfg.LateBoundary,
			CheckOutStart: cfg.CheckOutStart,
			CheckOutEnd:   cfg.CheckOutEnd,
		},
		roster:     deps.Roster,
		clock:      deps.Clock,
		loc:        loc,
		outbox:     deps.Outbox,
		metrics:    deps.Metrics,
		archive:    deps.Archive,
		log:        logger,
		generator:  generator,
		ledger:     ledger.New(cutoff, deps.Roster.IDs()),
		schedule:   first,
		timeouts:   make([]pendingTimeout, 0),
		nextCutoff: cutoff,
		inbox:      make(chan types.InboundMessage, cfg.InboxSize),
		stopCh:     make(chan struct{}),
	}
	c.metrics.SetRosterSize(deps.Roster.Len())

	return c, nil
}

// Start 啟動 Tick / Ingest 循環；Outbox 若能回報結果則一併啟動 Result 循環
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	if c.stopped {
		return ErrStopped
	}
	c.started = true
	c.startTime = c.clock.Now()

	c.loopWg.Add(2)
	go c.tickLoop()
	go c.ingestLoop()

	if rs, ok := c.outbox.(resultSource); ok {
		c.resultWg.Add(1)
		go c.resultLoop(rs)
	}

	session := c.ledger.Session()
	c.log.Info("Controller started",
		"chat", c.cfg.ChatID,
		"session", session.ID(),
		"date", session.DateKey(),
		"schedule", c.schedule.String(),
		"next_cutoff", c.nextCutoff.Format(time.RFC3339))
	return nil
}

// Stop 優雅關閉 Controller
//
// 關閉順序：
//  1. close(stopCh)  → 通知 tick / ingest 循環停止
//  2. loopWg.Wait()  → 不再有新的送出
//  3. outbox.Stop()  → 送完已排隊的訊息並關閉結果通道
//  4. resultWg.Wait()
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	started := c.started
	c.mu.Unlock()

	if !started {
		return
	}

	c.loopWg.Wait()
	if rs, ok := c.outbox.(resultSource); ok {
		rs.Stop()
		c.resultWg.Wait()
	}
	c.log.Info("Controller stopped")
}

// ============================================================================
// 核心循環
// ============================================================================

func (c *Controller) tickLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.log.Debug("Tick loop stopped")
			return
		case <-ticker.C:
			c.Tick(c.clock.Now())
		}
	}
}

func (c *Controller) ingestLoop() {
	defer c.loopWg.Done()
	for {
		select {
		case <-c.stopCh:
			c.log.Debug("Ingest loop stopped")
			return
		case msg := <-c.inbox:
			c.HandleMessage(msg)
		}
	}
}

// resultLoop 運行到 Outbox 關閉為止
func (c *Controller) resultLoop(rs resultSource) {
	defer c.resultWg.Done()
	for {
		result, err := rs.ReceiveResult()
		if err != nil {
			if errors.Is(err, worker.ErrPoolClosed) {
				c.log.Debug("Result loop stopped")
				return
			}
			c.log.Error("Failed to receive delivery result", "error", err)
			continue
		}

		if !result.Success {
			c.metrics.RecordSendFailure()
			c.log.Warn("Message delivery failed",
				"task", result.TaskID,
				"duration", result.Duration,
				"error", result.Error)
			continue
		}
		c.log.Debug("Message delivered", "task", result.TaskID, "duration", result.Duration)
	}
}

// ============================================================================
// 排程任務
// ============================================================================

// Tick 依序評估 round timeout、probe tick、daily cutoff
func (c *Controller) Tick(now time.Time) {
	now = now.In(c.loc)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fireTimeouts(now)
	c.guard("probe-tick", func() { c.probeTick(now) })
	if !now.Before(c.nextCutoff) {
		c.cutoff(now)
	}
}

// fireTimeouts 觸發所有到期的回覆期限（呼叫者持有 c.mu）
func (c *Controller) fireTimeouts(now time.Time) {
	due := make([]pendingTimeout, 0)
	c.timeouts = slices.DeleteFunc(c.timeouts, func(t pendingTimeout) bool {
		if now.Before(t.fireAt) {
			return false
		}
		due = append(due, t)
		return true
	})

	for _, t := range due {
		c.guard("round-timeout", func() { c.roundTimeout(t) })
	}
}

func (c *Controller) roundTimeout(t pendingTimeout) {
	if t.session != c.ledger.Session() {
		c.log.Debug("Discarding stale round timeout",
			"session", t.session.ID(),
			"date", t.session.DateKey(),
			"round", t.round+1)
		return
	}

	missing, err := t.session.Missing(t.round)
	if err != nil {
		c.log.Error("Failed to list missing responses", "round", t.round+1, "error", err)
		return
	}
	if len(missing) == 0 {
		c.log.Info("Round complete", "round", t.round+1)
		return
	}

	c.metrics.RecordMissed(len(missing))
	c.log.Info("Round timed out with missing responses", "round", t.round+1, "missing", len(missing))
	c.send("missing", missingText(t.round, c.roster.Mentions(missing)))
}

// probeTick 消耗已過去的排程時刻，分鐘相等時開啟新一輪（呼叫者持有 c.mu）
func (c *Controller) probeTick(now time.Time) {
	session := c.ledger.Session()
	if !clock.StartOfDay(now).Equal(session.Date()) {
		return
	}

	tod := types.TimeOfDayOf(now)
	for c.nextProbe < len(c.schedule) {
		slot := c.schedule[c.nextProbe]
		if slot > tod {
			return
		}
		c.nextProbe++
		if slot < tod {
			c.metrics.RecordSlotSkipped()
			c.log.Warn("Probe slot passed without a tick", "slot", slot.String(), "now", tod.String())
			continue
		}
		c.openRound(now)
		return
	}
}

// OpenRound 立即開啟新一輪抽查
func (c *Controller) OpenRound(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openRound(now.In(c.loc))
}

func (c *Controller) openRound(now time.Time) int {
	session := c.ledger.Session()
	round := session.OpenRound(now)

	c.timeouts = append(c.timeouts, pendingTimeout{
		session: session,
		round:   round,
		fireAt:  now.Add(c.cfg.ResponseTimeout),
	})
	c.metrics.RecordRoundOpened(round)
	c.log.Info("Round opened",
		"round", round+1,
		"planned", len(c.schedule),
		"deadline", now.Add(c.cfg.ResponseTimeout).Format(time.RFC3339))

	c.send("probe", probeText(round, len(c.schedule), c.cfg.ResponseTimeout))
	return round
}

// cutoff 產生報告並重置；下一次 cutoff 一定會被重新排程（呼叫者持有 c.mu）
func (c *Controller) cutoff(now time.Time) {
	next := nextCutoffAfter(now, c.cfg.ReportCutoff, c.loc)
	defer func() {
		c.nextCutoff = next
		c.log.Info("Next cutoff armed", "at", next.Format(time.RFC3339))
	}()

	c.guard("daily-report", func() { c.emitReport(now) })
	c.guard("day-reset", func() { c.resetDay(next) })
}

func (c *Controller) emitReport(now time.Time) {
	session := c.ledger.Session()
	r := report.Build(session, c.roster, c.schedule, now)

	c.send("report", report.Render(r))
	c.metrics.RecordReport()
	c.log.Info("Daily report emitted",
		"session", r.SessionID,
		"date", r.Date,
		"rounds", r.Rounds)

	if c.archive == nil {
		return
	}
	if err := c.archive.Write(r); err != nil {
		c.log.Error("Failed to archive daily report", "date", r.Date, "error", err)
	}
}

func (c *Controller) resetDay(next time.Time) {
	session := c.ledger.Reset(next)

	sched, err := c.generator.Generate()
	if err != nil {
		c.log.Error("Failed to draw schedule, no probes until next reset", "error", err)
		sched = schedule.DailySchedule{}
	}
	c.schedule = sched
	c.nextProbe = 0

	c.log.Info("Day reset",
		"session", session.ID(),
		"date", session.DateKey(),
		"schedule", sched.String())
}

// guard 執行排程回呼並攔下 panic
func (c *Controller) guard(task string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordPanic(task)
			c.log.Error("Scheduled task panicked",
				"task", task,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// nextCutoffAfter 返回嚴格晚於 now 的第一個 cutoff；以 time.Date 逐日計算，跨 DST 安全
func nextCutoffAfter(now time.Time, at types.TimeOfDay, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	for i := 0; ; i++ {
		t := time.Date(y, m, d+i, at.Hour(), at.Minute(), 0, 0, loc)
		if t.After(now) {
			return t
		}
	}
}

// ============================================================================
// 訊息處理
// ============================================================================

// Deliver 將訊息放入 inbox；永不阻塞
func (c *Controller) Deliver(msg types.InboundMessage) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	select {
	case c.inbox <- msg:
		return nil
	default:
		return ErrInboxFull
	}
}

// HandleMessage 同步處理一則訊息
//
// 依序套用：上班打卡 → 下班打卡 → 當前輪次回覆。
// 其他群組、非名冊成員、早於當前 session 日期的訊息一律忽略。
func (c *Controller) HandleMessage(msg types.InboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.guard("message", func() { c.handleMessage(msg) })
}

func (c *Controller) handleMessage(msg types.InboundMessage) {
	if msg.ChatID != c.cfg.ChatID {
		c.ignore("other_chat", msg)
		return
	}
	emp, ok := c.roster.Lookup(msg.SenderID)
	if !ok {
		c.ignore("unknown_sender", msg)
		return
	}

	at := msg.At
	if at.IsZero() {
		at = c.clock.Now()
	}
	at = at.In(c.loc)

	session := c.ledger.Session()
	if clock.StartOfDay(at).Before(session.Date()) {
		c.ignore("before_session", msg)
		return
	}

	out, err := session.Apply(emp.ID, at, c.rules)
	if err != nil {
		c.log.Error("Failed to apply message", "sender", emp.ID, "error", err)
		return
	}

	if out.CheckedIn {
		c.metrics.RecordCheckIn(out.Late)
		c.log.Info("Checked in", "employee", emp.ID, "at", out.At.String(), "late", out.Late)
		c.send("check_in", checkInText(emp.Mention(), out.At, out.Late))
	}
	if out.CheckedOut {
		c.metrics.RecordCheckOut()
		c.log.Info("Checked out", "employee", emp.ID, "at", out.At.String())
		c.send("check_out", checkOutText(emp.Mention(), out.At))
	}
	if out.AckedRound != ledger.NoRound {
		if opened, ok := session.RoundOpenedAt(out.AckedRound); ok {
			c.metrics.RecordAck(max(at.Sub(opened).Seconds(), 0))
		}
		c.log.Info("Round acknowledged", "employee", emp.ID, "round", out.AckedRound+1)

		who := emp.Mention()
		if msg.SenderHandle != "" {
			who = "@" + msg.SenderHandle
		}
		c.send("round_ack", roundAckText(who, out.AckedRound))
	}
}

func (c *Controller) ignore(reason string, msg types.InboundMessage) {
	c.metrics.RecordIgnored(reason)
	c.log.Debug("Ignoring message", "reason", reason, "chat", msg.ChatID, "sender", msg.SenderID)
}

// send 交給 Outbox；失敗只記錄，不重試
func (c *Controller) send(kind, text string) {
	task := worker.Task{
		ID:      uuid.NewString(),
		ChatID:  c.cfg.ChatID,
		Text:    text,
		Timeout: c.cfg.SendTimeout,
	}

	if err := c.outbox.Submit(task); err != nil {
		c.metrics.RecordSendFailure()
		c.log.Error("Dropping outbound message", "kind", kind, "task", task.ID, "error", err)
		return
	}
	c.metrics.RecordSent(kind)
}

// ============================================================================
// 公開查詢
// ============================================================================

// Status Controller 當前狀態
type Status struct {
	SessionID       string
	Date            string
	Round           int // 0-based，-1 表示尚未開始
	Schedule        []string
	NextProbe       string // HH:MM，當日已無抽查時為空
	NextCutoff      time.Time
	PendingTimeouts int
	Employees       int
	CheckedIn       int
	Late            int
	CheckedOut      int
	Uptime          time.Duration
}

// GetStatus 取得系統狀態
func (c *Controller) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.ledger.Session()
	stats := session.Stats()

	status := Status{
		SessionID:       session.ID(),
		Date:            session.DateKey(),
		Round:           session.Round(),
		Schedule:        c.schedule.Strings(),
		NextCutoff:      c.nextCutoff,
		PendingTimeouts: len(c.timeouts),
		Employees:       stats["employees"],
		CheckedIn:       stats["checked_in"],
		Late:            stats["late"],
		CheckedOut:      stats["checked_out"],
	}
	if c.nextProbe < len(c.schedule) {
		status.NextProbe = c.schedule[c.nextProbe].String()
	}
	if c.started {
		status.Uptime = c.clock.Now().Sub(c.startTime)
	}
	return status
}

// Schedule 返回當日排程的副本
func (c *Controller) Schedule() schedule.DailySchedule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.schedule)
}

// Session 返回當前 DaySession
func (c *Controller) Session() *ledger.DaySession {
	return c.ledger.Session()
}

// NextCutoff 返回下一次每日報告時間
func (c *Controller) NextCutoff() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextCutoff
}
