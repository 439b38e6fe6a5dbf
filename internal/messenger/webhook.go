package messenger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ChuLiYu/wfh-check/pkg/types"
	"github.com/gin-gonic/gin"
)

// DefaultWebhookPath is where Telegram posts updates.
const DefaultWebhookPath = "/telegram/webhook"

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *telegramUser `json:"from"`
	Chat      telegramChat  `json:"chat"`
	Date      int64         `json:"date"`
	Text      string        `json:"text"`
	Caption   string        `json:"caption"`
}

type telegramUser struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

// WebhookHandler turns Telegram updates into InboundMessages.
type WebhookHandler struct {
	sink Sink
	now  func() time.Time
}

// NewWebhookHandler forwards every human message to sink. now stamps
// messages that carry no date.
func NewWebhookHandler(sink Sink, now func() time.Time) *WebhookHandler {
	if now == nil {
		now = time.Now
	}
	return &WebhookHandler{sink: sink, now: now}
}

// Update handles POST <webhook path>.
func (h *WebhookHandler) Update(c *gin.Context) {
	var upd telegramUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update", "detail": err.Error()})
		return
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		c.JSON(http.StatusOK, gin.H{"status": "skipped"})
		return
	}

	at := h.now()
	if msg.Date > 0 {
		at = time.Unix(msg.Date, 0)
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	in := types.InboundMessage{
		ChatID:       strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:     types.EmployeeID(strconv.FormatInt(msg.From.ID, 10)),
		SenderHandle: msg.From.Username,
		Text:         text,
		At:           at,
	}
	if err := h.sink.Deliver(in); err != nil {
		slog.Warn("webhook: inbound message not accepted", "update_id", upd.UpdateID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NewRouter wires the webhook, a health probe and, when given, /metrics.
func NewRouter(h *WebhookHandler, webhookPath string, metricsHandler http.Handler) *gin.Engine {
	if webhookPath == "" {
		webhookPath = DefaultWebhookPath
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(webhookPath, h.Update)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}
	return r
}
