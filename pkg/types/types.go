// Package types 定義了 wfh-check 系統中使用的核心領域模型
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTimeOfDay is returned when an "HH:MM" value cannot be parsed.
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// EmployeeID 員工唯一識別碼（Telegram user id 的字串形式）
type EmployeeID string

// Employee 員工資料，啟動時載入一次，之後不可變
type Employee struct {
	ID     EmployeeID `json:"id"`               // 發訊者識別碼
	Name   string     `json:"name"`             // 顯示名稱
	Handle string     `json:"handle,omitempty"` // @username（可選）
}

// Mention renders the employee the way group messages address them:
// "@handle" when a handle is known, the display name otherwise.
func (e Employee) Mention() string {
	if e.Handle != "" {
		return "@" + e.Handle
	}
	return e.Name
}

// ============================================================================
// TimeOfDay
// ============================================================================

// TimeOfDay 一天中的時刻（分鐘精度），以午夜起算的分鐘數表示
type TimeOfDay int

// MinutesPerDay bounds every valid TimeOfDay.
const MinutesPerDay = 24 * 60

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// TimeOfDayOf truncates t to minute granularity in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return NewTimeOfDay(h, m), nil
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String renders "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places the time of day on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}

// UnmarshalYAML accepts "HH:MM" scalars.
func (t *TimeOfDay) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML renders "HH:MM".
func (t TimeOfDay) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// MarshalJSON renders "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts "HH:MM" strings.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window 允許發送抽查的工作時段 [Start, End)，以整點表示
type Window struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", w.Start, w.End)
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t TimeOfDay) bool {
	return t >= NewTimeOfDay(w.Start, 0) && t < NewTimeOfDay(w.End, 0)
}

// ============================================================================
// 訊息與出勤紀錄
// ============================================================================

// InboundMessage 群組收到的一則訊息
type InboundMessage struct {
	ChatID       string     `json:"chat_id"`
	SenderID     EmployeeID `json:"sender_id"`
	SenderHandle string     `json:"sender_handle,omitempty"`
	Text         string     `json:"text"`
	At           time.Time  `json:"at"` // 訊息抵達時間；零值表示使用目前時間
}

// AttendanceRecord 單一員工當日的出勤狀態
type AttendanceRecord struct {
	EmployeeID EmployeeID `json:"employee_id"`
	CheckIn    *TimeOfDay `json:"check_in,omitempty"`
	CheckOut   *TimeOfDay `json:"check_out,omitempty"`
	Late       bool       `json:"late"`
	Responses  []bool     `json:"responses"` // index = round；false 表示已抽查尚未回覆
	Messages   int        `json:"messages"`  // 當日觀察到的訊息數
}

// MissedRounds returns the 1-indexed rounds still unanswered.
func (r AttendanceRecord) MissedRounds() []int {
	missed := make([]int, 0)
	for i, ok := range r.Responses {
		if !ok {
			missed = append(missed, i+1)
		}
	}
	return missed
}

// ============================================================================
// 每日報告
// ============================================================================

// ReportSchemaVersion 報告封存格式版本
const ReportSchemaVersion = 1

// EmployeeReport 報告中單一員工的一行
type EmployeeReport struct {
	EmployeeID   EmployeeID `json:"employee_id"`
	Mention      string     `json:"mention"`
	CheckIn      *TimeOfDay `json:"check_in,omitempty"`
	Late         bool       `json:"late"`
	CheckOut     *TimeOfDay `json:"check_out,omitempty"`
	MissedRounds []int      `json:"missed_rounds"`
}

// DayReport 每日截止時產生的完整報告
type DayReport struct {
	Date        string           `json:"date"` // YYYY-MM-DD
	SessionID   string           `json:"session_id"`
	Rounds      int              `json:"rounds"` // 當日實際開啟的輪數
	Schedule    []TimeOfDay      `json:"schedule"`
	Employees   []EmployeeReport `json:"employees"`
	GeneratedAt time.Time        `json:"generated_at"`
	SchemaVer   int              `json:"schema_ver"`
}

// DateLayout is the calendar-date format used for report keys.
const DateLayout = "2006-01-02"
