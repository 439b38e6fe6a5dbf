package snapshot

// ============================================================================
// 職責說明：
// 1. 將每日報告序列化為 JSON 封存檔（<dir>/<YYYY-MM-DD>.json）
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性
// 4. 只封存已結束的一天；當日即時狀態不持久化
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ChuLiYu/wfh-check/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrCorruptedSnapshot   = errors.New("report archive file is corrupted")
	ErrIncompatibleVersion = errors.New("report archive schema version is incompatible")
	ErrSnapshotNotFound    = errors.New("report archive not found")
	ErrInvalidDate         = errors.New("report date must be YYYY-MM-DD")
)

// Manager 報告封存管理器
type Manager struct {
	dir string     // 封存目錄
	mu  sync.Mutex // 保護檔案操作
}

// NewManager 建立封存管理器實例
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Write 原子性寫入一天的報告
//
// 流程：
// 1. 寫入臨時檔案（.tmp）
// 2. 使用 os.Rename 原子性替換原始檔案
func (m *Manager) Write(report types.DayReport) error {
	if _, err := time.Parse(types.DateLayout, report.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, report.Date)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	report.SchemaVer = types.ReportSchemaVersion

	// 序列化為 JSON（帶縮排，方便人工閱讀與除錯）
	jsonBytes, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	path := m.pathFor(report.Date)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp report: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}

	return nil
}

// Load 載入指定日期的報告
func (m *Manager) Load(date string) (types.DayReport, error) {
	var report types.DayReport
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return report, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	jsonBytes, err := os.ReadFile(m.pathFor(date))
	if err != nil {
		if os.IsNotExist(err) {
			return report, fmt.Errorf("%w: %s", ErrSnapshotNotFound, date)
		}
		return report, fmt.Errorf("failed to read report: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &report); err != nil {
		return report, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}

	if report.SchemaVer != types.ReportSchemaVersion {
		return report, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, report.SchemaVer, types.ReportSchemaVersion)
	}

	return report, nil
}

// List 回傳所有已封存的日期（由舊到新）
func (m *Manager) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := time.Parse(types.DateLayout, date); err == nil {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// Exists 檢查某日報告是否存在
func (m *Manager) Exists(date string) bool {
	_, err := os.Stat(m.pathFor(date))
	return err == nil
}

// GetDir 取得封存目錄（用於測試與除錯）
func (m *Manager) GetDir() string {
	return m.dir
}

func (m *Manager) pathFor(date string) string {
	return filepath.Join(m.dir, date+".json")
}
