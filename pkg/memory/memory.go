package memory

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/wallace/pkg/errs"
	"go.uber.org/zap"
)

// UserMemory 长期用户记忆，整体作为一个 JSON 文件持久化
type UserMemory struct {
	Nickname         string            `json:"nickname"`
	Preferences      []string          `json:"preferences"`
	Interests        []string          `json:"interests"`
	RecentTopics     []string          `json:"recent_topics"`
	ImportantDates   map[string]string `json:"important_dates"`
	InteractionCount int               `json:"interaction_count"`
	FirstMet         string            `json:"first_met"`
}

// NewUserMemory 返回默认空记忆
func NewUserMemory() *UserMemory {
	return &UserMemory{
		Preferences:    []string{},
		Interests:      []string{},
		RecentTopics:   []string{},
		ImportantDates: map[string]string{},
	}
}

// Clone 深拷贝，用于快照比较
func (m *UserMemory) Clone() *UserMemory {
	c := &UserMemory{
		Nickname:         m.Nickname,
		Preferences:      append([]string{}, m.Preferences...),
		Interests:        append([]string{}, m.Interests...),
		RecentTopics:     append([]string{}, m.RecentTopics...),
		ImportantDates:   make(map[string]string, len(m.ImportantDates)),
		InteractionCount: m.InteractionCount,
		FirstMet:         m.FirstMet,
	}
	for k, v := range m.ImportantDates {
		c.ImportantDates[k] = v
	}
	return c
}

// Store 管理单个用户的记忆持久化
type Store struct {
	userID       string
	dataDir      string
	syncInterval time.Duration
	file         string
	logger       *zap.Logger

	mu           sync.Mutex
	lastSync     time.Time
	lastSnapshot *UserMemory
}

// NewStore create memory store for one user
func NewStore(userID, dataDir string, syncInterval time.Duration, logger *zap.Logger) *Store {
	return &Store{
		userID:       userID,
		dataDir:      dataDir,
		syncInterval: syncInterval,
		file:         filepath.Join(dataDir, userID+".json"),
		logger:       logger,
	}
}

// Load 从 JSON 文件加载记忆。文件不存在或损坏则返回默认空记忆。
func (s *Store) Load() *UserMemory {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read memory file, using defaults",
				zap.String("userID", s.userID),
				zap.Error(err),
			)
		}
		return NewUserMemory()
	}

	mem := NewUserMemory()
	if err := sonic.Unmarshal(data, mem); err != nil {
		s.logger.Warn("failed to parse memory file, using defaults",
			zap.String("userID", s.userID),
			zap.Error(err),
		)
		return NewUserMemory()
	}

	s.mu.Lock()
	s.lastSnapshot = mem.Clone()
	s.mu.Unlock()
	return mem
}

// Save 保存记忆到 JSON 文件（原子写入：临时文件 + rename）。
func (s *Store) Save(mem *UserMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return errs.NewRecoverable("memory", "create data dir", err)
	}

	data, err := sonic.MarshalIndent(mem, "", "  ")
	if err != nil {
		return errs.NewRecoverable("memory", "marshal memory", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, s.userID+"-*.tmp")
	if err != nil {
		return errs.NewRecoverable("memory", "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.NewRecoverable("memory", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.NewRecoverable("memory", "close temp file", err)
	}
	if err := os.Rename(tmpName, s.file); err != nil {
		os.Remove(tmpName)
		return errs.NewRecoverable("memory", "rename temp file", err)
	}
	return nil
}

// HasChanges 检查记忆相对上次快照是否有变更
func (s *Store) HasChanges(mem *UserMemory) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSnapshot == nil {
		return true
	}
	return !reflect.DeepEqual(mem, s.lastSnapshot)
}

// ShouldSync 检查是否到了同步时间（节流：最多每 syncInterval 一次）
func (s *Store) ShouldSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSync) >= s.syncInterval
}

// MarkSynced 标记已同步并更新快照
func (s *Store) MarkSynced(mem *UserMemory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = time.Now()
	s.lastSnapshot = mem.Clone()
}
