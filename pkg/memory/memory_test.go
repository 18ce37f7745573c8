package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore("u1", t.TempDir(), 300*time.Second, zap.NewNop())
}

// TestSaveLoadRoundTrip save 后 load 得到等价记忆
func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	mem := NewUserMemory()
	mem.Nickname = "小明"
	mem.Interests = []string{"天文", "乐高"}
	mem.ImportantDates["birthday"] = "06-01"
	mem.InteractionCount = 7
	mem.FirstMet = "2026-08-25"

	require.NoError(t, store.Save(mem))
	got := store.Load()
	assert.Equal(t, mem, got)
}

// TestLoadMissingFile 文件不存在时返回默认记忆
func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t)
	got := store.Load()
	assert.Equal(t, NewUserMemory(), got)
}

// TestLoadCorruptFile 损坏文件回退默认记忆
func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1.json"), []byte("{not json"), 0o644))
	store := NewStore("u1", dir, 300*time.Second, zap.NewNop())
	got := store.Load()
	assert.Equal(t, NewUserMemory(), got)
}

// TestLoadIgnoresUnknownFields 未知字段被忽略
func TestLoadIgnoresUnknownFields(t *testing.T) {
	dir := t.TempDir()
	data := `{"nickname":"小明","future_field":123}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1.json"), []byte(data), 0o644))
	store := NewStore("u1", dir, 300*time.Second, zap.NewNop())
	got := store.Load()
	assert.Equal(t, "小明", got.Nickname)
}

// TestSaveAtomicNoTempLeft 保存成功后不残留临时文件
func TestSaveAtomicNoTempLeft(t *testing.T) {
	dir := t.TempDir()
	store := NewStore("u1", dir, 300*time.Second, zap.NewNop())
	require.NoError(t, store.Save(NewUserMemory()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1.json", entries[0].Name())
}

// TestHasChanges 快照比较
func TestHasChanges(t *testing.T) {
	store := newTestStore(t)
	mem := store.Load()

	// load 后无变更
	assert.False(t, store.HasChanges(mem))

	mem.Nickname = "小明"
	assert.True(t, store.HasChanges(mem))

	store.MarkSynced(mem)
	assert.False(t, store.HasChanges(mem))
}

// TestShouldSyncThrottle 同步节流
func TestShouldSyncThrottle(t *testing.T) {
	store := NewStore("u1", t.TempDir(), time.Hour, zap.NewNop())
	mem := NewUserMemory()

	// 从未同步过，允许
	assert.True(t, store.ShouldSync())

	store.MarkSynced(mem)
	assert.False(t, store.ShouldSync())
}

// TestConcurrentSave 并发保存不损坏文件
func TestConcurrentSave(t *testing.T) {
	dir := t.TempDir()
	store := NewStore("u1", dir, 300*time.Second, zap.NewNop())

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			mem := NewUserMemory()
			mem.InteractionCount = n
			_ = store.Save(mem)
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	got := store.Load()
	assert.GreaterOrEqual(t, got.InteractionCount, 0)
	assert.Less(t, got.InteractionCount, 8)
}
