package pipeline

import (
	"reflect"
	"testing"
)

// TestSegmenterBasic 测试终结标点分句
func TestSegmenterBasic(t *testing.T) {
	seg := NewSegmenter()

	if got := seg.Push("今天天气"); got != nil {
		t.Errorf("Expected no sentence, got %v", got)
	}
	got := seg.Push("很好。明天")
	if !reflect.DeepEqual(got, []string{"今天天气很好。"}) {
		t.Errorf("Expected ['今天天气很好。'], got %v", got)
	}
	if rem := seg.Flush(); rem != "明天" {
		t.Errorf("Expected remainder '明天', got '%s'", rem)
	}
}

// TestSegmenterMultipleTerminals 一个 token 内多个终结符
func TestSegmenterMultipleTerminals(t *testing.T) {
	seg := NewSegmenter()
	got := seg.Push("你好！吃了吗？嗯。")
	want := []string{"你好！", "吃了吗？", "嗯。"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// TestSegmenterTerminalSet 测试全部终结标点
func TestSegmenterTerminalSet(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"句号", "好。"},
		{"感叹号", "好！"},
		{"问号", "好？"},
		{"分号", "好；"},
		{"换行", "好\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := NewSegmenter()
			got := seg.Push(tt.input)
			if len(got) != 1 {
				t.Fatalf("Expected 1 sentence, got %v", got)
			}
		})
	}
}

// TestSegmenterEmptySentenceDropped 空白句被丢弃
func TestSegmenterEmptySentenceDropped(t *testing.T) {
	seg := NewSegmenter()
	if got := seg.Push("\n"); got != nil {
		t.Errorf("Expected no sentence for bare newline, got %v", got)
	}
}

// TestSegmenterFlushStripsMoodTag flush 时剥离表情标签
func TestSegmenterFlushStripsMoodTag(t *testing.T) {
	seg := NewSegmenter()
	seg.Push("再见")
	seg.Push("[mood:happy]")
	if rem := seg.Flush(); rem != "再见" {
		t.Errorf("Expected '再见', got '%s'", rem)
	}
}

// TestSegmenterFlushEmpty 只剩标签时 flush 为空
func TestSegmenterFlushEmpty(t *testing.T) {
	seg := NewSegmenter()
	seg.Push("[mood:happy]")
	if rem := seg.Flush(); rem != "" {
		t.Errorf("Expected empty remainder, got '%s'", rem)
	}
}
