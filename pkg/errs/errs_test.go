package errs

import (
	"errors"
	"fmt"
	"testing"
)

// TestClassifyKeywords 裸错误按消息关键词归类
func TestClassifyKeywords(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"超时", errors.New("request timeout"), ErrorTypeTransient},
		{"连接拒绝", errors.New("dial tcp: connection refused"), ErrorTypeTransient},
		{"限流", errors.New("429 too many requests"), ErrorTypeTransient},
		{"鉴权失败", errors.New("401 unauthorized"), ErrorTypeFatal},
		{"密钥失效", errors.New("api key invalid"), ErrorTypeFatal},
		{"未知错误", errors.New("something odd"), ErrorTypeRecoverable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "llm")
			if got.Type != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.Type)
			}
			if got.Service != "llm" {
				t.Errorf("Expected service llm, got %s", got.Service)
			}
		})
	}
}

// TestClassifyKeepsTypedError 已归类的错误原样返回
func TestClassifyKeepsTypedError(t *testing.T) {
	orig := NewTransient("asr", "transcribe", errors.New("boom"))
	got := Classify(orig, "other")
	if got != orig {
		t.Fatal("Expected typed error returned unchanged")
	}

	wrapped := fmt.Errorf("pipeline: %w", orig)
	got = Classify(wrapped, "other")
	if got != orig {
		t.Fatal("Expected wrapped typed error unwrapped to the original")
	}
}

// TestClassifyNil nil 输入返回 nil
func TestClassifyNil(t *testing.T) {
	if Classify(nil, "llm") != nil {
		t.Fatal("Expected nil for nil error")
	}
}

// TestIsFatalIsTransient 类型判定
func TestIsFatalIsTransient(t *testing.T) {
	if !IsFatal(NewFatal("llm", "auth", nil)) {
		t.Error("Expected typed fatal detected")
	}
	if IsFatal(NewTransient("llm", "net", nil)) {
		t.Error("Expected transient not fatal")
	}
	if !IsTransient(errors.New("service unavailable")) {
		t.Error("Expected keyword transient detected")
	}
	if IsFatal(nil) || IsTransient(nil) {
		t.Error("Expected nil to match nothing")
	}
}
