package emotion

import "testing"

// TestExtractLastTagWins 测试多个标签时取最后一个
func TestExtractLastTagWins(t *testing.T) {
	mood, cleaned := Extract("[mood:sad]开始[mood:angry]中间[mood:happy]结尾")
	if mood != "happy" {
		t.Errorf("Expected mood 'happy', got '%s'", mood)
	}
	if cleaned != "开始中间结尾" {
		t.Errorf("Expected '开始中间结尾', got '%s'", cleaned)
	}
}

// TestExtract 测试标签提取与清洗
func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		mood    string
		cleaned string
	}{
		{"末尾标签", "你好！[mood:happy]", "happy", "你好！"},
		{"无标签", "你好", "neutral", "你好"},
		{"未知表情", "你好[mood:confused]", "neutral", "你好"},
		{"空输入", "", "neutral", ""},
		{"只有标签", "[mood:sleepy]", "sleepy", ""},
		{"冒号后带空格不识别", "你好[mood: happy]", "neutral", "你好[mood: happy]"},
		{"标签后有空白", "  你好 [mood:tsundere]  ", "tsundere", "你好"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mood, cleaned := Extract(tt.input)
			if mood != tt.mood {
				t.Errorf("Expected mood '%s', got '%s'", tt.mood, mood)
			}
			if cleaned != tt.cleaned {
				t.Errorf("Expected cleaned '%s', got '%s'", tt.cleaned, cleaned)
			}
		})
	}
}

// TestExtractLastMatchInvalid 最后一个标签非法时回退 neutral
func TestExtractLastMatchInvalid(t *testing.T) {
	mood, cleaned := Extract("[mood:happy]你好[mood:unknown]")
	if mood != "neutral" {
		t.Errorf("Expected mood 'neutral', got '%s'", mood)
	}
	if cleaned != "你好" {
		t.Errorf("Expected '你好', got '%s'", cleaned)
	}
}

// TestStrip 测试仅剥离标签
func TestStrip(t *testing.T) {
	if got := Strip("这句话[mood:happy]有标签。"); got != "这句话有标签。" {
		t.Errorf("Expected '这句话有标签。', got '%s'", got)
	}
}
