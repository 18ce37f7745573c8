package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/code-100-precent/wallace/pkg/emotion"
)

// sentenceTerminals 分句标点
const sentenceTerminals = "。！？；\n"

// Segmenter 增量分句器。
// 逐 token 喂入 LLM 输出，遇到终结标点即产出完整句子，供逐句 TTS 使用。
type Segmenter struct {
	buf string
}

// NewSegmenter create segmenter
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Push 追加一个 token，返回本次完成的句子（含终结标点，已去首尾空白）
func (s *Segmenter) Push(token string) []string {
	s.buf += token
	var sentences []string
	for {
		idx := strings.IndexAny(s.buf, sentenceTerminals)
		if idx < 0 {
			break
		}
		_, size := utf8.DecodeRuneInString(s.buf[idx:])
		sentence := strings.TrimSpace(s.buf[:idx+size])
		s.buf = s.buf[idx+size:]
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
	}
	return sentences
}

// Flush 流结束时取出剩余文本（剥离表情标签后），无剩余返回空串
func (s *Segmenter) Flush() string {
	remaining := emotion.Strip(s.buf)
	s.buf = ""
	return remaining
}
