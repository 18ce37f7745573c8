package emotion

import (
	"regexp"
	"strings"
)

// MoodNeutral 默认表情
const MoodNeutral = "neutral"

// moodTagRe 匹配 [mood:word]，冒号后不允许空格
var moodTagRe = regexp.MustCompile(`\[mood:(\w+)\]`)

// validMoods LLM 可输出的表情集合
var validMoods = map[string]struct{}{
	"happy":     {},
	"sad":       {},
	"thinking":  {},
	"angry":     {},
	"sleepy":    {},
	"surprised": {},
	"tsundere":  {},
	MoodNeutral: {},
}

// IsValidMood reports whether mood is in the LLM-emitted mood set.
func IsValidMood(mood string) bool {
	_, ok := validMoods[mood]
	return ok
}

// Extract 提取最后一个表情标签并剥离全部标签。
// 最后一个标签的表情不在合法集合内时回退 neutral。
func Extract(text string) (mood, cleaned string) {
	mood = MoodNeutral
	matches := moodTagRe.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		if last := matches[len(matches)-1][1]; IsValidMood(last) {
			mood = last
		}
	}
	cleaned = strings.TrimSpace(moodTagRe.ReplaceAllString(text, ""))
	return mood, cleaned
}

// Strip 仅剥离表情标签，用于逐句合成前的清洗。
func Strip(text string) string {
	return strings.TrimSpace(moodTagRe.ReplaceAllString(text, ""))
}
