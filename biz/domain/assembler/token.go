package assembler

import (
	"unicode"

	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken   = 4 // 非CJK字符约4个字符一个token
	messageOverhead = 4 // 每条消息的角色与分隔符开销
)

// EstimateTokens 估算文本的token数, CJK字符按一个token计算, 宁多勿少
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			cjk++
		} else {
			other++
		}
	}
	return cjk + (other+charsPerToken-1)/charsPerToken
}

// EstimateMessages 估算一组消息的token数
func EstimateMessages(msgs []*schema.Message) (n int) {
	for _, m := range msgs {
		n += EstimateTokens(m.Content) + messageOverhead
	}
	return n
}
