package assembler

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 4, EstimateTokens("我很焦虑"))
	assert.Equal(t, 3, EstimateTokens("焦虑 ok"))
}

func TestEstimateMessages(t *testing.T) {
	msgs := []*schema.Message{schema.UserMessage("abcd"), schema.AssistantMessage("你好", nil)}
	assert.Equal(t, 1+messageOverhead+2+messageOverhead, EstimateMessages(msgs))
	assert.Equal(t, 0, EstimateMessages(nil))
}

func TestTrimDropsOldest(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("oldest message here"),
		schema.AssistantMessage("middle", nil),
		schema.UserMessage("newest"),
	}
	all := EstimateMessages(msgs)
	assert.Len(t, trim(msgs, all), 3)

	kept := trim(msgs, EstimateMessages(msgs[1:]))
	assert.Equal(t, []string{"middle", "newest"}, []string{kept[0].Content, kept[1].Content})
	assert.Empty(t, trim(msgs, 0))
}
