package registry

import (
	"time"

	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
)

// Event 驱动对话状态变化的事件
type Event int

const (
	// EventUserTurn 用户发送了一条消息
	EventUserTurn Event = iota
	// EventIdle 对话超过不活跃阈值
	EventIdle
	// EventResume 用户显式恢复对话
	EventResume
	// EventClose 用户显式结束对话
	EventClose
)

// inProgressAfter 创建或重新激活后第几条用户消息进入in-progress
const inProgressAfter = 2

// Transition 计算事件发生后的状态, activeUserTurns为事件发生前的用户消息数
func Transition(status string, ev Event, activeUserTurns int64) string {
	switch ev {
	case EventUserTurn:
		switch status {
		case cst.StatusArchived:
			return cst.StatusActive
		case cst.StatusActive:
			if activeUserTurns+1 >= inProgressAfter {
				return cst.StatusInProgress
			}
		}
	case EventIdle, EventClose:
		return cst.StatusArchived
	case EventResume:
		if status == cst.StatusArchived {
			return cst.StatusActive
		}
	}
	return status
}

// IsIdle 对话是否已经超过不活跃阈值, 已归档的对话不再计算
func IsIdle(c *conversation.Conversation, now time.Time, threshold time.Duration) bool {
	return !c.IsArchived() && now.Sub(c.LastActivityAt) > threshold
}

// ValidStatus 判断是否为合法的对话状态
func ValidStatus(status string) bool {
	switch status {
	case cst.StatusActive, cst.StatusInProgress, cst.StatusArchived:
		return true
	}
	return false
}
