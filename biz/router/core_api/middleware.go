// Code generated by hertz generator.

package core_api

import (
	"github.com/cloudwego/hertz/pkg/app"
)

func rootMw() []app.HandlerFunc {
	return nil
}

func _adminMw() []app.HandlerFunc {
	return nil
}

func _sweepMw() []app.HandlerFunc {
	return nil
}

func _conversationMw() []app.HandlerFunc {
	return nil
}

func _startconversationMw() []app.HandlerFunc {
	return nil
}

func _chatMw() []app.HandlerFunc {
	return nil
}

func _listconversationMw() []app.HandlerFunc {
	return nil
}

func _getconversationMw() []app.HandlerFunc {
	return nil
}

func _resumeconversationMw() []app.HandlerFunc {
	return nil
}

func _archiveconversationMw() []app.HandlerFunc {
	return nil
}

func _userMw() []app.HandlerFunc {
	return nil
}

func _inactivitystatusMw() []app.HandlerFunc {
	return nil
}

func _summarizeinactiveMw() []app.HandlerFunc {
	return nil
}
