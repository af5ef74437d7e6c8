package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		name   string
		status string
		ev     Event
		turns  int64
		want   string
	}{
		{"first user turn stays active", cst.StatusActive, EventUserTurn, 0, cst.StatusActive},
		{"second user turn starts progress", cst.StatusActive, EventUserTurn, 1, cst.StatusInProgress},
		{"in progress stays", cst.StatusInProgress, EventUserTurn, 5, cst.StatusInProgress},
		{"user turn reactivates", cst.StatusArchived, EventUserTurn, 7, cst.StatusActive},
		{"idle archives active", cst.StatusActive, EventIdle, 0, cst.StatusArchived},
		{"idle archives in progress", cst.StatusInProgress, EventIdle, 3, cst.StatusArchived},
		{"close archives", cst.StatusInProgress, EventClose, 3, cst.StatusArchived},
		{"resume archived", cst.StatusArchived, EventResume, 0, cst.StatusActive},
		{"resume live is noop", cst.StatusInProgress, EventResume, 2, cst.StatusInProgress},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Transition(c.status, c.ev, c.turns))
		})
	}
}

func TestIsIdle(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := &conversation.Conversation{Status: cst.StatusActive, LastActivityAt: now.Add(-15 * time.Minute)}
	assert.False(t, IsIdle(c, now, 15*time.Minute))

	c.LastActivityAt = now.Add(-15*time.Minute - time.Millisecond)
	assert.True(t, IsIdle(c, now, 15*time.Minute))

	c.Status, c.Archived = cst.StatusArchived, true
	assert.False(t, IsIdle(c, now, 15*time.Minute))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "I need help with anxiety", Title("  I need   help\nwith anxiety ", 60))
	assert.Equal(t, "我最近", Title("我最近睡不好", 3))
	assert.Equal(t, "abc", Title("abc", 0))
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(cst.StatusInProgress))
	assert.False(t, ValidStatus("closed"))
	assert.False(t, ValidStatus(""))
}
