package turn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func turns(n int) []*Turn {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*Turn, n)
	for i := range out {
		out[i] = &Turn{Index: int64(i), CreateTime: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func indexes(ts []*Turn) (out []int64) {
	for _, t := range ts {
		out = append(out, t.Index)
	}
	return out
}

func TestFilter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		opt  *ListOption
		want []int64
	}{
		{"nil", nil, []int64{0, 1, 2, 3, 4, 5}},
		{"range", &ListOption{From: 2, To: 5}, []int64{2, 3, 4}},
		{"before", &ListOption{Before: base.Add(2 * time.Second)}, []int64{0, 1}},
		{"limit", &ListOption{Limit: 2}, []int64{0, 1}},
		{"newest", &ListOption{From: 1, Newest: true, Limit: 3}, []int64{5, 4, 3}},
		{"empty", &ListOption{From: 10}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, indexes(c.opt.Filter(turns(6))))
		})
	}
}

func TestText(t *testing.T) {
	var nilTurn *Turn
	assert.Equal(t, "", nilTurn.Text())
	assert.Equal(t, "", (&Turn{}).Text())
	assert.Equal(t, "hi", (&Turn{Content: &Content{Text: "hi"}}).Text())
}
