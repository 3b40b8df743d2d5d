package console

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/scope"
	"github.com/harunnryd/gmvctl/internal/strategy"
)

func TestRenderer_NoticeCarriesMessage(t *testing.T) {
	r := NewRenderer()

	for _, tone := range []feedback.Tone{feedback.Info, feedback.Success, feedback.Warning, feedback.Error} {
		out := r.Notice(feedback.Notice{Tone: tone, Message: "同步任务完成"})
		assert.Contains(t, out, "同步任务完成")
	}
}

func TestRenderer_EmptyCollections(t *testing.T) {
	r := NewRenderer()

	assert.Equal(t, "No bindings found", r.Bindings(nil))
	assert.Equal(t, "No policies found", r.Policies(api.Page[api.Policy]{}))
	assert.Equal(t, "No metrics in range", r.MetricsSummary(nil, "date"))
	assert.Contains(t, r.Products(api.ProductPage{Total: 7}), "7 total")
}

func TestRenderer_ScopeShowsDashForUnset(t *testing.T) {
	r := NewRenderer()
	out := r.Scope(scope.Selection{AuthID: "auth-1"})
	assert.Contains(t, out, "auth-1")
	assert.Contains(t, out, "-")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "longern...", truncate("longernamevalue", 10))
}

func TestRenderer_MetricsSummarySortsGroups(t *testing.T) {
	r := NewRenderer()
	out := r.MetricsSummary(map[string]strategy.Summary{
		"row-b": {Rows: 1, Spend: 10},
		"row-a": {Rows: 2, Spend: 20},
	}, "creative")

	assert.Less(t, strings.Index(out, "row-a"), strings.Index(out, "row-b"))
}
