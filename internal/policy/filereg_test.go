package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

const policyFileYAML = `
policies:
  - name: alpha
    kind: buy
    priority: 5
    handler: momentum
    created_at: 2026-01-02T00:00:00Z
  - name: beta
    kind: buy
    priority: 10
    handler: momentum
    created_at: 2026-01-03T00:00:00Z
  - name: gamma
    kind: buy
    priority: 10
    handler: momentum
    created_at: 2026-01-01T00:00:00Z
  - name: guard
    kind: sell
    priority: 1
    handler: drawdown_guard
  - name: retired
    kind: buy
    priority: 99
    handler: momentum
    disabled: true
  - name: ""
    kind: buy
    priority: 1
`

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileProvider_ListPoliciesOrdering(t *testing.T) {
	p, err := NewFileProvider(writePolicyFile(t, policyFileYAML))
	require.NoError(t, err)

	recs, err := p.ListPolicies(context.Background(), 0, types.FlowBuy)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// priority 降序，平级按 created_at 升序。
	names := []string{recs[0].Name, recs[1].Name, recs[2].Name}
	assert.Equal(t, []string{"gamma", "beta", "alpha"}, names)
}

func TestFileProvider_KindAndEnabledFiltering(t *testing.T) {
	p, err := NewFileProvider(writePolicyFile(t, policyFileYAML))
	require.NoError(t, err)

	sell, err := p.ListPolicies(context.Background(), 0, types.FlowSell)
	require.NoError(t, err)
	require.Len(t, sell, 1)
	assert.Equal(t, "guard", sell[0].Name)

	buy, err := p.ListPolicies(context.Background(), 0, types.FlowBuy)
	require.NoError(t, err)
	for _, rec := range buy {
		assert.NotEqual(t, "retired", rec.Name)
	}

	_, err = p.ListPolicies(context.Background(), 0, types.Flow("hedge"))
	assert.Error(t, err)
}

func TestFileProvider_ModelScoping(t *testing.T) {
	content := `
policies:
  - name: shared
    kind: buy
    priority: 1
    handler: momentum
  - name: mine
    kind: buy
    priority: 2
    model_id: 7
    handler: momentum
  - name: theirs
    kind: buy
    priority: 3
    model_id: 8
    handler: momentum
`
	p, err := NewFileProvider(writePolicyFile(t, content))
	require.NoError(t, err)

	recs, err := p.ListPolicies(context.Background(), 7, types.FlowBuy)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "mine", recs[0].Name)
	assert.Equal(t, "shared", recs[1].Name)
}

func TestFileProvider_SkipsMalformedEntries(t *testing.T) {
	p, err := NewFileProvider(writePolicyFile(t, policyFileYAML))
	require.NoError(t, err)

	snap := p.Snapshot()
	// 空名称的条目在加载时跳过，其余全部保留。
	assert.Len(t, snap.Records, 5)
	assert.Equal(t, int64(1), snap.Version)
	assert.False(t, snap.LoadedAt.IsZero())
}

func TestFileProvider_MissingCreatedAtIsStable(t *testing.T) {
	content := `
policies:
  - name: first
    kind: buy
    priority: 1
    handler: momentum
  - name: second
    kind: buy
    priority: 1
    handler: momentum
`
	p, err := NewFileProvider(writePolicyFile(t, content))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		recs, err := p.ListPolicies(context.Background(), 0, types.FlowBuy)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "first", recs[0].Name)
		assert.Equal(t, "second", recs[1].Name)
	}
}

func TestSortRecords(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		{Name: "c", Priority: 1, CreatedAt: base},
		{Name: "a", Priority: 9, CreatedAt: base.Add(time.Hour)},
		{Name: "b", Priority: 9, CreatedAt: base},
	}
	SortRecords(recs)
	assert.Equal(t, "b", recs[0].Name)
	assert.Equal(t, "a", recs[1].Name)
	assert.Equal(t, "c", recs[2].Name)
}
