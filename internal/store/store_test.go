package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/policy"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "policies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveAndListOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	recs := []policy.Record{
		{Name: "alpha", ModelID: 1, Kind: types.FlowBuy, Priority: 5, Handler: "momentum", CreatedAt: base.Add(2 * time.Hour), Enabled: true},
		{Name: "beta", ModelID: 1, Kind: types.FlowBuy, Priority: 10, Handler: "momentum", CreatedAt: base.Add(time.Hour), Enabled: true},
		{Name: "gamma", ModelID: 1, Kind: types.FlowBuy, Priority: 10, Handler: "momentum", CreatedAt: base, Enabled: true},
		{Name: "guard", ModelID: 1, Kind: types.FlowSell, Priority: 1, Handler: "drawdown_guard", CreatedAt: base, Enabled: true},
		{Name: "other-model", ModelID: 2, Kind: types.FlowBuy, Priority: 99, Handler: "momentum", CreatedAt: base, Enabled: true},
	}
	for _, rec := range recs {
		require.NoError(t, s.SavePolicy(ctx, rec))
	}

	out, err := s.ListPolicies(ctx, 1, types.FlowBuy)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "gamma", out[0].Name)
	assert.Equal(t, "beta", out[1].Name)
	assert.Equal(t, "alpha", out[2].Name)
}

func TestStore_SaveUpsertPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := policy.Record{
		Name: "alpha", ModelID: 1, Kind: types.FlowBuy, Priority: 5,
		Handler: "momentum", CreatedAt: base, Enabled: true,
		Params: map[string]any{"ema_period": 21.0},
	}
	require.NoError(t, s.SavePolicy(ctx, rec))

	rec.Priority = 8
	rec.Params = map[string]any{"ema_period": 34.0}
	rec.CreatedAt = base.Add(48 * time.Hour)
	require.NoError(t, s.SavePolicy(ctx, rec))

	out, err := s.ListPolicies(ctx, 1, types.FlowBuy)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 8, out[0].Priority)
	assert.Equal(t, base.Unix(), out[0].CreatedAt.Unix())
	assert.InDelta(t, 34.0, out[0].Params["ema_period"].(float64), 1e-9)
}

func TestStore_SetEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := policy.Record{Name: "alpha", ModelID: 1, Kind: types.FlowBuy, Priority: 5, Handler: "momentum", Enabled: true}
	require.NoError(t, s.SavePolicy(ctx, rec))

	require.NoError(t, s.SetEnabled(ctx, 1, "alpha", false))
	out, err := s.ListPolicies(ctx, 1, types.FlowBuy)
	require.NoError(t, err)
	assert.Empty(t, out)

	require.NoError(t, s.SetEnabled(ctx, 1, "alpha", true))
	out, err = s.ListPolicies(ctx, 1, types.FlowBuy)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	err = s.SetEnabled(ctx, 1, "ghost", true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStore_DeletePolicy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePolicy(ctx, policy.Record{Name: "alpha", ModelID: 1, Kind: types.FlowBuy, Handler: "momentum", Enabled: true}))
	require.NoError(t, s.DeletePolicy(ctx, 1, "alpha"))

	out, err := s.ListPolicies(ctx, 1, types.FlowBuy)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStore_ValidationErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.SavePolicy(ctx, policy.Record{Name: "", Kind: types.FlowBuy}))
	assert.Error(t, s.SavePolicy(ctx, policy.Record{Name: "x", Kind: types.Flow("hedge")}))

	_, err := s.ListPolicies(ctx, 1, types.Flow("hedge"))
	assert.Error(t, err)

	var nilStore *Store
	_, err = nilStore.ListPolicies(ctx, 1, types.FlowBuy)
	assert.Error(t, err)
}

func TestStore_RuleSourceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	source := "rules:\n  - flow: buy\n    signal: buy_to_long\n    quantity: 1\n"
	require.NoError(t, s.SavePolicy(ctx, policy.Record{
		Name: "dip", ModelID: 1, Kind: types.FlowBuy, Source: source, Enabled: true,
	}))

	out, err := s.ListPolicies(ctx, 1, types.FlowBuy)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, source, out[0].Source)

	inst, err := policy.CompileRule(out[0])
	require.NoError(t, err)
	assert.Equal(t, types.FlowBuy, inst.Flow())
}
