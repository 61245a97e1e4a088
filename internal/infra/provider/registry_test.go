package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-alerts/internal/config"
	"scout-alerts/internal/infra/provider"
)

func TestRegistry_Defaults(t *testing.T) {
	reg := provider.NewRegistry(config.DefaultProvidersConfig(), true)

	assert.Equal(t, []string{
		provider.TypeCourtOpinions,
		provider.TypeFederalBills,
		provider.TypeFederalBillsActivity,
		provider.TypeFeed,
		provider.TypeRegulations,
	}, reg.Types())

	for _, typ := range reg.Types() {
		a, ok := reg.Adapter(typ)
		require.True(t, ok, typ)
		assert.Equal(t, typ, a.Type())
	}

	_, ok := reg.Adapter("state_bills")
	assert.False(t, ok)

	assert.Equal(t, []string{provider.TypeFederalBills, provider.TypeRegulations, provider.TypeCourtOpinions}, reg.SearchTypes())
	assert.NotNil(t, reg.Feed())
}

func TestRegistry_ItemTypes(t *testing.T) {
	reg := provider.NewRegistry(config.DefaultProvidersConfig(), true)

	findType, subs, ok := reg.ItemTypes("bill")
	require.True(t, ok)
	assert.Equal(t, provider.TypeFederalBills, findType)
	assert.Equal(t, []string{provider.TypeFederalBillsActivity}, subs)

	findType, subs, ok = reg.ItemTypes("opinion")
	require.True(t, ok)
	assert.Equal(t, provider.TypeCourtOpinions, findType)
	assert.Empty(t, subs)

	_, _, ok = reg.ItemTypes("amendment")
	assert.False(t, ok)
}

func TestRegistry_Disabled(t *testing.T) {
	cfg := config.DefaultProvidersConfig()
	cfg.Disabled = []string{provider.TypeCourtOpinions, provider.TypeFeed, provider.TypeFederalBillsActivity}

	reg := provider.NewRegistry(cfg, true)

	_, ok := reg.Adapter(provider.TypeCourtOpinions)
	assert.False(t, ok)
	assert.Nil(t, reg.Feed())
	assert.Equal(t, []string{provider.TypeFederalBills, provider.TypeRegulations}, reg.SearchTypes())

	_, _, ok = reg.ItemTypes("opinion")
	assert.False(t, ok, "item types of disabled adapters are unknown")

	findType, subs, ok := reg.ItemTypes("bill")
	require.True(t, ok)
	assert.Equal(t, provider.TypeFederalBills, findType)
	assert.Empty(t, subs)
}
