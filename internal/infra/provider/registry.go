package provider

import (
	"log/slog"
	"sort"

	"scout-alerts/internal/config"
	"scout-alerts/internal/usecase/poll"
)

// itemType describes an item kind that users can follow directly.
type itemType struct {
	findType          string
	subscriptionTypes []string
}

// itemTypes maps item types to the adapter that looks them up and the
// subscriptions created for an item interest.
var itemTypes = map[string]itemType{
	"bill":       {findType: TypeFederalBills, subscriptionTypes: []string{TypeFederalBillsActivity}},
	"regulation": {findType: TypeRegulations},
	"opinion":    {findType: TypeCourtOpinions},
}

// searchTypes are the adapters a search interest of type "all" subscribes to.
var searchTypes = []string{TypeFederalBills, TypeRegulations, TypeCourtOpinions}

// Registry is the closed set of provider adapters. It is built once at
// startup and read-only afterwards.
type Registry struct {
	adapters map[string]poll.Adapter
	feed     *Feed
}

// NewRegistry builds every adapter from cfg, leaving out the disabled ones.
//
// Parameters:
//   - cfg: provider endpoints, credential env names and feed limits
//   - denyPrivateIPs: reject feed URLs on private networks (false only in tests)
//
// Example:
//
//	reg := provider.NewRegistry(providersCfg, true)
//	adapter, ok := reg.Adapter(provider.TypeFederalBills)
func NewRegistry(cfg *config.ProvidersConfig, denyPrivateIPs bool) *Registry {
	if cfg == nil {
		cfg = config.DefaultProvidersConfig()
	}
	apiKey := cfg.CongressAPIKey()
	username, password := cfg.CourtListenerCredentials()
	congress := cfg.Providers.Congress.Endpoint

	r := &Registry{adapters: make(map[string]poll.Adapter)}
	r.feed = NewFeed(cfg.Providers.Feed.Timeout, cfg.Providers.Feed.MaxBodySize, denyPrivateIPs)

	all := []poll.Adapter{
		NewFederalBills(congress, apiKey),
		NewFederalBillsActivity(congress, apiKey),
		NewRegulations(congress, apiKey, nil),
		NewCourtOpinions(cfg.Providers.CourtListener.Endpoint, username, password),
		r.feed,
	}
	for _, a := range all {
		if cfg.IsDisabled(a.Type()) {
			slog.Info("provider disabled", slog.String("subscription_type", a.Type()))
			continue
		}
		r.adapters[a.Type()] = a
	}
	if apiKey == "" {
		slog.Warn("congress api key not set, bill and regulation polls will be rejected upstream")
	}
	return r
}

var _ poll.Registry = (*Registry)(nil)

// Adapter implements poll.Registry.
func (r *Registry) Adapter(subscriptionType string) (poll.Adapter, bool) {
	a, ok := r.adapters[subscriptionType]
	return a, ok
}

// SearchTypes implements poll.Registry. Disabled adapters are omitted.
func (r *Registry) SearchTypes() []string {
	types := make([]string, 0, len(searchTypes))
	for _, t := range searchTypes {
		if _, ok := r.adapters[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// ItemTypes implements poll.Registry.
func (r *Registry) ItemTypes(name string) (string, []string, bool) {
	it, ok := itemTypes[name]
	if !ok {
		return "", nil, false
	}
	if _, enabled := r.adapters[it.findType]; !enabled {
		return "", nil, false
	}
	subs := make([]string, 0, len(it.subscriptionTypes))
	for _, t := range it.subscriptionTypes {
		if _, enabled := r.adapters[t]; enabled {
			subs = append(subs, t)
		}
	}
	return it.findType, subs, true
}

// Types lists every enabled subscription type in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Feed returns the feed adapter, or nil when feeds are disabled.
func (r *Registry) Feed() *Feed {
	if _, ok := r.adapters[TypeFeed]; !ok {
		return nil
	}
	return r.feed
}
