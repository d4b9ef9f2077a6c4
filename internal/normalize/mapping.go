package normalize

import (
	"strings"

	"github.com/tomvane/edgebot/internal/domain"
)

// MarketMapping translates one provider's market vocabulary into the
// canonical enum. The mapping is total: anything absent maps to MarketOther,
// so an unrecognized but present market is preserved rather than dropped.
type MarketMapping map[string]domain.MarketType

// Map resolves a provider market name. Lookup is case-insensitive.
func (m MarketMapping) Map(providerMarket string) domain.MarketType {
	if mt, ok := m[strings.ToLower(strings.TrimSpace(providerMarket))]; ok {
		return mt
	}
	return domain.MarketOther
}

// DefaultMarketMapping covers the vocabulary shared by most odds feeds.
// Per-provider configs extend or override it.
func DefaultMarketMapping() MarketMapping {
	return MarketMapping{
		"moneyline":   domain.MarketMoneyline,
		"h2h":         domain.MarketMoneyline,
		"match_odds":  domain.MarketMoneyline,
		"1x2":         domain.MarketMoneyline,
		"spread":      domain.MarketSpread,
		"handicap":    domain.MarketSpread,
		"run_line":    domain.MarketSpread,
		"puck_line":   domain.MarketSpread,
		"total":       domain.MarketTotal,
		"totals":      domain.MarketTotal,
		"over_under":  domain.MarketTotal,
		"ou":          domain.MarketTotal,
		"prop":        domain.MarketProp,
		"player_prop": domain.MarketProp,
	}
}

// Merge returns a copy of m with overrides applied on top.
func (m MarketMapping) Merge(overrides map[string]string) MarketMapping {
	out := make(MarketMapping, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range overrides {
		out[strings.ToLower(strings.TrimSpace(k))] = domain.MarketType(v)
	}
	return out
}
