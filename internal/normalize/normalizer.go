package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
	"github.com/tomvane/edgebot/internal/provider"
)

// Batch is the normalized output of one payload: the events it mentioned and
// the quotes it carried.
type Batch struct {
	Events []domain.SportEvent
	Quotes []domain.OddsQuote
}

// Normalizer converts one provider's raw payloads into canonical form. A
// normalizer is a pure function of its input; it holds no mutable state.
type Normalizer interface {
	Provider() string
	Normalize(p provider.Payload) (Batch, error)
}

// ---------------------------------------------------------------------------
// JSON feed normalizer
// ---------------------------------------------------------------------------

// feedDocument is the wire shape of the JSON odds feeds the built-in
// providers speak.
type feedDocument struct {
	Events []feedEvent `json:"events"`
}

type feedEvent struct {
	ID           string            `json:"id"`
	Sport        string            `json:"sport"`
	Start        time.Time         `json:"start"`
	Status       string            `json:"status"`
	Participants []feedParticipant `json:"participants"`
	Markets      []feedMarket      `json:"markets"`
	Meta         map[string]string `json:"meta"`
}

type feedParticipant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type feedMarket struct {
	Type       string          `json:"type"`
	Selections []feedSelection `json:"selections"`
}

type feedSelection struct {
	Name  string `json:"name"`
	Price feedPrice `json:"price"`
}

type feedPrice struct {
	Format string `json:"format"`
	Value  string `json:"value"`
}

// statusMap translates feed status strings; unknown statuses default to
// scheduled so a quote is never dropped over a status label.
var statusMap = map[string]domain.EventStatus{
	"scheduled": domain.EventScheduled,
	"upcoming":  domain.EventScheduled,
	"live":      domain.EventLive,
	"inplay":    domain.EventLive,
	"completed": domain.EventCompleted,
	"finished":  domain.EventCompleted,
	"cancelled": domain.EventCancelled,
	"canceled":  domain.EventCancelled,
	"abandoned": domain.EventCancelled,
}

// JSONFeedNormalizer handles the shared JSON feed shape, parameterized by
// provider name and market mapping. One instance per configured provider.
type JSONFeedNormalizer struct {
	provider string
	markets  MarketMapping
}

// NewJSONFeed creates a normalizer for one provider.
func NewJSONFeed(providerName string, markets MarketMapping) *JSONFeedNormalizer {
	if markets == nil {
		markets = DefaultMarketMapping()
	}
	return &JSONFeedNormalizer{provider: providerName, markets: markets}
}

// Provider returns the provider tag this normalizer serves.
func (n *JSONFeedNormalizer) Provider() string { return n.provider }

// Normalize parses one payload. It fails with NormalizationError only on
// structural problems (bad JSON, missing event ID, unparsable odds); unknown
// market names map to Other and unknown statuses to Scheduled.
func (n *JSONFeedNormalizer) Normalize(p provider.Payload) (Batch, error) {
	var doc feedDocument
	if err := json.Unmarshal(p.Body, &doc); err != nil {
		return Batch{}, &domain.NormalizationError{Provider: n.provider, Field: "body", Err: err}
	}

	var out Batch
	for _, ev := range doc.Events {
		if ev.ID == "" {
			return Batch{}, &domain.NormalizationError{Provider: n.provider, Field: "events[].id", Err: fmt.Errorf("missing")}
		}
		if ev.Sport == "" {
			return Batch{}, &domain.NormalizationError{Provider: n.provider, Field: "events[].sport", Err: fmt.Errorf("missing")}
		}

		status, ok := statusMap[ev.Status]
		if !ok {
			status = domain.EventScheduled
		}

		event := domain.SportEvent{
			ID:        ev.ID,
			Sport:     ev.Sport,
			StartTime: ev.Start.UTC(),
			Status:    status,
			Metadata:  ev.Meta,
		}
		for _, pt := range ev.Participants {
			event.Participants = append(event.Participants, domain.Participant{
				ID: pt.ID, Name: pt.Name, Role: pt.Role,
			})
		}
		out.Events = append(out.Events, event)

		for _, mkt := range ev.Markets {
			marketType := n.markets.Map(mkt.Type)
			for _, sel := range mkt.Selections {
				if sel.Name == "" {
					return Batch{}, &domain.NormalizationError{Provider: n.provider, Field: "selections[].name", Err: fmt.Errorf("missing")}
				}
				odds, err := ParseOdds(OddsFormat(sel.Price.Format), sel.Price.Value)
				if err != nil {
					return Batch{}, &domain.NormalizationError{Provider: n.provider, Field: "selections[].price", Err: err}
				}
				quote := domain.OddsQuote{
					EventID:    ev.ID,
					Provider:   n.provider,
					Market:     marketType,
					Selection:  sel.Name,
					Odds:       odds,
					CapturedAt: p.ReceivedAt,
					Metadata:   map[string]string{"source_market": mkt.Type},
				}
				quote.ID = quoteID(quote)
				out.Quotes = append(out.Quotes, quote)
			}
		}
	}
	return out, nil
}

// quoteID derives a stable quote identifier from the reading itself, so the
// same reading normalized twice yields the same quote, not a duplicate.
func quoteID(q domain.OddsQuote) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d",
		q.EventID, q.Provider, q.Market, q.Selection, q.Odds.String(), q.CapturedAt.UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:24]
}
