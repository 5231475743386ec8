package domain

import (
	"fmt"
	"strings"
)

type Intent string

const (
	IntentQuery     Intent = "QUERY"
	IntentSummarize Intent = "SUMMARIZE"
	IntentCompare   Intent = "COMPARE"
	IntentTimeline  Intent = "TIMELINE"
	IntentAggregate Intent = "AGGREGATE"

	DefaultIntent = IntentQuery
)

func Intents() []Intent {
	return []Intent{IntentQuery, IntentSummarize, IntentCompare, IntentTimeline, IntentAggregate}
}

// ParseIntent accepts a label from the closed set, tolerating case, whitespace
// and trailing punctuation.
func ParseIntent(raw string) (Intent, bool) {
	label := strings.ToUpper(strings.TrimSpace(raw))
	label = strings.Trim(label, " .,:;!\"'`*")
	for _, intent := range Intents() {
		if label == string(intent) {
			return intent, true
		}
	}
	return "", false
}

type SpecialistID string

const (
	SpecialistRAG        SpecialistID = "RAG"
	SpecialistComparator SpecialistID = "Comparator"
	SpecialistTimeline   SpecialistID = "TimelineBuilder"
	SpecialistAggregator SpecialistID = "Aggregator"
	SpecialistSummarizer SpecialistID = "Summarizer"
)

var chains = map[Intent][]SpecialistID{
	IntentQuery:     {SpecialistRAG},
	IntentCompare:   {SpecialistRAG, SpecialistComparator},
	IntentSummarize: {SpecialistSummarizer},
	IntentTimeline:  {SpecialistRAG, SpecialistTimeline},
	IntentAggregate: {SpecialistRAG, SpecialistAggregator},
}

// ChainFor returns a copy of the fixed specialist chain for intent.
func ChainFor(intent Intent) []SpecialistID {
	chain, ok := chains[intent]
	if !ok {
		chain = chains[DefaultIntent]
	}
	out := make([]SpecialistID, len(chain))
	copy(out, chain)
	return out
}

// RouteState is the planner state for one turn.
type RouteState string

const (
	RouteUnassigned RouteState = "UNASSIGNED"
	RouteRouted     RouteState = "ROUTED"
)

// Route tracks one turn through UNASSIGNED -> <intent> -> ROUTED.
type Route struct {
	state  RouteState
	intent Intent
}

func NewRoute() *Route {
	return &Route{state: RouteUnassigned}
}

func (r *Route) State() RouteState {
	return r.state
}

func (r *Route) Intent() Intent {
	return r.intent
}

func (r *Route) Assign(intent Intent) error {
	if r.state != RouteUnassigned {
		return fmt.Errorf("assign intent %s: route already in state %s", intent, r.state)
	}
	if _, ok := chains[intent]; !ok {
		return fmt.Errorf("assign intent %q: unknown intent", intent)
	}
	r.intent = intent
	r.state = RouteState(intent)
	return nil
}

func (r *Route) Complete() error {
	if r.state == RouteUnassigned || r.state == RouteRouted {
		return fmt.Errorf("complete route: invalid state %s", r.state)
	}
	r.state = RouteRouted
	return nil
}
