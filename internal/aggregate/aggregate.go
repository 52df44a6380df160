// Package aggregate derives one Entity from each finalized cluster:
// classification, PEP flag, confidence, risk, and resolved representative
// field values. All keyword policies are injected configuration, so runs
// with different policy sets are reproducible in isolation.
package aggregate

import (
	"math"
	"strings"

	"github.com/sells-group/resolver-cli/internal/cluster"
	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
	"github.com/sells-group/resolver-cli/internal/similarity"
)

// Aggregator builds entities from clusters.
type Aggregator struct {
	scorer     *similarity.Scorer
	keywords   config.KeywordsConfig
	confidence config.ConfidenceConfig
	risk       config.RiskConfig
}

// New creates an Aggregator from validated config.
func New(scorer *similarity.Scorer, rc config.ResolutionConfig) *Aggregator {
	return &Aggregator{
		scorer:     scorer,
		keywords:   rc.Keywords,
		confidence: rc.Confidence,
		risk:       rc.Risk,
	}
}

// Entity aggregates one cluster into an Entity. Members are visited in the
// cluster's formation order; every derived value is a pure function of the
// member set plus the declared tie-breaks.
func (a *Aggregator) Entity(entityID string, cl cluster.Cluster, records []model.PreprocessedRecord) model.Entity {
	members := make([]*model.PreprocessedRecord, len(cl.Members))
	for k, idx := range cl.Members {
		members[k] = &records[idx]
	}

	e := model.Entity{
		EntityID:    entityID,
		RecordCount: len(members),
		Type:        a.entityType(members),
		PEPFlag:     a.pepFlag(members),
		Confidence:  a.confidenceScore(members),
		RiskScore:   a.riskScore(members),
	}

	for _, m := range members {
		e.PartyIDs = append(e.PartyIDs, m.PartyID)
	}

	e.ResolvedName = longestRaw(members, func(r *model.PartyRecord) string { return r.Name })
	e.ResolvedEmail = firstRaw(members, func(r *model.PartyRecord) string { return r.Email })
	e.ResolvedPhone = firstRaw(members, func(r *model.PartyRecord) string { return r.Phone })
	e.ResolvedAddress = longestRaw(members, func(r *model.PartyRecord) string { return r.Address })
	e.ResolvedCountry = firstRaw(members, func(r *model.PartyRecord) string { return r.Country })

	seen := make(map[model.SourceSystem]bool)
	for _, m := range members {
		if !seen[m.Source] {
			seen[m.Source] = true
			e.Sources = append(e.Sources, m.Source)
		}
	}

	return e
}

// entityType classifies the cluster as business when any member's name
// carries a business-indicator token; otherwise falls back to a single-token
// name heuristic over the majority of members.
func (a *Aggregator) entityType(members []*model.PreprocessedRecord) model.EntityType {
	for _, m := range members {
		if hasKeywordToken(m.NameKey, a.keywords.Business) {
			return model.EntityBusiness
		}
	}

	singleToken := 0
	for _, m := range members {
		if m.NameKey.Present && !strings.Contains(m.NameKey.Value, " ") {
			singleToken++
		}
	}
	if singleToken*2 > len(members) {
		return model.EntityBusiness
	}
	return model.EntityIndividual
}

func (a *Aggregator) pepFlag(members []*model.PreprocessedRecord) bool {
	for _, m := range members {
		if hasKeywordToken(m.NameKey, a.keywords.PEP) {
			return true
		}
	}
	return false
}

// confidenceScore: a single-record cluster gets the configured baseline; a
// multi-record cluster gets the mean pairwise similarity plus a capped
// linear size boost (monotonic in cluster size, never above 1.0).
func (a *Aggregator) confidenceScore(members []*model.PreprocessedRecord) float64 {
	if len(members) == 1 {
		return a.confidence.SingleRecordBaseline
	}

	var sum float64
	var pairs int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			s, _ := a.scorer.Score(members[i], members[j])
			sum += s
			pairs++
		}
	}

	mean := sum / float64(pairs)
	boost := math.Min(float64(len(members))*a.confidence.SizeBoostPerRecord, a.confidence.SizeBoostCap)
	return math.Min(mean+boost, 1.0)
}

// riskScore: baseline plus configured increments for wide clusters and for
// suspicious-pattern tokens in any member's name or email. Never negative.
func (a *Aggregator) riskScore(members []*model.PreprocessedRecord) float64 {
	score := a.risk.Baseline

	if len(members) >= a.risk.MultiRecordThreshold {
		score += a.risk.MultiRecordIncrement
	}

	suspicious := false
	for _, m := range members {
		name := strings.ToLower(m.Raw.Name)
		email := strings.ToLower(m.Raw.Email)
		for _, kw := range a.keywords.Suspicious {
			if kw == "" {
				continue
			}
			if strings.Contains(name, kw) || strings.Contains(email, kw) {
				suspicious = true
				break
			}
		}
		if suspicious {
			break
		}
	}
	if suspicious {
		score += a.risk.SuspiciousIncrement
	}

	return math.Max(score, 0)
}

// hasKeywordToken reports whether any token of the normalized name equals
// one of the keywords.
func hasKeywordToken(name model.Field, keywords []string) bool {
	if !name.Present || len(keywords) == 0 {
		return false
	}
	for _, tok := range strings.Fields(name.Value) {
		for _, kw := range keywords {
			if tok == kw {
				return true
			}
		}
	}
	return false
}

// longestRaw returns the longest non-empty raw value, preferring the earlier
// member on ties.
func longestRaw(members []*model.PreprocessedRecord, get func(*model.PartyRecord) string) string {
	best := ""
	for _, m := range members {
		if v := get(m.Raw); len(v) > len(best) {
			best = v
		}
	}
	return best
}

// firstRaw returns the first non-empty raw value in member order.
func firstRaw(members []*model.PreprocessedRecord, get func(*model.PartyRecord) string) string {
	for _, m := range members {
		if v := get(m.Raw); v != "" {
			return v
		}
	}
	return ""
}
