// Package resolve orchestrates the entity-resolution engine: preprocessing,
// blocking, two-pass clustering, and entity aggregation over a batch of
// party records.
package resolve

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resolver-cli/internal/aggregate"
	"github.com/sells-group/resolver-cli/internal/blocking"
	"github.com/sells-group/resolver-cli/internal/cluster"
	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
	"github.com/sells-group/resolver-cli/internal/preprocess"
	"github.com/sells-group/resolver-cli/internal/similarity"
)

// Engine runs batch entity resolution under a fixed, validated policy.
type Engine struct {
	cfg        config.ResolutionConfig
	scorer     *similarity.Scorer
	clusterer  *cluster.Clusterer
	aggregator *aggregate.Aggregator
}

// New validates the resolution config and builds an Engine. Configuration
// errors are fatal here; no partial run is ever attempted.
func New(rc config.ResolutionConfig) (*Engine, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	scorer := similarity.New(rc.Weights)
	return &Engine{
		cfg:        rc,
		scorer:     scorer,
		clusterer:  cluster.New(scorer, rc),
		aggregator: aggregate.New(scorer, rc),
	}, nil
}

// Resolve partitions the input records into entities. The result is atomic:
// either every well-formed record is mapped to exactly one entity, or an
// error is returned and nothing is emitted. Malformed records are excluded
// from clustering but surfaced in the exclusion report.
func (e *Engine) Resolve(ctx context.Context, records []model.PartyRecord) (*model.ResolutionResult, error) {
	log := zap.L().With(zap.String("component", "resolve"))
	log.Info("resolution started", zap.Int("records", len(records)))

	valid, exclusions := screen(records)
	for _, ex := range exclusions {
		log.Warn("record excluded",
			zap.String("party_id", ex.PartyID),
			zap.String("source", string(ex.Source)),
			zap.String("reason", ex.Reason),
		)
	}

	pre := make([]model.PreprocessedRecord, len(valid))
	for i := range valid {
		pre[i] = preprocess.Record(i, &valid[i])
	}

	ix, err := blocking.Build(pre, e.cfg.Blocking)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: build blocking index")
	}

	part, err := e.clusterer.Run(ctx, pre, ix)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: cluster")
	}

	result := &model.ResolutionResult{
		Mapping:    make(map[string]string, len(valid)),
		Exclusions: exclusions,
	}
	for ci, cl := range part.Clusters {
		entityID := fmt.Sprintf("ENT%06d", ci)
		entity := e.aggregator.Entity(entityID, cl, pre)
		result.Entities = append(result.Entities, entity)
		for _, pid := range entity.PartyIDs {
			result.Mapping[pid] = entityID
		}
	}

	result.Summary = summarize(len(records), result)
	result.Summary.OverflowBlocks = ix.Overflows
	log.Info("resolution complete",
		zap.Int("entities", result.Summary.TotalEntities),
		zap.Int("excluded", result.Summary.RecordsExcluded),
		zap.Int("overflow_blocks", len(ix.Overflows)),
		zap.Float64("avg_confidence", result.Summary.AvgConfidence),
	)

	return result, nil
}

// screen splits the input into well-formed records and exclusions. A record
// needs its party identifier and a recognized source tag; nothing else is
// required.
func screen(records []model.PartyRecord) ([]model.PartyRecord, []model.Exclusion) {
	valid := make([]model.PartyRecord, 0, len(records))
	var exclusions []model.Exclusion
	for i := range records {
		r := records[i]
		switch {
		case r.PartyID == "":
			exclusions = append(exclusions, model.Exclusion{
				Source: r.SourceSystem,
				Reason: "missing party_id",
			})
		case !model.KnownSource(r.SourceSystem):
			exclusions = append(exclusions, model.Exclusion{
				PartyID: r.PartyID,
				Source:  r.SourceSystem,
				Reason:  fmt.Sprintf("unknown source system %q", r.SourceSystem),
			})
		default:
			valid = append(valid, r)
		}
	}
	return valid, exclusions
}

func summarize(recordsIn int, result *model.ResolutionResult) model.RunSummary {
	s := model.RunSummary{
		RecordsIn:       recordsIn,
		RecordsExcluded: len(result.Exclusions),
		TotalEntities:   len(result.Entities),
	}

	var confSum float64
	var recSum int
	for _, e := range result.Entities {
		switch e.Type {
		case model.EntityBusiness:
			s.BusinessEntities++
		default:
			s.IndividualEntities++
		}
		if e.PEPFlag {
			s.PEPEntities++
		}
		confSum += e.Confidence
		recSum += e.RecordCount
	}
	if s.TotalEntities > 0 {
		s.AvgConfidence = confSum / float64(s.TotalEntities)
		s.AvgRecordsPerEntity = float64(recSum) / float64(s.TotalEntities)
	}
	return s
}
