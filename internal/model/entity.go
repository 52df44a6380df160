package model

import "time"

// EntityType classifies a resolved entity.
type EntityType string

const (
	EntityIndividual EntityType = "individual"
	EntityBusiness   EntityType = "business"
)

// Entity is the resolved, deduplicated representation of one real-world party
// within one source system.
type Entity struct {
	EntityID        string         `json:"entity_id"`
	PartyIDs        []string       `json:"party_ids"`
	Type            EntityType     `json:"entity_type"`
	PEPFlag         bool           `json:"pep_flag"`
	Confidence      float64        `json:"confidence_score"`
	RiskScore       float64        `json:"risk_score"`
	ResolvedName    string         `json:"resolved_name,omitempty"`
	ResolvedEmail   string         `json:"resolved_email,omitempty"`
	ResolvedPhone   string         `json:"resolved_phone,omitempty"`
	ResolvedAddress string         `json:"resolved_address,omitempty"`
	ResolvedCountry string         `json:"resolved_country,omitempty"`
	Sources         []SourceSystem `json:"sources"`
	RecordCount     int            `json:"record_count"`
}

// Exclusion records a malformed input record that was reported and left out
// of clustering. Nothing vanishes silently.
type Exclusion struct {
	PartyID string       `json:"party_id,omitempty"`
	Source  SourceSystem `json:"source_system,omitempty"`
	Reason  string       `json:"reason"`
}

// ResolutionResult is the complete output of one engine run. The partition is
// atomic: either every non-excluded record is mapped to exactly one entity or
// the run failed.
type ResolutionResult struct {
	Entities   []Entity          `json:"entities"`
	Mapping    map[string]string `json:"party_to_entity"` // party_id -> entity_id
	Exclusions []Exclusion       `json:"exclusions,omitempty"`
	Summary    RunSummary        `json:"summary"`
}

// RunSummary holds aggregate statistics for one resolution run.
type RunSummary struct {
	RecordsIn           int     `json:"records_in"`
	RecordsExcluded     int     `json:"records_excluded"`
	TotalEntities       int     `json:"total_entities"`
	IndividualEntities  int     `json:"individual_entities"`
	BusinessEntities    int     `json:"business_entities"`
	PEPEntities         int     `json:"pep_entities"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgRecordsPerEntity float64 `json:"avg_records_per_entity"`

	// OverflowBlocks lists block keys that exceeded the size cap and were
	// chunk-split, in deterministic key order. Records in a split block may
	// under-merge across chunks, so the keys are surfaced for review.
	OverflowBlocks []string `json:"overflow_blocks,omitempty"`
}

// RunStatus represents the persisted state of a resolution run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted resolution run.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
