package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResolutionConfig() ResolutionConfig {
	return ResolutionConfig{
		Weights:    WeightsConfig{Name: 0.4, Email: 0.3, Phone: 0.2, Address: 0.1},
		Thresholds: ThresholdsConfig{Overall: 0.80},
		Blocking: BlockingConfig{
			Strategies:     []string{"name_prefix", "email_prefix"},
			NamePrefixLen:  5,
			EmailPrefixLen: 6,
			MaxBlockSize:   1000,
		},
		Cluster: ClusterConfig{MaxSize: 100},
		Confidence: ConfidenceConfig{
			SingleRecordBaseline: 0.7,
			SizeBoostPerRecord:   0.05,
			SizeBoostCap:         0.2,
		},
		Risk: RiskConfig{
			Baseline:             0.1,
			MultiRecordThreshold: 3,
			MultiRecordIncrement: 0.2,
			SuspiciousIncrement:  0.3,
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 0.4, cfg.Resolution.Weights.Name)
	assert.Equal(t, 0.80, cfg.Resolution.Thresholds.Overall)
	assert.Equal(t, 1000, cfg.Resolution.Blocking.MaxBlockSize)
	assert.Equal(t, 100, cfg.Resolution.Cluster.MaxSize)
	assert.Contains(t, cfg.Resolution.Keywords.Business, "llc")
	assert.Contains(t, cfg.Resolution.Keywords.PEP, "senator")
	assert.NoError(t, cfg.Resolution.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RESOLVER_RESOLUTION_THRESHOLDS_OVERALL", "0.9")
	t.Setenv("RESOLVER_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Resolution.Thresholds.Overall)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestValidate_OK(t *testing.T) {
	rc := validResolutionConfig()
	assert.NoError(t, rc.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(rc *ResolutionConfig)
	}{
		{"weights do not sum to 1", func(rc *ResolutionConfig) { rc.Weights.Email = 0.5 }},
		{"negative weight", func(rc *ResolutionConfig) { rc.Weights.Phone = -0.2; rc.Weights.Email = 0.7 }},
		{"missing name weight", func(rc *ResolutionConfig) {
			rc.Weights = WeightsConfig{Email: 0.5, Phone: 0.3, Address: 0.2}
		}},
		{"threshold above 1", func(rc *ResolutionConfig) { rc.Thresholds.Overall = 1.5 }},
		{"no blocking strategies", func(rc *ResolutionConfig) { rc.Blocking.Strategies = nil }},
		{"unknown strategy", func(rc *ResolutionConfig) { rc.Blocking.Strategies = []string{"soundex"} }},
		{"zero block size", func(rc *ResolutionConfig) { rc.Blocking.MaxBlockSize = 0 }},
		{"cluster cap of one", func(rc *ResolutionConfig) { rc.Cluster.MaxSize = 1 }},
		{"baseline above 1", func(rc *ResolutionConfig) { rc.Confidence.SingleRecordBaseline = 1.2 }},
		{"negative boost", func(rc *ResolutionConfig) { rc.Confidence.SizeBoostPerRecord = -0.1 }},
		{"negative risk increment", func(rc *ResolutionConfig) { rc.Risk.SuspiciousIncrement = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := validResolutionConfig()
			tt.mutate(&rc)
			assert.Error(t, rc.Validate())
		})
	}
}

func TestApplyPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	policy := `
business:
  - sarl
  - oy
pep:
  - chancellor
`
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o644))

	rc := validResolutionConfig()
	rc.Keywords = KeywordsConfig{
		Business:   []string{"inc"},
		PEP:        []string{"senator"},
		Suspicious: []string{"test"},
	}
	require.NoError(t, rc.ApplyPolicyFile(path))

	// Lists in the file replace wholesale; untouched lists stay.
	assert.Equal(t, []string{"sarl", "oy"}, rc.Keywords.Business)
	assert.Equal(t, []string{"chancellor"}, rc.Keywords.PEP)
	assert.Equal(t, []string{"test"}, rc.Keywords.Suspicious)
}

func TestApplyPolicyFile_Missing(t *testing.T) {
	rc := validResolutionConfig()
	assert.Error(t, rc.ApplyPolicyFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestApplyPolicyFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("business: {not: [a list"), 0o644))

	rc := validResolutionConfig()
	assert.Error(t, rc.ApplyPolicyFile(path))
}
