// Package similarity computes weighted multi-field similarity between
// preprocessed party records. Scores are symmetric, deterministic, and
// reported with per-field components for explainability.
package similarity

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
	"github.com/sells-group/resolver-cli/internal/preprocess"
)

// Scorer scores record pairs under a fixed weight policy.
type Scorer struct {
	weights config.WeightsConfig
}

// New creates a Scorer. Weights are assumed validated by config.
func New(weights config.WeightsConfig) *Scorer {
	return &Scorer{weights: weights}
}

// Score returns the overall similarity in [0,1] and the per-field component
// scores. A field absent in either record contributes no component; its
// weight is redistributed proportionally over the participating fields so
// sparse records are not biased against.
func (s *Scorer) Score(a, b *model.PreprocessedRecord) (float64, map[string]float64) {
	components := make(map[string]float64, 4)
	var weighted, weightSum float64

	type fieldSpec struct {
		name   string
		weight float64
		af, bf model.Field
		score  func(x, y string) float64
	}
	specs := []fieldSpec{
		{"name", s.weights.Name, a.NameKey, b.NameKey, nameScore},
		{"email", s.weights.Email, a.EmailKey, b.EmailKey, emailScore},
		{"phone", s.weights.Phone, a.PhoneKey, b.PhoneKey, phoneScore},
		{"address", s.weights.Address, a.AddressKey, b.AddressKey, addressScore},
	}

	for _, f := range specs {
		if !f.af.Present || !f.bf.Present {
			continue
		}
		sc := f.score(f.af.Value, f.bf.Value)
		components[f.name] = sc
		weighted += sc * f.weight
		weightSum += f.weight
	}

	if weightSum == 0 {
		return 0, components
	}
	return weighted / weightSum, components
}

// nameScore averages a token-order-insensitive comparison with a
// substring-tolerant one, after an exact-match shortcut.
func nameScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return (tokenSortRatio(a, b) + partialRatio(a, b)) / 2
}

func addressScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return (tokenSortRatio(a, b) + partialRatio(a, b)) / 2
}

// emailScore weighs the domain heavily: same domain with a similar local
// part is far stronger evidence than the reverse.
func emailScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	localA, domainA, okA := strings.Cut(a, "@")
	localB, domainB, okB := strings.Cut(b, "@")
	if !okA || !okB {
		return ratio(a, b)
	}

	var domainSim float64
	if domainA == domainB {
		domainSim = 1.0
	}
	return 0.3*ratio(localA, localB) + 0.7*domainSim
}

// phoneScore applies the tiered match: full normalized equality, then the
// last-10-digit suffix (same subscriber number under different country or
// trunk prefixes), then a fuzzy ratio.
func phoneScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if preprocess.Last10(a) == preprocess.Last10(b) {
		return 0.9
	}
	return ratio(a, b)
}

// ratio is normalized Levenshtein similarity in [0,1].
func ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(d)/float64(longest)
}

// tokenSortRatio compares the two strings with their tokens sorted, making
// the comparison insensitive to word order ("doe jane" vs "jane doe").
func tokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// partialRatio slides the shorter string across the longer one and returns
// the best window similarity, tolerating substrings ("acme" vs "acme inc").
func partialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 1.0
		}
		return 0.0
	}
	if len(ra) == len(rb) {
		return ratio(string(ra), string(rb))
	}

	short := string(ra)
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		window := string(rb[i : i+len(ra)])
		if r := ratio(short, window); r > best {
			best = r
			if best == 1.0 {
				break
			}
		}
	}
	return best
}
