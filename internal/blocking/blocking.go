// Package blocking partitions preprocessed records into candidate-comparison
// groups so clustering never degrades to full pairwise comparison.
package blocking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
)

// Strategy derives a blocking key from a preprocessed record. A record whose
// underlying field is absent is excluded from the strategy's blocks.
type Strategy interface {
	Name() string
	Key(rec *model.PreprocessedRecord) (string, bool)
}

// strategies are keyed by the names accepted in config validation.
func buildStrategies(cfg config.BlockingConfig) ([]Strategy, error) {
	out := make([]Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		switch name {
		case "name_prefix":
			out = append(out, namePrefix{n: cfg.NamePrefixLen})
		case "name_token":
			out = append(out, nameToken{n: cfg.TokenPrefixLen})
		case "email_prefix":
			out = append(out, emailPrefix{n: cfg.EmailPrefixLen})
		case "phone_prefix":
			out = append(out, phonePrefix{n: cfg.PhonePrefixLen})
		default:
			return nil, eris.Errorf("blocking: unknown strategy %q", name)
		}
	}
	return out, nil
}

// namePrefix blocks on the first n characters of the normalized name.
type namePrefix struct{ n int }

func (s namePrefix) Name() string { return "name_prefix" }
func (s namePrefix) Key(rec *model.PreprocessedRecord) (string, bool) {
	if !rec.NameKey.Present || len(rec.NameKey.Value) < s.n {
		return "", false
	}
	return rec.NameKey.Value[:s.n], true
}

// nameToken blocks on the leading characters of the first name token.
type nameToken struct{ n int }

func (s nameToken) Name() string { return "name_token" }
func (s nameToken) Key(rec *model.PreprocessedRecord) (string, bool) {
	if !rec.NameKey.Present {
		return "", false
	}
	tok, _, _ := strings.Cut(rec.NameKey.Value, " ")
	if len(tok) < s.n {
		return "", false
	}
	return tok[:s.n], true
}

// emailPrefix blocks on the leading characters of the email domain.
type emailPrefix struct{ n int }

func (s emailPrefix) Name() string { return "email_prefix" }
func (s emailPrefix) Key(rec *model.PreprocessedRecord) (string, bool) {
	if !rec.EmailKey.Present {
		return "", false
	}
	_, domain, ok := strings.Cut(rec.EmailKey.Value, "@")
	if !ok || domain == "" {
		return "", false
	}
	if len(domain) > s.n {
		domain = domain[:s.n]
	}
	return domain, true
}

// phonePrefix blocks on the leading digits (area code) of the phone key.
type phonePrefix struct{ n int }

func (s phonePrefix) Name() string { return "phone_prefix" }
func (s phonePrefix) Key(rec *model.PreprocessedRecord) (string, bool) {
	if !rec.PhoneKey.Present || len(rec.PhoneKey.Value) < s.n {
		return "", false
	}
	return rec.PhoneKey.Value[:s.n], true
}

// Index maps block keys to the sorted record indices sharing that key and
// tracks the reverse mapping. Blocks are transient, rebuilt per run.
type Index struct {
	Blocks   map[string][]int
	ByRecord [][]string // block keys per record index, sorted

	// Overflows lists blocks that exceeded the cap even after splitting and
	// were truncated for comparison purposes.
	Overflows []string
}

// Keys returns the block keys in sorted order.
func (ix *Index) Keys() []string {
	keys := make([]string, 0, len(ix.Blocks))
	for k := range ix.Blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build assigns every record to its strategy blocks. Records matched by no
// strategy land in a per-source catch-all block so they are not permanently
// excluded from comparison. Block keys embed the source tag: entities never
// span source systems, so cross-source records must never share a block.
func Build(records []model.PreprocessedRecord, cfg config.BlockingConfig) (*Index, error) {
	strategies, err := buildStrategies(cfg)
	if err != nil {
		return nil, err
	}

	raw := make(map[string][]int)
	for i := range records {
		rec := &records[i]
		blocked := false
		for _, s := range strategies {
			key, ok := s.Key(rec)
			if !ok {
				continue
			}
			full := blockKey(rec.Source, s.Name(), key)
			raw[full] = append(raw[full], i)
			blocked = true
		}
		if !blocked {
			full := blockKey(rec.Source, "catchall", "")
			raw[full] = append(raw[full], i)
		}
	}

	ix := &Index{Blocks: make(map[string][]int, len(raw))}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		members := raw[key]
		sort.Ints(members)
		if len(members) <= cfg.MaxBlockSize {
			ix.Blocks[key] = members
			continue
		}
		ix.splitOversized(key, members, cfg.MaxBlockSize)
	}

	ix.ByRecord = make([][]string, len(records))
	for key, members := range ix.Blocks {
		for _, i := range members {
			ix.ByRecord[i] = append(ix.ByRecord[i], key)
		}
	}
	for i := range ix.ByRecord {
		sort.Strings(ix.ByRecord[i])
	}

	return ix, nil
}

// splitOversized splits a block that exceeds the cap into fixed-size chunks
// keyed by a deterministic secondary index. Chunking bounds worst-case
// comparison cost on skewed keys (e.g., thousands of records sharing one
// catch-all block) at the price of possible under-merging across chunks,
// which is logged as an overflow warning.
func (ix *Index) splitOversized(key string, members []int, maxSize int) {
	zap.L().Warn("blocking: block exceeds cap, splitting",
		zap.String("block", key),
		zap.Int("size", len(members)),
		zap.Int("cap", maxSize),
	)
	ix.Overflows = append(ix.Overflows, key)

	for chunk := 0; len(members) > 0; chunk++ {
		n := maxSize
		if n > len(members) {
			n = len(members)
		}
		sub := fmt.Sprintf("%s#%d", key, chunk)
		ix.Blocks[sub] = members[:n]
		members = members[n:]
	}
}

func blockKey(src model.SourceSystem, strategy, key string) string {
	return string(src) + "|" + strategy + "|" + key
}
