// Package preprocess normalizes raw party fields into comparison-ready keys.
// Every function here is pure and deterministic; absence is carried as an
// explicit marker, never as an empty-but-present value.
package preprocess

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/resolver-cli/internal/model"
)

// Record derives the PreprocessedRecord for a PartyRecord. index is the
// record's arena position for the clusterer.
func Record(index int, r *model.PartyRecord) model.PreprocessedRecord {
	return model.PreprocessedRecord{
		Index:      index,
		PartyID:    r.PartyID,
		Source:     r.SourceSystem,
		NameKey:    NormalizeName(r.Name),
		EmailKey:   NormalizeEmail(r.Email),
		PhoneKey:   NormalizePhone(r.Phone),
		AddressKey: NormalizeAddress(r.Address),
		CountryKey: normalizeSimple(r.Country),
		Raw:        r,
	}
}

// NormalizeName strips punctuation, collapses whitespace and lowercases.
// Unicode is NFKC-folded first so width/compatibility variants compare equal.
func NormalizeName(s string) model.Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.AbsentField()
	}

	folded := norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteByte(' ')
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		return model.AbsentField()
	}
	return model.PresentField(out)
}

// NormalizeEmail lowercases the address. A missing email is an explicit
// absent marker, distinct from an empty-but-present field.
func NormalizeEmail(s string) model.Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.AbsentField()
	}
	return model.PresentField(strings.ToLower(s))
}

// NormalizePhone strips all non-digit characters.
func NormalizePhone(s string) model.Field {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return model.AbsentField()
	}
	return model.PresentField(b.String())
}

// Last10 returns the trailing 10 digits of a normalized phone key, or the
// whole key when shorter. The suffix is the cross-format comparison key.
func Last10(digits string) string {
	if len(digits) <= 10 {
		return digits
	}
	return digits[len(digits)-10:]
}

// NormalizeAddress collapses whitespace and lowercases.
func NormalizeAddress(s string) model.Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.AbsentField()
	}
	out := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return model.PresentField(out)
}

func normalizeSimple(s string) model.Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.AbsentField()
	}
	return model.PresentField(strings.ToLower(s))
}
