package model

// SourceSystem identifies the upstream system a party record was extracted from.
type SourceSystem string

const (
	SourceTransactions SourceSystem = "trnx"  // transaction participants
	SourceRegistry     SourceSystem = "orbis" // corporate registry
	SourceScreening    SourceSystem = "wc"    // screening list
)

// KnownSource reports whether s is one of the recognized source tags.
func KnownSource(s SourceSystem) bool {
	switch s {
	case SourceTransactions, SourceRegistry, SourceScreening:
		return true
	}
	return false
}

// PartyRecord is one observation of a person or organization from a single
// source system. All contact fields are optional; an empty string means the
// source did not carry the field. Immutable once created.
type PartyRecord struct {
	PartyID         string       `json:"party_id"`
	Name            string       `json:"name,omitempty"`
	Email           string       `json:"email,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	Address         string       `json:"address,omitempty"`
	Country         string       `json:"country,omitempty"`
	SourceSystem    SourceSystem `json:"source_system"`
	Accounts        []string     `json:"accounts,omitempty"`
	SourceIndexRefs []string     `json:"source_index_refs,omitempty"`
}

// Field is a normalized comparison key with explicit presence. Absence is a
// first-class state so the scorer can redistribute weight instead of forcing
// a mismatch.
type Field struct {
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
}

// AbsentField is the marker for a field the source record did not carry.
func AbsentField() Field { return Field{} }

// PresentField wraps a normalized value.
func PresentField(v string) Field { return Field{Value: v, Present: true} }

// PreprocessedRecord is the comparison-ready form of a PartyRecord, 1:1 with
// its original. Index is the record's position in the resolution arena and is
// what the clusterer's union-find operates on.
type PreprocessedRecord struct {
	Index      int          `json:"index"`
	PartyID    string       `json:"party_id"`
	Source     SourceSystem `json:"source_system"`
	NameKey    Field        `json:"name_key"`
	EmailKey   Field        `json:"email_key"`
	PhoneKey   Field        `json:"phone_key"`
	AddressKey Field        `json:"address_key"`
	CountryKey Field        `json:"country_key"`
	Raw        *PartyRecord `json:"-"`
}
