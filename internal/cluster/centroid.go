package cluster

import "github.com/sells-group/resolver-cli/internal/model"

// centroid is a cluster's running representative: the first present value of
// each field in member-insertion order. Updated incrementally so comparing a
// candidate against a cluster costs one scorer call, not one per member.
type centroid struct {
	name, email, phone, address, country model.Field
	rec                                  model.PreprocessedRecord
	dirty                                bool
}

// absorb fills any still-absent centroid field from the record.
func (c *centroid) absorb(rec *model.PreprocessedRecord) {
	if !c.name.Present && rec.NameKey.Present {
		c.name = rec.NameKey
		c.dirty = true
	}
	if !c.email.Present && rec.EmailKey.Present {
		c.email = rec.EmailKey
		c.dirty = true
	}
	if !c.phone.Present && rec.PhoneKey.Present {
		c.phone = rec.PhoneKey
		c.dirty = true
	}
	if !c.address.Present && rec.AddressKey.Present {
		c.address = rec.AddressKey
		c.dirty = true
	}
	if !c.country.Present && rec.CountryKey.Present {
		c.country = rec.CountryKey
		c.dirty = true
	}
}

// record materializes the centroid as a scorable pseudo-record.
func (c *centroid) record() *model.PreprocessedRecord {
	if c.dirty {
		c.rec = model.PreprocessedRecord{
			NameKey:    c.name,
			EmailKey:   c.email,
			PhoneKey:   c.phone,
			AddressKey: c.address,
			CountryKey: c.country,
		}
		c.dirty = false
	}
	return &c.rec
}
