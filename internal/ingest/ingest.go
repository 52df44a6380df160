// Package ingest reads party records out of the three source-system CSV
// schemas and normalizes them into the engine's input shape. It owns no
// resolution logic: malformed rows become exclusions downstream, never
// silent drops.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resolver-cli/internal/model"
)

// header maps column names to positions, tolerating column order changes
// between source extracts.
type header map[string]int

func readHeader(r *csv.Reader) (header, error) {
	row, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read header")
	}
	h := make(header, len(row))
	for i, name := range row {
		h[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return h, nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := h[c]; !ok {
			return eris.Errorf("ingest: missing required column %q", c)
		}
	}
	return nil
}

// ReadParties reads a pre-extracted party reference CSV (the engine's narrow
// input shape): party_id, name, email, phone, address, country,
// source_system, plus optional accounts and source_index_refs columns with
// semicolon-separated values.
func ReadParties(r io.Reader) ([]model.PartyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if err := h.require("party_id", "source_system"); err != nil {
		return nil, err
	}

	var out []model.PartyRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read party row")
		}
		out = append(out, model.PartyRecord{
			PartyID:         h.get(row, "party_id"),
			Name:            h.get(row, "name"),
			Email:           h.get(row, "email"),
			Phone:           h.get(row, "phone"),
			Address:         h.get(row, "address"),
			Country:         h.get(row, "country"),
			SourceSystem:    model.SourceSystem(h.get(row, "source_system")),
			Accounts:        splitList(h.get(row, "accounts")),
			SourceIndexRefs: splitList(h.get(row, "source_index_refs")),
		})
	}

	zap.L().Info("ingest: parties loaded", zap.Int("records", len(out)))
	return out, nil
}

// participant names one party role inside a transaction row.
type participant struct {
	prefix string // column prefix, e.g. "originator"
}

var transactionPartic = []participant{
	{prefix: "originator"},
	{prefix: "beneficiary"},
	{prefix: "tp_originator"},
	{prefix: "tp_beneficiary"},
}

// ReadTransactions extracts party records from transaction participant
// columns. Parties are deduplicated within the source by lowercased
// (name, email); repeat appearances accumulate accounts and transaction
// references instead of minting new records.
func ReadTransactions(r io.Reader) ([]model.PartyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if err := h.require("transaction_id"); err != nil {
		return nil, err
	}

	var out []model.PartyRecord
	seen := make(map[string]int) // dedupe key -> index in out

	nextID := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read transaction row")
		}

		txnID := h.get(row, "transaction_id")
		for _, p := range transactionPartic {
			name := h.get(row, p.prefix+"_name")
			email := h.get(row, p.prefix+"_email")
			if name == "" && email == "" {
				continue
			}

			key := strings.ToLower(name) + "\x00" + strings.ToLower(email)
			account := h.get(row, p.prefix+"_account")

			if idx, ok := seen[key]; ok {
				existing := &out[idx]
				if account != "" {
					existing.Accounts = append(existing.Accounts, account)
				}
				if txnID != "" {
					existing.SourceIndexRefs = append(existing.SourceIndexRefs, txnID)
				}
				continue
			}

			rec := model.PartyRecord{
				PartyID:      fmt.Sprintf("TRNX-P%06d", nextID),
				Name:         name,
				Email:        email,
				Phone:        h.get(row, p.prefix+"_phone"),
				Address:      h.get(row, p.prefix+"_address"),
				Country:      h.get(row, p.prefix+"_country"),
				SourceSystem: model.SourceTransactions,
			}
			if account != "" {
				rec.Accounts = []string{account}
			}
			if txnID != "" {
				rec.SourceIndexRefs = []string{txnID}
			}
			seen[key] = len(out)
			out = append(out, rec)
			nextID++
		}
	}

	zap.L().Info("ingest: transaction parties extracted", zap.Int("records", len(out)))
	return out, nil
}

// ReadRegistry extracts party records from corporate registry rows, one per
// company.
func ReadRegistry(r io.Reader) ([]model.PartyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if err := h.require("company_id", "company_name"); err != nil {
		return nil, err
	}

	var out []model.PartyRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read registry row")
		}
		id := h.get(row, "company_id")
		out = append(out, model.PartyRecord{
			PartyID:         id,
			Name:            h.get(row, "company_name"),
			Email:           h.get(row, "email"),
			Phone:           h.get(row, "phone"),
			Address:         h.get(row, "address"),
			Country:         h.get(row, "country_name"),
			SourceSystem:    model.SourceRegistry,
			SourceIndexRefs: []string{id},
		})
	}

	zap.L().Info("ingest: registry parties extracted", zap.Int("records", len(out)))
	return out, nil
}

// ReadScreening extracts party records from screening-list rows. Nationality
// stands in for country, matching the upstream extract.
func ReadScreening(r io.Reader) ([]model.PartyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if err := h.require("wc_id", "full_name"); err != nil {
		return nil, err
	}

	var out []model.PartyRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read screening row")
		}
		id := h.get(row, "wc_id")
		out = append(out, model.PartyRecord{
			PartyID:         id,
			Name:            h.get(row, "full_name"),
			Email:           h.get(row, "email"),
			Phone:           h.get(row, "phone"),
			Address:         h.get(row, "address"),
			Country:         h.get(row, "nationality"),
			SourceSystem:    model.SourceScreening,
			SourceIndexRefs: []string{id},
		})
	}

	zap.L().Info("ingest: screening parties extracted", zap.Int("records", len(out)))
	return out, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
