// Package synth generates deterministic sample CSVs for the three source
// systems, with controlled duplicate injection so resolution runs have
// realistic overlap to find. Fixed seed in, identical files out.
package synth

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCase = cases.Title(language.English)

// Config controls generation volume and overlap.
type Config struct {
	Seed          int64
	RegistryRows  int
	ScreeningRows int
	Transactions  int
	DuplicateRate float64 // probability a row is a variant of an earlier party
}

// DefaultConfig returns a small but resolution-worthy dataset.
func DefaultConfig() Config {
	return Config{
		Seed:          42,
		RegistryRows:  500,
		ScreeningRows: 500,
		Transactions:  2000,
		DuplicateRate: 0.25,
	}
}

var (
	firstNames = []string{
		"james", "maria", "wei", "fatima", "ivan", "jane", "carlos", "aiko",
		"pierre", "olga", "ahmed", "lucia", "hans", "priya", "john", "elena",
	}
	lastNames = []string{
		"smith", "garcia", "chen", "khan", "petrov", "doe", "silva", "tanaka",
		"dubois", "ivanova", "hassan", "rossi", "mueller", "patel", "brown", "volkova",
	}
	companyStems = []string{
		"acme", "globex", "initech", "umbrella", "stark", "wayne", "cyberdyne",
		"tyrell", "wonka", "hooli", "vandelay", "prestige", "pied piper",
	}
	companySuffixes = []string{"Inc", "Corp", "Ltd", "LLC", "GmbH", "SA", "NV"}
	countries       = []string{"US", "GB", "DE", "FR", "ES", "IT", "BR", "JP", "CN", "RU"}
	domains         = []string{"example.com", "mail.test", "corp.example", "mailbox.example"}
	streets         = []string{"Main St", "High St", "Oak Ave", "Elm St", "Market St", "Broadway"}
	pepTitles       = []string{"Senator", "Minister", "Governor", "Mayor"}
)

// party is the internal generation unit shared across writers.
type party struct {
	name    string
	email   string
	phone   string
	address string
	country string
}

type generator struct {
	rng     *rand.Rand
	cfg     Config
	parties []party // previously emitted, the duplicate pool
}

func newGenerator(cfg Config) *generator {
	return &generator{rng: rand.New(rand.NewSource(cfg.Seed)), cfg: cfg}
}

func (g *generator) pick(list []string) string {
	return list[g.rng.Intn(len(list))]
}

func (g *generator) phone() string {
	return fmt.Sprintf("+1-%03d-%03d-%04d", 200+g.rng.Intn(700), g.rng.Intn(1000), g.rng.Intn(10000))
}

func (g *generator) address() string {
	return fmt.Sprintf("%d %s", 1+g.rng.Intn(9999), g.pick(streets))
}

func (g *generator) personName() string {
	name := g.pick(firstNames) + " " + g.pick(lastNames)
	if g.rng.Float64() < 0.02 {
		name = g.pick(pepTitles) + " " + name
	}
	return titleCase.String(name)
}

func (g *generator) companyName() string {
	return titleCase.String(g.pick(companyStems)) + " " + g.pick(companySuffixes)
}

func (g *generator) email(name string) string {
	local := strings.ReplaceAll(strings.ToLower(name), " ", ".")
	local = strings.Map(func(r rune) rune {
		if r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, local)
	return local + "@" + g.pick(domains)
}

// newParty emits either a fresh party or, at the duplicate rate, a variant
// of an earlier one: same identifiers with jittered presentation, which is
// exactly what the resolver has to re-unify.
func (g *generator) newParty(company bool) party {
	if len(g.parties) > 0 && g.rng.Float64() < g.cfg.DuplicateRate {
		base := g.parties[g.rng.Intn(len(g.parties))]
		return g.variant(base)
	}

	var p party
	if company {
		p.name = g.companyName()
	} else {
		p.name = g.personName()
	}
	p.country = g.pick(countries)
	if g.rng.Float64() < 0.7 {
		p.email = g.email(p.name)
	}
	if g.rng.Float64() < 0.6 {
		p.phone = g.phone()
	}
	if g.rng.Float64() < 0.5 {
		p.address = g.address()
	}
	g.parties = append(g.parties, p)
	return p
}

// variant jitters a party's presentation without changing its identity.
func (g *generator) variant(base party) party {
	v := base
	switch g.rng.Intn(4) {
	case 0:
		v.name = strings.ToUpper(base.name)
	case 1:
		v.name = strings.ReplaceAll(base.name, " ", ", ")
	case 2:
		v.name = base.name + "."
	case 3:
		// token swap
		toks := strings.Fields(base.name)
		if len(toks) >= 2 {
			toks[0], toks[len(toks)-1] = toks[len(toks)-1], toks[0]
			v.name = strings.Join(toks, " ")
		}
	}
	if v.phone != "" && g.rng.Float64() < 0.5 {
		v.phone = strings.NewReplacer("+1-", "", "-", " ").Replace(base.phone)
	}
	return v
}

// WriteFiles generates the three source CSVs under dir: registry.csv,
// screening.csv, transactions.csv.
func WriteFiles(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "synth: create dir %s", dir)
	}

	g := newGenerator(cfg)

	if err := writeCSV(filepath.Join(dir, "registry.csv"), g.registryRows()); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, "screening.csv"), g.screeningRows()); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, "transactions.csv"), g.transactionRows()); err != nil {
		return err
	}

	zap.L().Info("synth: sample data written",
		zap.String("dir", dir),
		zap.Int("registry", cfg.RegistryRows),
		zap.Int("screening", cfg.ScreeningRows),
		zap.Int("transactions", cfg.Transactions),
	)
	return nil
}

func (g *generator) registryRows() [][]string {
	rows := [][]string{{"company_id", "company_name", "email", "phone", "address", "country_name"}}
	for i := 0; i < g.cfg.RegistryRows; i++ {
		p := g.newParty(true)
		rows = append(rows, []string{
			fmt.Sprintf("ORB%06d", i+1), p.name, p.email, p.phone, p.address, p.country,
		})
	}
	return rows
}

func (g *generator) screeningRows() [][]string {
	rows := [][]string{{"wc_id", "full_name", "email", "phone", "address", "nationality", "category"}}
	categories := []string{"PEP", "Sanctions", "Adverse Media", "Regulatory"}
	for i := 0; i < g.cfg.ScreeningRows; i++ {
		p := g.newParty(false)
		rows = append(rows, []string{
			fmt.Sprintf("WC%06d", i+1), p.name, p.email, p.phone, p.address, p.country,
			g.pick(categories),
		})
	}
	return rows
}

func (g *generator) transactionRows() [][]string {
	rows := [][]string{{
		"transaction_id",
		"originator_name", "originator_email", "originator_phone", "originator_address", "originator_country", "originator_account",
		"beneficiary_name", "beneficiary_email", "beneficiary_phone", "beneficiary_address", "beneficiary_country", "beneficiary_account",
	}}
	for i := 0; i < g.cfg.Transactions; i++ {
		orig := g.newParty(g.rng.Float64() < 0.3)
		bene := g.newParty(g.rng.Float64() < 0.3)
		rows = append(rows, []string{
			fmt.Sprintf("TXN%06d", i+1),
			orig.name, orig.email, orig.phone, orig.address, orig.country, g.account(),
			bene.name, bene.email, bene.phone, bene.address, bene.country, g.account(),
		})
	}
	return rows
}

func (g *generator) account() string {
	return fmt.Sprintf("ACC%010d", g.rng.Intn(1_000_000_000))
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "synth: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrapf(err, "synth: write %s", path)
	}
	w.Flush()
	return eris.Wrapf(w.Error(), "synth: flush %s", path)
}
