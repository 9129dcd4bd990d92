// Package priority holds the per-continent order in which gauge sources are
// applied to the canonical priors.
package priority

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sos-priors/internal/agency"
	"github.com/sells-group/sos-priors/internal/model"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Entry is one step of a continent's order.
type Entry struct {
	Agency     agency.Code `yaml:"agency"`
	Historical bool        `yaml:"historical"`
}

// Name labels the entry in logs and run summaries.
func (e Entry) Name() string {
	if e.Historical {
		return "historical " + e.Agency.Key()
	}
	return e.Agency.Key()
}

// SourceCode is the code recorded in provenance for this entry.
func (e Entry) SourceCode() model.SourceCode { return e.Agency.SourceCode() }

// Table maps a continent code to its ordered entries.
type Table map[string][]Entry

// Default returns the built-in table.
func Default() (Table, error) {
	return Parse(defaultsYAML)
}

// Load reads a table from path, or returns the built-in table when path is empty.
func Load(path string) (Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "priority: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a table. Unknown agencies and repeated entries are rejected.
func Parse(data []byte) (Table, error) {
	var wrapper struct {
		Priority Table `yaml:"priority"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "priority: parse")
	}
	if len(wrapper.Priority) == 0 {
		return nil, eris.New("priority: no continents defined")
	}

	for cont, entries := range wrapper.Priority {
		seen := make(map[Entry]bool, len(entries))
		for _, e := range entries {
			if seen[e] {
				return nil, eris.Errorf("priority: %s lists %s twice", cont, e.Name())
			}
			seen[e] = true
		}
	}
	return wrapper.Priority, nil
}

// For returns the entries for continent.
func (t Table) For(continent string) ([]Entry, error) {
	entries, ok := t[continent]
	if !ok {
		return nil, eris.Errorf("priority: unknown continent %q", continent)
	}
	return entries, nil
}

// Continents returns the configured continent codes in sorted order.
func (t Table) Continents() []string {
	out := make([]string, 0, len(t))
	for c := range t {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// String renders the table one continent per line.
func (t Table) String() string {
	var s string
	for _, c := range t.Continents() {
		s += c + ":"
		for _, e := range t[c] {
			s += fmt.Sprintf(" [%s]", e.Name())
		}
		s += "\n"
	}
	return s
}
