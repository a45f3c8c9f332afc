package namenorm

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/lionmetrics/zonescope/internal/model"
)

// Confidence says how a name resolved to a zone.
type Confidence string

const (
	ConfidenceAlias  Confidence = "alias"  // hand-curated alias table hit
	ConfidenceDirect Confidence = "direct" // exact normalized-name index hit
)

// Match is a successful zone resolution.
type Match struct {
	ZoneID     string
	Confidence Confidence
}

// Resolver maps normalized names to canonical zone IDs. The base alias map
// and the zone-name index are immutable after construction; interactive
// additions go into a staging overlay on a copy, never the base map.
type Resolver struct {
	aliases map[string]string // normalized name -> zone ID, checked first
	index   map[string]string // normalized zone display name -> zone ID
}

// aliasFile is the on-disk shape of the versioned alias table.
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases reads the versioned alias YAML file. Keys are normalized
// before storage so the file may use human-readable casing.
func LoadAliases(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "namenorm: read alias file %s", path)
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "namenorm: parse alias file %s", path)
	}
	out := make(map[string]string, len(f.Aliases))
	for k, v := range f.Aliases {
		norm, ok := Normalize(k)
		if !ok {
			return nil, eris.Errorf("namenorm: alias key %q normalizes to nothing", k)
		}
		out[norm] = v
	}
	return out, nil
}

// NewResolver builds a resolver from an alias map and the current zone
// table. Both inputs are copied; alias keys are normalized so callers may
// pass human-readable casing.
func NewResolver(aliases map[string]string, zones []model.Zone) *Resolver {
	r := &Resolver{
		aliases: make(map[string]string, len(aliases)),
		index:   make(map[string]string, len(zones)),
	}
	for k, v := range aliases {
		if norm, ok := Normalize(k); ok {
			r.aliases[norm] = v
		}
	}
	for _, z := range zones {
		if norm, ok := Normalize(z.Name); ok {
			r.index[norm] = z.ID
		}
	}
	return r
}

// WithOverlay returns a new resolver whose alias table is the base table
// plus the given staging entries. The receiver is left untouched.
func (r *Resolver) WithOverlay(overlay map[string]string) *Resolver {
	merged := make(map[string]string, len(r.aliases)+len(overlay))
	for k, v := range r.aliases {
		merged[k] = v
	}
	for k, v := range overlay {
		if norm, ok := Normalize(k); ok {
			merged[norm] = v
		}
	}
	out := &Resolver{aliases: merged, index: r.index}
	return out
}

// Resolve looks up a normalized name: alias table first, then the exact
// zone-name index. Ambiguity is never guessed at; a miss returns ok=false
// with a human-readable diagnostic for the unmatched audit table.
func (r *Resolver) Resolve(normalized string) (Match, string, bool) {
	if id, ok := r.aliases[normalized]; ok {
		return Match{ZoneID: id, Confidence: ConfidenceAlias}, "", true
	}
	if id, ok := r.index[normalized]; ok {
		return Match{ZoneID: id, Confidence: ConfidenceDirect}, "", true
	}
	return Match{}, fmt.Sprintf("No match for normalized name: '%s'", normalized), false
}
