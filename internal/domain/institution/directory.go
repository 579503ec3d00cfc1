// Package institution holds the static institution directory and its lookups.
package institution

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed institutions.yaml
var defaultInstitutions []byte

// Sentinel errors.
var (
	ErrNotFound         = errors.New("institution not found")
	ErrInvalidDirectory = errors.New("invalid institution directory")
)

// minFuzzyBudget is the smallest edit distance accepted by fuzzy search.
const minFuzzyBudget = 2

// Institution is one program offered by a university.
type Institution struct {
	ID           int    `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	GlobalRank   int    `yaml:"global_rank" json:"globalRank"`
	ProgramLabel string `yaml:"program_label" json:"programLabel"`
	ParentCourse string `yaml:"parent_course" json:"parentCourse"`
}

// Directory is an immutable, rank-ordered set of institutions.
type Directory struct {
	list []Institution
	byID map[int]int
}

// DefaultDirectory parses the embedded directory.
func DefaultDirectory() (*Directory, error) {
	return LoadDirectory(bytes.NewReader(defaultInstitutions))
}

// LoadDirectory parses a YAML list of institutions.
func LoadDirectory(r io.Reader) (*Directory, error) {
	var list []Institution
	if err := yaml.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDirectory, err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].GlobalRank < list[j].GlobalRank })

	d := &Directory{list: list, byID: make(map[int]int, len(list))}
	for i, inst := range list {
		if inst.ID <= 0 || inst.Name == "" {
			return nil, fmt.Errorf("%w: entry %d needs a positive id and a name", ErrInvalidDirectory, i)
		}
		if _, dup := d.byID[inst.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidDirectory, inst.ID)
		}
		d.byID[inst.ID] = i
	}
	return d, nil
}

// List returns all institutions ordered by global rank.
func (d *Directory) List() []Institution {
	out := make([]Institution, len(d.list))
	copy(out, d.list)
	return out
}

// Get returns the institution with id.
func (d *Directory) Get(id int) (Institution, error) {
	i, ok := d.byID[id]
	if !ok {
		return Institution{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return d.list[i], nil
}

// Search matches q against institution names. Case-folded substring matches
// win; otherwise names within a small edit distance are returned, closest
// first. An empty query lists everything.
func (d *Directory) Search(q string) []Institution {
	// Caser values keep state and are not safe for concurrent use.
	fold := cases.Fold()
	q = fold.String(strings.TrimSpace(q))
	if q == "" {
		return d.List()
	}

	var out []Institution
	for _, inst := range d.list {
		if strings.Contains(fold.String(inst.Name), q) {
			out = append(out, inst)
		}
	}
	if len(out) > 0 {
		return out
	}

	budget := max(minFuzzyBudget, utf8.RuneCountInString(q)/3)
	type candidate struct {
		inst Institution
		dist int
	}
	var near []candidate
	for _, inst := range d.list {
		name := fold.String(inst.Name)
		dist := levenshtein.ComputeDistance(q, name)
		for _, word := range strings.Fields(name) {
			dist = min(dist, levenshtein.ComputeDistance(q, word))
		}
		if dist <= budget {
			near = append(near, candidate{inst, dist})
		}
	}
	sort.SliceStable(near, func(i, j int) bool { return near[i].dist < near[j].dist })
	for _, c := range near {
		out = append(out, c.inst)
	}
	return out
}
