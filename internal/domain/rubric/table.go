package rubric

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed rubrics.yaml
var defaultRubrics []byte

// ErrInvalidTable is returned when a rubric table fails to parse or validate.
var ErrInvalidTable = errors.New("invalid rubric table")

var validate = validator.New()

// DocumentType identifies the kind of supporting document.
type DocumentType string

// Supported document types.
const (
	SOP DocumentType = "SOP"
	LOR DocumentType = "LOR"
)

// ParseDocumentType accepts SOP or LOR, case-insensitively.
func ParseDocumentType(s string) (DocumentType, bool) {
	switch DocumentType(strings.ToUpper(strings.TrimSpace(s))) {
	case SOP:
		return SOP, true
	case LOR:
		return LOR, true
	default:
		return DocumentType(s), false
	}
}

// Noun is the human name of the document type.
func (d DocumentType) Noun() string {
	switch d {
	case SOP:
		return "statement of purpose"
	case LOR:
		return "letter of recommendation"
	default:
		return "document"
	}
}

// Criterion is one weighted rubric entry.
type Criterion struct {
	Name     string
	Weight   float64
	Keywords []string

	patterns []*regexp.Regexp
}

// Profile is the ordered rubric for one institution and document type.
type Profile struct {
	InstitutionID int
	Institution   string
	DocumentType  DocumentType
	Emphasis      string
	MinimumWords  int
	IdealWords    int
	Criteria      []Criterion
}

type profileKey struct {
	institution int
	doc         DocumentType
}

// Table is an immutable lookup from institution and document type to a Profile.
type Table struct {
	profiles map[profileKey]*Profile
}

// Lookup returns the profile for the pair, if any.
func (t *Table) Lookup(institutionID int, doc DocumentType) (*Profile, bool) {
	p, ok := t.profiles[profileKey{institutionID, doc}]
	return p, ok
}

// Len returns the number of profiles.
func (t *Table) Len() int {
	return len(t.profiles)
}

type tableFile struct {
	Institutions []institutionFile `yaml:"institutions" validate:"required,min=1,dive"`
}

type institutionFile struct {
	ID        int                    `yaml:"id" validate:"required,gt=0"`
	Name      string                 `yaml:"name" validate:"required"`
	Documents map[string]profileFile `yaml:"documents" validate:"required,min=1,dive"`
}

type profileFile struct {
	Emphasis     string          `yaml:"emphasis" validate:"required"`
	MinimumWords int             `yaml:"minimum_words" validate:"gt=0"`
	IdealWords   int             `yaml:"ideal_words" validate:"gtefield=MinimumWords"`
	Criteria     []criterionFile `yaml:"criteria" validate:"required,min=1,dive"`
}

type criterionFile struct {
	Name     string   `yaml:"name" validate:"required"`
	Weight   float64  `yaml:"weight" validate:"gt=0,lte=1"`
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
}

// DefaultTable parses the embedded rubric table.
func DefaultTable() (*Table, error) {
	return LoadTable(bytes.NewReader(defaultRubrics))
}

// LoadTable parses and validates a YAML rubric table.
func LoadTable(r io.Reader) (*Table, error) {
	var f tableFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	t := &Table{profiles: make(map[profileKey]*Profile)}
	for _, inst := range f.Institutions {
		for name, pf := range inst.Documents {
			doc, ok := ParseDocumentType(name)
			if !ok {
				return nil, fmt.Errorf("%w: institution %d: unknown document type %q", ErrInvalidTable, inst.ID, name)
			}
			key := profileKey{inst.ID, doc}
			if _, dup := t.profiles[key]; dup {
				return nil, fmt.Errorf("%w: duplicate profile for institution %d and %s", ErrInvalidTable, inst.ID, doc)
			}

			p := &Profile{
				InstitutionID: inst.ID,
				Institution:   inst.Name,
				DocumentType:  doc,
				Emphasis:      pf.Emphasis,
				MinimumWords:  pf.MinimumWords,
				IdealWords:    pf.IdealWords,
				Criteria:      make([]Criterion, 0, len(pf.Criteria)),
			}
			for _, cf := range pf.Criteria {
				c := Criterion{Name: cf.Name, Weight: cf.Weight, Keywords: cf.Keywords}
				for _, kw := range cf.Keywords {
					re, err := regexp.Compile("(?i)" + kw)
					if err != nil {
						return nil, fmt.Errorf("%w: criterion %q: keyword %q: %w", ErrInvalidTable, cf.Name, kw, err)
					}
					c.patterns = append(c.patterns, re)
				}
				p.Criteria = append(p.Criteria, c)
			}
			t.profiles[key] = p
		}
	}
	return t, nil
}
