// Package ruleset loads the fighting-style matchup table from YAML content.
package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// Advantage grants Bonus to a style when it fights Against.
type Advantage struct {
	Against buck.FightingStyle `yaml:"against"`
	Bonus   int                `yaml:"bonus"`
}

// Style describes one fighting style.
//
// Precondition: Name must be non-empty after loading.
type Style struct {
	ID          buck.FightingStyle `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Advantages  []Advantage        `yaml:"advantages"`
}

// Styles is a validated, read-only matchup table. Safe for concurrent use.
type Styles struct {
	byID  map[buck.FightingStyle]*Style
	bonus map[[2]buck.FightingStyle]int
}

// NewStyles validates styles and indexes them.
//
// Postcondition: Returns an error if ids repeat, a name is empty, or an
// advantage names an unknown style.
func NewStyles(styles []*Style) (*Styles, error) {
	if len(styles) == 0 {
		return nil, fmt.Errorf("ruleset: no fighting styles defined")
	}
	s := &Styles{
		byID:  make(map[buck.FightingStyle]*Style, len(styles)),
		bonus: make(map[[2]buck.FightingStyle]int),
	}
	for _, st := range styles {
		if st.Name == "" {
			return nil, fmt.Errorf("ruleset: style %d has no name", st.ID)
		}
		if _, dup := s.byID[st.ID]; dup {
			return nil, fmt.Errorf("ruleset: duplicate style id %d", st.ID)
		}
		s.byID[st.ID] = st
	}
	for _, st := range styles {
		for _, adv := range st.Advantages {
			if _, ok := s.byID[adv.Against]; !ok {
				return nil, fmt.Errorf("ruleset: style %q advantage references unknown style %d", st.Name, adv.Against)
			}
			s.bonus[[2]buck.FightingStyle{st.ID, adv.Against}] += adv.Bonus
		}
	}
	return s, nil
}

// DefaultStyles returns four styles where each has a +2 edge over the next,
// wrapping around.
func DefaultStyles() *Styles {
	names := []string{"Charger", "Sparrer", "Feinter", "Bruiser"}
	styles := make([]*Style, len(names))
	for i, name := range names {
		styles[i] = &Style{
			ID:   buck.FightingStyle(i),
			Name: name,
			Advantages: []Advantage{
				{Against: buck.FightingStyle((i + 1) % len(names)), Bonus: 2},
			},
		}
	}
	s, err := NewStyles(styles)
	if err != nil {
		panic("ruleset: default styles invalid: " + err.Error())
	}
	return s
}

// Known reports whether id is a defined style.
func (s *Styles) Known(id buck.FightingStyle) bool {
	_, ok := s.byID[id]
	return ok
}

// Get returns the style with id.
func (s *Styles) Get(id buck.FightingStyle) (*Style, bool) {
	st, ok := s.byID[id]
	return st, ok
}

// Bonus returns the modifier self gains when fighting other. Unknown pairs
// yield zero.
func (s *Styles) Bonus(self, other buck.FightingStyle) int {
	return s.bonus[[2]buck.FightingStyle{self, other}]
}

// IDs returns the defined style ids in ascending order.
func (s *Styles) IDs() []buck.FightingStyle {
	ids := make([]buck.FightingStyle, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoadStyles reads every .yaml/.yml file in dir as one Style.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a validated table or a non-nil error.
func LoadStyles(dir string) (*Styles, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	styles := make([]*Style, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var st Style
		if err := yaml.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("parsing style file %s: %w", path, err)
		}
		styles = append(styles, &st)
	}
	return NewStyles(styles)
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
