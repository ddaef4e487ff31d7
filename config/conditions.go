package config

import (
	"fmt"
	"github.com/BurntSushi/toml"
	"github.com/notargets/gocbs/conditions"
)

type ConditionsGeneral struct {
	Version     int    `toml:"version"`
	Description string `toml:"description"`
}

// Initial is one [[initial]] entry; initial values are always prescribed
type Initial struct {
	GroupName   string  `toml:"group_name"`
	Unknown     string  `toml:"unknown"`
	Value       float64 `toml:"value"`
	Description string  `toml:"description"`
}

// Boundary is one [[boundary]] entry
type Boundary struct {
	GroupName     string  `toml:"group_name"`
	ConditionType int     `toml:"condition_type"`
	Unknown       string  `toml:"unknown"`
	Value         float64 `toml:"value"`
	Description   string  `toml:"description"`
}

// Conditions is the content of conditions.toml
type Conditions struct {
	General  ConditionsGeneral `toml:"general"`
	Initial  []Initial         `toml:"initial"`
	Boundary []Boundary        `toml:"boundary"`
}

// LoadConditions decodes and validates a conditions.toml file
func LoadConditions(path string) (*Conditions, error) {
	c := &Conditions{}
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Conditions) Validate() error {
	if c.General.Version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.General.Version)
	}
	for i, in := range c.Initial {
		if !aliasPattern.MatchString(in.Unknown) {
			return invalid("initial[%d].unknown %q must match %s", i, in.Unknown, aliasPattern)
		}
	}
	for i, b := range c.Boundary {
		if !aliasPattern.MatchString(b.Unknown) {
			return invalid("boundary[%d].unknown %q must match %s", i, b.Unknown, aliasPattern)
		}
		switch conditions.Kind(b.ConditionType) {
		case conditions.Dirichlet, conditions.Neumann:
		default:
			return invalid("boundary[%d].condition_type %d: %v", i, b.ConditionType, conditions.ErrUnknownKind)
		}
	}
	return nil
}

// Directives converts the entries, in file order
func (c *Conditions) Directives() (initial, boundary []conditions.Directive) {
	for _, in := range c.Initial {
		initial = append(initial, conditions.Directive{
			GroupName: in.GroupName,
			Field:     in.Unknown,
			Kind:      conditions.Dirichlet,
			Value:     in.Value,
		})
	}
	for _, b := range c.Boundary {
		boundary = append(boundary, conditions.Directive{
			GroupName: b.GroupName,
			Field:     b.Unknown,
			Kind:      conditions.Kind(b.ConditionType),
			Value:     b.Value,
		})
	}
	return initial, boundary
}
