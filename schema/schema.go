// Package schema models the declarative extraction configuration: where
// each weather datum lives in the document and how to parse it. A Config
// is loaded once, validated, and then treated as immutable for the
// lifetime of a scrape.
package schema

import (
	"fmt"
	"regexp"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"github.com/go-playground/validator/v10"
)

// LocatorKind selects how a Location value is interpreted.
type LocatorKind string

const (
	LocatorCSS   LocatorKind = "css"
	LocatorID    LocatorKind = "id"
	LocatorXPath LocatorKind = "xpath"
)

// Location identifies zero, one, or many nodes relative to a scope node.
type Location struct {
	Kind  LocatorKind `yaml:"kind" json:"kind" validate:"required,oneof=css id xpath"`
	Value string      `yaml:"value" json:"value" validate:"required"`
}

// Strategy names one of the closed set of extraction strategies.
type Strategy string

const (
	// StrategyText returns the node's trimmed text.
	StrategyText Strategy = "text"
	// StrategyNumeric parses the node's text as a decimal number.
	StrategyNumeric Strategy = "numeric"
	// StrategyRegex captures named groups from the node's text.
	StrategyRegex Strategy = "regex"
	// StrategyAngleAttr reads an angle from a sub-element attribute and
	// normalizes it into [0, 360).
	StrategyAngleAttr Strategy = "angle_attr"
	// StrategyMultiText collects the trimmed text of every sub-element
	// match, in document order.
	StrategyMultiText Strategy = "multi_text"
	// StrategyTideTimes scans for time matches and classifies them into
	// high/low tide events.
	StrategyTideTimes Strategy = "tide_times"
)

// Extraction configures one strategy. Only the fields relevant to the
// chosen strategy are consulted; Validate rejects incomplete combinations.
type Extraction struct {
	Strategy Strategy `yaml:"strategy" json:"strategy" validate:"required,oneof=text numeric regex angle_attr multi_text tide_times"`

	// Pattern drives regex and tide_times.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	// Groups names the regex capture groups, positionally.
	Groups []string `yaml:"groups,omitempty" json:"groups,omitempty"`

	// SubSelector scopes angle_attr and multi_text below the located node.
	SubSelector *Location `yaml:"sub_selector,omitempty" json:"sub_selector,omitempty"`
	// Attribute is the attribute angle_attr reads.
	Attribute string `yaml:"attribute,omitempty" json:"attribute,omitempty"`

	// Threshold is the amplitude cutoff between low and high tide.
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	// FirstEvent seeds tide alternation; defaults to "high".
	FirstEvent string `yaml:"first_event,omitempty" json:"first_event,omitempty" validate:"omitempty,oneof=high low"`
	// AmplitudeOverrides lets an adjacent amplitude override alternation.
	// Defaults to true; the alternation-only behavior is kept reachable
	// because live pages have not confirmed the combined rule.
	AmplitudeOverrides *bool `yaml:"amplitude_overrides,omitempty" json:"amplitude_overrides,omitempty"`
}

// Field is one scalar page field. SubFields are evaluated with the
// field's own located node as their scope.
type Field struct {
	Name       string     `yaml:"name" json:"name" validate:"required"`
	Location   Location   `yaml:"location" json:"location"`
	Extraction Extraction `yaml:"extraction" json:"extraction"`
	SubFields  []Field    `yaml:"sub_fields,omitempty" json:"sub_fields,omitempty" validate:"omitempty,dive"`
}

// Column is one forecast table column. RowIDSuffix combined with the
// table's base identifier and a row index forms the per-cell element id.
type Column struct {
	Key         string     `yaml:"key" json:"key" validate:"required"`
	RowIDSuffix string     `yaml:"row_id_suffix" json:"row_id_suffix" validate:"required"`
	Extraction  Extraction `yaml:"extraction" json:"extraction"`

	// CellSelector locates candidate cells inside the per-row container;
	// defaults to a plain td selector.
	CellSelector *Location `yaml:"cell_selector,omitempty" json:"cell_selector,omitempty"`
	// RequiresActiveCell drops cells not carrying the table's active
	// marker class, so steps beyond a model's horizon never produce
	// spurious values.
	RequiresActiveCell bool `yaml:"requires_active_cell,omitempty" json:"requires_active_cell,omitempty"`
}

// Table is one forecast table. Column declaration order is iteration
// order, which fixes the output column order.
type Table struct {
	Key      string   `yaml:"key" json:"key" validate:"required"`
	Location Location `yaml:"location" json:"location"`
	// ActiveClass marks cells inside the valid forecast horizon;
	// defaults to DefaultActiveClass.
	ActiveClass string   `yaml:"active_class,omitempty" json:"active_class,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns" validate:"min=1,dive"`
}

// DefaultActiveClass is the cell class windguru uses for populated
// forecast cells.
const DefaultActiveClass = "tcell"

// Config is the root schema document.
type Config struct {
	Fields []Field `yaml:"page_fields,omitempty" json:"page_fields,omitempty" validate:"omitempty,dive"`
	Tables []Table `yaml:"tables,omitempty" json:"tables,omitempty" validate:"omitempty,dive"`
}

// ConfigError reports an internally inconsistent schema. It is the only
// error class that aborts a scrape outright.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Detail, e.Err)
	}
	return "config: " + e.Detail
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

var structValidator = validator.New()

// Validate normalizes optional settings and checks every invariant the
// engine relies on: selectors and patterns compile, regex group names
// match the pattern's capture-group count, strategy-specific fields are
// present, and keys are unique. It must pass before a Config reaches the
// assembler.
func (c *Config) Validate() error {
	c.applyDefaults()

	if err := structValidator.Struct(c); err != nil {
		return &ConfigError{Detail: "schema structure", Err: err}
	}

	names := make(map[string]struct{}, len(c.Fields))
	for i := range c.Fields {
		f := &c.Fields[i]
		if _, dup := names[f.Name]; dup {
			return configErrorf("duplicate page field %q", f.Name)
		}
		names[f.Name] = struct{}{}
		if err := validateField(f, "field "+f.Name); err != nil {
			return err
		}
	}

	keys := make(map[string]struct{}, len(c.Tables))
	for ti := range c.Tables {
		t := &c.Tables[ti]
		if _, dup := keys[t.Key]; dup {
			return configErrorf("duplicate table %q", t.Key)
		}
		keys[t.Key] = struct{}{}
		if err := validateTable(t); err != nil {
			return err
		}
	}

	return nil
}

func validateField(f *Field, where string) error {
	if err := validateLocation(f.Location, where); err != nil {
		return err
	}
	if err := validateExtraction(&f.Extraction, where); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(f.SubFields))
	for i := range f.SubFields {
		sub := &f.SubFields[i]
		if _, dup := seen[sub.Name]; dup {
			return configErrorf("%s: duplicate sub field %q", where, sub.Name)
		}
		seen[sub.Name] = struct{}{}
		if err := validateField(sub, where+"."+sub.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateTable(t *Table) error {
	where := "table " + t.Key
	if err := validateLocation(t.Location, where); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for ci := range t.Columns {
		col := &t.Columns[ci]
		colWhere := fmt.Sprintf("%s column %s", where, col.Key)
		if _, dup := seen[col.Key]; dup {
			return configErrorf("%s: duplicate column key", colWhere)
		}
		seen[col.Key] = struct{}{}
		if col.RowIDSuffix == "" {
			return configErrorf("%s: row_id_suffix is empty", colWhere)
		}
		if err := validateLocation(*col.CellSelector, colWhere+" cell_selector"); err != nil {
			return err
		}
		if err := validateExtraction(&col.Extraction, colWhere); err != nil {
			return err
		}
	}
	return nil
}

func validateExtraction(e *Extraction, where string) error {
	switch e.Strategy {
	case StrategyText, StrategyNumeric:
		return nil
	case StrategyRegex:
		if e.Pattern == "" {
			return configErrorf("%s: regex strategy requires a pattern", where)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return &ConfigError{Detail: where + ": pattern", Err: err}
		}
		if len(e.Groups) != re.NumSubexp() {
			return configErrorf("%s: %d group names for %d capture groups",
				where, len(e.Groups), re.NumSubexp())
		}
		return nil
	case StrategyAngleAttr:
		if e.SubSelector == nil {
			return configErrorf("%s: angle_attr requires a sub_selector", where)
		}
		if e.Attribute == "" {
			return configErrorf("%s: angle_attr requires an attribute", where)
		}
		return validateLocation(*e.SubSelector, where+" sub_selector")
	case StrategyMultiText:
		if e.SubSelector == nil {
			return configErrorf("%s: multi_text requires a sub_selector", where)
		}
		return validateLocation(*e.SubSelector, where+" sub_selector")
	case StrategyTideTimes:
		if e.Pattern == "" {
			return configErrorf("%s: tide_times requires a time pattern", where)
		}
		if _, err := regexp.Compile(e.Pattern); err != nil {
			return &ConfigError{Detail: where + ": pattern", Err: err}
		}
		if e.Threshold <= 0 {
			return configErrorf("%s: tide_times requires a positive threshold", where)
		}
		return nil
	default:
		return configErrorf("%s: unknown strategy %q", where, e.Strategy)
	}
}

func validateLocation(loc Location, where string) error {
	switch loc.Kind {
	case LocatorCSS:
		if _, err := cascadia.Compile(loc.Value); err != nil {
			return &ConfigError{Detail: where + ": css selector", Err: err}
		}
	case LocatorXPath:
		if _, err := xpath.Compile(loc.Value); err != nil {
			return &ConfigError{Detail: where + ": xpath", Err: err}
		}
	case LocatorID:
		if loc.Value == "" {
			return configErrorf("%s: empty element id", where)
		}
	default:
		return configErrorf("%s: unknown locator kind %q", where, loc.Kind)
	}
	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.Fields {
		applyFieldDefaults(&c.Fields[i])
	}
	for ti := range c.Tables {
		t := &c.Tables[ti]
		if t.ActiveClass == "" {
			t.ActiveClass = DefaultActiveClass
		}
		for ci := range t.Columns {
			col := &t.Columns[ci]
			if col.CellSelector == nil {
				col.CellSelector = &Location{Kind: LocatorCSS, Value: "td"}
			}
			applyExtractionDefaults(&col.Extraction)
		}
	}
}

func applyFieldDefaults(f *Field) {
	applyExtractionDefaults(&f.Extraction)
	for i := range f.SubFields {
		applyFieldDefaults(&f.SubFields[i])
	}
}

func applyExtractionDefaults(e *Extraction) {
	if e.Strategy != StrategyTideTimes {
		return
	}
	if e.FirstEvent == "" {
		e.FirstEvent = "high"
	}
	if e.AmplitudeOverrides == nil {
		override := true
		e.AmplitudeOverrides = &override
	}
}
