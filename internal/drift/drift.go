// Package drift classifies incoming records against a metric baseline.
//
// Providers change payload shapes without notice: fields disappear, get
// renamed, or start carrying nulls. The detector compares each record's
// metric map against the expected baseline and decides whether the record
// is safe to persist, degraded but usable, or must be quarantined.
package drift

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Level is the classification outcome for one record.
type Level int

const (
	// LevelOK means the record matches the baseline.
	LevelOK Level = iota
	// LevelWarn means the record deviates but can be persisted,
	// possibly with defaults substituted for null values.
	LevelWarn
	// LevelBlock means the record must be quarantined.
	LevelBlock
)

// String returns a human-readable level name.
func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarn:
		return "warn"
	case LevelBlock:
		return "block"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// FieldSpec describes one expected metric field.
type FieldSpec struct {
	Name     string
	Required bool
	Default  *float64 // substituted when the field is present but null
	Min      *float64
	Max      *float64
}

// Baseline is the expected shape of a record's metric map.
type Baseline struct {
	Version int
	Fields  []FieldSpec
}

// DefaultBaseline returns the baseline for USD market metrics.
func DefaultBaseline() Baseline {
	zero := 0.0
	return Baseline{
		Version: 1,
		Fields: []FieldSpec{
			{Name: "price_usd", Required: true, Min: &zero},
			{Name: "market_cap_usd", Default: &zero, Min: &zero},
			{Name: "volume_24h", Default: &zero, Min: &zero},
		},
	}
}

// Classification is the detector's verdict on one record.
type Classification struct {
	Level   Level
	Reasons []string
	// Values holds the coerced metric values, keyed by baseline field
	// name. Nil entries mean the field was absent or null with no default.
	Values map[string]*float64
}

// Detector classifies metric maps against a baseline.
type Detector struct {
	baseline Baseline
	known    map[string]FieldSpec
}

// NewDetector creates a detector for the given baseline.
func NewDetector(baseline Baseline) *Detector {
	known := make(map[string]FieldSpec, len(baseline.Fields))
	for _, f := range baseline.Fields {
		known[f.Name] = f
	}
	return &Detector{baseline: baseline, known: known}
}

// Classify compares one record's metrics against the baseline.
func (d *Detector) Classify(metrics map[string]any) Classification {
	c := Classification{
		Level:  LevelOK,
		Values: make(map[string]*float64, len(d.baseline.Fields)),
	}

	for _, f := range d.baseline.Fields {
		raw, present := metrics[f.Name]
		if !present {
			if f.Required {
				c.escalate(LevelBlock, fmt.Sprintf("missing field %q", f.Name))
			} else {
				c.escalate(LevelWarn, fmt.Sprintf("absent field %q", f.Name))
			}
			c.Values[f.Name] = nil
			continue
		}

		if raw == nil {
			// Present-but-null is a data quality issue, not schema drift.
			c.escalate(LevelWarn, fmt.Sprintf("null value for %q", f.Name))
			if f.Default != nil {
				v := *f.Default
				c.Values[f.Name] = &v
			} else if f.Required {
				c.escalate(LevelBlock, fmt.Sprintf("null value for required %q with no default", f.Name))
			}
			continue
		}

		v, err := coerceNumber(raw)
		if err != nil {
			c.escalate(LevelBlock, fmt.Sprintf("field %q: %v", f.Name, err))
			continue
		}
		if f.Min != nil && v < *f.Min {
			c.escalate(LevelBlock, fmt.Sprintf("field %q out of range: %v < %v", f.Name, v, *f.Min))
			continue
		}
		if f.Max != nil && v > *f.Max {
			c.escalate(LevelBlock, fmt.Sprintf("field %q out of range: %v > %v", f.Name, v, *f.Max))
			continue
		}
		c.Values[f.Name] = &v
	}

	// Unknown extra fields suggest a provider schema change worth a look,
	// but do not endanger the persisted columns.
	var extras []string
	for name := range metrics {
		if _, ok := d.known[name]; !ok {
			extras = append(extras, name)
		}
	}
	if len(extras) > 0 {
		sort.Strings(extras)
		c.escalate(LevelWarn, fmt.Sprintf("unexpected fields: %s", strings.Join(extras, ", ")))
	}

	return c
}

// Baseline returns the detector's baseline.
func (d *Detector) Baseline() Baseline {
	return d.baseline
}

func (c *Classification) escalate(level Level, reason string) {
	if level > c.Level {
		c.Level = level
	}
	c.Reasons = append(c.Reasons, reason)
}

// coerceNumber converts loosely typed metric values to float64. JSON
// decoding yields float64, CSV parsing yields strings, and tests often
// use untyped ints; all are accepted.
func coerceNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
