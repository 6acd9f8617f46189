package automod

import (
	"fmt"
	"strconv"
	"strings"

	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

const (
	defaultIntBound   int64   = 1e9
	defaultFloatBound float64 = 1e300
)

// parseFieldKind parses a field's datatype[:typeattr] specifier (spec.md
// §4.2 "Datatype constraint parsing") into a FieldKind and constraint.
func parseFieldKind(spec string) (registry.FieldKind, registry.FieldConstraint, error) {
	kind, attr, _ := strings.Cut(spec, ":")
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "str"
	}

	switch registry.FieldKind(kind) {
	case registry.FieldBool:
		label := strings.TrimSpace(attr)
		return registry.FieldBool, registry.FieldConstraint{Bool: &registry.BoolConstraint{Label: label}}, nil

	case registry.FieldInt:
		min, max, err := parseIntBounds(attr)
		if err != nil {
			return "", registry.FieldConstraint{}, err
		}
		return registry.FieldInt, registry.FieldConstraint{Int: &registry.IntConstraint{Min: min, Max: max}}, nil

	case registry.FieldFloat:
		units, min, max, err := parseFloatBounds(attr)
		if err != nil {
			return "", registry.FieldConstraint{}, err
		}
		return registry.FieldFloat, registry.FieldConstraint{Float: &registry.FloatConstraint{Units: units, Min: min, Max: max}}, nil

	case registry.FieldOpt:
		opts, open, err := parseOptions(attr)
		if err != nil {
			return "", registry.FieldConstraint{}, err
		}
		return registry.FieldOpt, registry.FieldConstraint{Opt: &registry.OptConstraint{Options: opts, Open: open}}, nil

	case registry.FieldRegex:
		pattern := strings.TrimSpace(attr)
		if pattern == "" {
			return "", registry.FieldConstraint{}, fmt.Errorf("regex field requires a non-empty pattern")
		}
		return registry.FieldRegex, registry.FieldConstraint{Regex: &registry.RegexConstraint{Pattern: pattern}}, nil

	case registry.FieldRange:
		axis := registry.RangeAxis(strings.TrimSpace(attr))
		switch axis {
		case registry.RangeX, registry.RangeY, registry.RangeXY:
			return registry.FieldRange, registry.FieldConstraint{Range: &registry.RangeConstraint{Axis: axis}}, nil
		default:
			return "", registry.FieldConstraint{}, fmt.Errorf("range field axis must be one of x, y, xy, got %q", axis)
		}

	case registry.FieldStr, registry.FieldFileinfo, registry.FieldIndex, registry.FieldCoordinate:
		if attr != "" {
			return "", registry.FieldConstraint{}, fmt.Errorf("%s fields accept no constraints", kind)
		}
		return registry.FieldKind(kind), registry.FieldConstraint{}, nil

	default:
		return "", registry.FieldConstraint{}, fmt.Errorf("unknown field datatype %q", kind)
	}
}

func parseIntBounds(attr string) (int64, int64, error) {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return -defaultIntBound, defaultIntBound, nil
	}
	attr = strings.TrimPrefix(attr, "<")
	attr = strings.TrimSuffix(attr, ">")
	lo, hi, _ := strings.Cut(attr, ",")
	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)

	min := -defaultIntBound
	max := defaultIntBound
	var err error
	if lo != "" {
		min, err = strconv.ParseInt(lo, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("int field lower bound %q is not an integer", lo)
		}
	}
	if hi != "" {
		max, err = strconv.ParseInt(hi, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("int field upper bound %q is not an integer", hi)
		}
	}
	if min >= max {
		return 0, 0, fmt.Errorf("int field bounds require min < max, got [%d, %d]", min, max)
	}
	return min, max, nil
}

func parseFloatBounds(attr string) (string, float64, float64, error) {
	open := strings.Index(attr, "<")
	close := strings.Index(attr, ">")
	units := attr
	bounds := ""
	if open >= 0 && close > open {
		units = attr[:open]
		bounds = attr[open+1 : close]
	}
	units = strings.TrimSpace(units)

	min := -defaultFloatBound
	max := defaultFloatBound
	if bounds != "" {
		lo, hi, _ := strings.Cut(bounds, ",")
		lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
		var err error
		if lo != "" && lo != "-inf" {
			min, err = strconv.ParseFloat(lo, 64)
			if err != nil {
				return "", 0, 0, fmt.Errorf("float field lower bound %q is not a number", lo)
			}
		}
		if hi != "" && hi != "inf" {
			max, err = strconv.ParseFloat(hi, 64)
			if err != nil {
				return "", 0, 0, fmt.Errorf("float field upper bound %q is not a number", hi)
			}
		}
	}
	return units, min, max, nil
}

func parseOptions(attr string) ([]registry.OptOption, bool, error) {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return nil, false, fmt.Errorf("opt field requires at least one option")
	}
	parts := strings.Split(attr, "|")
	open := false
	var opts []registry.OptOption
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "..." {
			open = true
			continue
		}
		label, value, hasLabel := strings.Cut(p, "=")
		if !hasLabel {
			opts = append(opts, registry.OptOption{Label: p, Value: p})
		} else {
			opts = append(opts, registry.OptOption{Label: strings.TrimSpace(label), Value: strings.TrimSpace(value)})
		}
	}
	if len(opts) == 0 {
		return nil, false, fmt.Errorf("opt field requires at least one option")
	}
	return opts, open, nil
}
