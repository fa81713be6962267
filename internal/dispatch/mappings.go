package dispatch

import (
	"fmt"
	"strings"
)

// Mapping rewrites one path prefix to another, accounting for differing
// mount points between the observer and a receiver.
type Mapping struct {
	Source string
	Target string
}

// ParseMappings parses "source:target" pairs. A single extra ":" inside
// either side is tolerated: the colon is assigned to the longer component,
// with the constraint that neither side may end up empty.
func ParseMappings(raw []string) ([]Mapping, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	mappings := make([]Mapping, 0, len(raw))
	for _, entry := range raw {
		mapping, err := parseMapping(entry)
		if err != nil {
			return nil, err
		}

		mappings = append(mappings, mapping)
	}

	return mappings, nil
}

func parseMapping(raw string) (Mapping, error) {
	parts := strings.Split(raw, ":")

	switch len(parts) {
	case 2:
		return Mapping{Source: parts[0], Target: parts[1]}, nil

	case 3:
		left := Mapping{Source: parts[0] + ":" + parts[1], Target: parts[2]}
		right := Mapping{Source: parts[0], Target: parts[1] + ":" + parts[2]}

		leftValid := left.Source != "" && left.Target != ""
		rightValid := right.Source != "" && right.Target != ""

		switch {
		case leftValid && !rightValid:
			return left, nil
		case rightValid && !leftValid:
			return right, nil
		case !leftValid && !rightValid:
			return Mapping{}, fmt.Errorf("dispatch: unparseable mapping %q", raw)
		}

		// Both readings work; the colon belongs to the longer component.
		if len(left.Source)-len(left.Target) >= len(right.Target)-len(right.Source) {
			return left, nil
		}

		return right, nil

	default:
		return Mapping{}, fmt.Errorf("dispatch: mapping %q must be source:target", raw)
	}
}

// ApplyMappings rewrites target through each mapping in order.
func ApplyMappings(target string, mappings []Mapping) string {
	for _, m := range mappings {
		target = strings.ReplaceAll(target, m.Source, m.Target)
	}

	return target
}
