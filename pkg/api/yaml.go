package api

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Aggregations is an ordered list of aggregations. In YAML it is written
// either as a mapping of column to function, which keeps document order, or as
// a list of {column, function, as} entries.
type Aggregations []Aggregation

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Aggregations) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Aggregations, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var column, function string
			if err := node.Content[i].Decode(&column); err != nil {
				return fmt.Errorf("aggregation column: %w", err)
			}
			if err := node.Content[i+1].Decode(&function); err != nil {
				return fmt.Errorf("aggregation %q function: %w", column, err)
			}
			out = append(out, Aggregation{Column: column, Function: function})
		}
		*a = out
		return nil
	case yaml.SequenceNode:
		var list []Aggregation
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: aggregations must be a mapping or a list", node.Line)
	}
}

// Ascending holds sort directions. In YAML it is a single bool applied to
// every sort column or a list with one bool per column.
type Ascending []bool

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Ascending) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*a = Ascending{b}
		return nil
	case yaml.SequenceNode:
		var list []bool
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: ascending must be a bool or a list of bools", node.Line)
	}
}

// For returns the direction of the i-th of n sort columns.
func (a Ascending) For(i int) bool {
	switch {
	case len(a) == 0:
		return true
	case len(a) == 1:
		return a[0]
	default:
		return a[i]
	}
}
