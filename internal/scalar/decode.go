package scalar

import (
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// ErrNonFinite is returned for NaN and infinite numbers, which have no SQL
// literal form.
var ErrNonFinite = errors.New("non-finite number")

// Decode parses a YAML (or JSON) document into a Value. Mapping key order
// is preserved. An empty document decodes to Null.
func Decode(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if doc.Kind == 0 {
		return Null{}, nil
	}
	return FromNode(&doc)
}

// FromNode converts a decoded yaml.Node tree into a Value.
func FromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null{}, nil
		}
		return FromNode(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("line %d: dangling alias", n.Line)
		}
		return FromNode(n.Alias)
	case yaml.SequenceNode:
		seq := make(Sequence, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromNode(c)
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		}
		return seq, nil
	case yaml.MappingNode:
		m := NewMapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			if k.Value == "<<" && k.ShortTag() == "!!merge" {
				if err := mergeInto(m, v); err != nil {
					return nil, err
				}
				continue
			}
			val, err := FromNode(v)
			if err != nil {
				return nil, err
			}
			m.Set(k.Value, val)
		}
		return m, nil
	case yaml.ScalarNode:
		return scalarFromNode(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

func mergeInto(m *Mapping, n *yaml.Node) error {
	v, err := FromNode(n)
	if err != nil {
		return err
	}
	var sources []Value
	switch x := v.(type) {
	case *Mapping:
		sources = []Value{x}
	case Sequence:
		sources = x
	default:
		return fmt.Errorf("line %d: merge value must be a mapping", n.Line)
	}
	for _, s := range sources {
		src, ok := s.(*Mapping)
		if !ok {
			return fmt.Errorf("line %d: merge value must be a mapping", n.Line)
		}
		for _, k := range src.Keys {
			if _, exists := m.Values[k]; !exists {
				m.Set(k, src.Values[k])
			}
		}
	}
	return nil
}

func scalarFromNode(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return Int(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err == nil {
			return Uint(u), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Float(f), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("line %d: %w: %s", n.Line, ErrNonFinite, n.Value)
		}
		return Float(f), nil
	default:
		// !!str, !!timestamp, !!binary and custom tags keep their literal text
		return String(n.Value), nil
	}
}
