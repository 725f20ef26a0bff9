package firmware

import (
	"os"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Fixture is a set of simulated devices described in YAML, e.g.
//
//	adapter:
//	  name: AC
//	  methods:
//	    _PSR: 1
//	batteries:
//	  - name: BAT0
//	    methods:
//	      _STA: 0x1f
//	      _BST: [2, 1500, 30000, 12000]
//
// Integers, strings, booleans, !!binary buffers and nested sequences are
// supported.
type Fixture struct {
	Adapter   *Mock
	Batteries []*Mock
}

type fixtureFile struct {
	Adapter   *fixtureDevice  `yaml:"adapter"`
	Batteries []fixtureDevice `yaml:"batteries"`
}

type fixtureDevice struct {
	Name    string               `yaml:"name"`
	Methods map[string]yaml.Node `yaml:"methods"`
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read fixture %s", path)
	}
	f, err := ParseFixture(b)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse fixture %s", path)
	}
	return f, nil
}

// ParseFixture decodes fixture YAML.
func ParseFixture(b []byte) (*Fixture, error) {
	var raw fixtureFile
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal fixture")
	}

	f := &Fixture{}
	if raw.Adapter != nil {
		m, err := raw.Adapter.mock("AC")
		if err != nil {
			return nil, err
		}
		f.Adapter = m
	}
	for i := range raw.Batteries {
		m, err := raw.Batteries[i].mock("BAT" + strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		f.Batteries = append(f.Batteries, m)
	}
	return f, nil
}

func (d *fixtureDevice) mock(defaultName string) (*Mock, error) {
	name := d.Name
	if name == "" {
		name = defaultName
	}

	methods := make(map[string]Object, len(d.Methods))
	for method, node := range d.Methods {
		n := node
		v, err := objectFromNode(&n)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid value for %s on %s", method, name)
		}
		methods[method] = v
	}
	return NewMock(name, methods), nil
}

func objectFromNode(n *yaml.Node) (Object, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return objectFromNode(n.Alias)
	case yaml.SequenceNode:
		items := make([]Object, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := objectFromNode(c)
			if err != nil {
				return Object{}, err
			}
			items = append(items, v)
		}
		return Package(items...), nil
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!int":
			var i int64
			if err := n.Decode(&i); err != nil {
				return Object{}, err
			}
			return Integer(uint64(i)), nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return Object{}, err
			}
			if b {
				return Integer(1), nil
			}
			return Integer(0), nil
		case "!!binary":
			var s string
			if err := n.Decode(&s); err != nil {
				return Object{}, err
			}
			return Buffer([]byte(s)), nil
		default:
			return String(n.Value), nil
		}
	default:
		return Object{}, pkgerrors.Errorf("unsupported yaml node at line %d", n.Line)
	}
}
