package desc

import (
	"fmt"
)

// AttrType is the declared type of a node attribute.
type AttrType string

const (
	TypeFile   AttrType = "file"
	TypeString AttrType = "string"
	TypeFloat  AttrType = "float"
	TypeInt    AttrType = "int"
	TypeBool   AttrType = "bool"
	TypeChoice AttrType = "choice"
	TypeGroup  AttrType = "group"
)

// Range bounds a numeric attribute.
type Range struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// Attribute describes one input or output parameter of a node.
type Attribute struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Type        AttrType `yaml:"type"`
	Value       any      `yaml:"value,omitempty"`
	Range       *Range   `yaml:"range,omitempty"`
	// Values lists the allowed choices for a choice attribute.
	Values    []string `yaml:"values,omitempty"`
	Exclusive bool     `yaml:"exclusive,omitempty"`
	Advanced  bool     `yaml:"advanced,omitempty"`
	// JoinChar joins the leaf values of a group into a single command
	// line value.
	JoinChar string `yaml:"joinChar,omitempty"`
	// Group holds the children of a group attribute.
	Group []Attribute `yaml:"group,omitempty"`
	// OmitFromCommandLine excludes the attribute from {allParams}
	// expansion. Used for parameters consumed by the pipeline itself.
	OmitFromCommandLine bool `yaml:"omitFromCommandLine,omitempty"`
}

// IsGroup reports whether the attribute nests children.
func (a *Attribute) IsGroup() bool {
	return a.Type == TypeGroup
}

// Child returns the named child of a group attribute, or nil.
func (a *Attribute) Child(name string) *Attribute {
	for i := range a.Group {
		if a.Group[i].Name == name {
			return &a.Group[i]
		}
	}
	return nil
}

// Parallelization describes how a node splits its work into chunks.
type Parallelization struct {
	BlockSize int `yaml:"blockSize"`
}

// Node is a declarative node descriptor: what the node is, the command it
// runs, and the schema of its parameters.
type Node struct {
	Name            string           `yaml:"name"`
	Category        string           `yaml:"category,omitempty"`
	Documentation   string           `yaml:"documentation,omitempty"`
	CommandLine     string           `yaml:"commandLine"`
	Parallelization *Parallelization `yaml:"parallelization,omitempty"`
	Inputs          []Attribute      `yaml:"inputs"`
	Outputs         []Attribute      `yaml:"outputs"`
}

// Input returns the named input attribute, or nil.
func (n *Node) Input(name string) *Attribute {
	for i := range n.Inputs {
		if n.Inputs[i].Name == name {
			return &n.Inputs[i]
		}
	}
	return nil
}

// Output returns the named output attribute, or nil.
func (n *Node) Output(name string) *Attribute {
	for i := range n.Outputs {
		if n.Outputs[i].Name == name {
			return &n.Outputs[i]
		}
	}
	return nil
}

// Validate checks the descriptor for structural problems.
func (n *Node) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("node descriptor has no name")
	}
	if n.CommandLine == "" {
		return fmt.Errorf("node %s has no command line", n.Name)
	}
	seen := make(map[string]bool)
	for i := range n.Inputs {
		if err := validateAttr(&n.Inputs[i], seen); err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
	}
	for i := range n.Outputs {
		if err := validateAttr(&n.Outputs[i], seen); err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
	}
	return nil
}

func validateAttr(a *Attribute, seen map[string]bool) error {
	if a.Name == "" {
		return fmt.Errorf("attribute has no name")
	}
	if seen[a.Name] {
		return fmt.Errorf("duplicate attribute name %q", a.Name)
	}
	seen[a.Name] = true

	switch a.Type {
	case TypeFile, TypeString, TypeFloat, TypeInt, TypeBool:
	case TypeChoice:
		if len(a.Values) == 0 {
			return fmt.Errorf("choice attribute %q has no values", a.Name)
		}
		if s, ok := a.Value.(string); ok {
			found := false
			for _, v := range a.Values {
				if v == s {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("choice attribute %q default %q not in values", a.Name, s)
			}
		}
	case TypeGroup:
		if len(a.Group) == 0 {
			return fmt.Errorf("group attribute %q is empty", a.Name)
		}
		childSeen := make(map[string]bool)
		for i := range a.Group {
			if err := validateAttr(&a.Group[i], childSeen); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("attribute %q has unknown type %q", a.Name, a.Type)
	}

	if a.Range != nil && a.Range.Min > a.Range.Max {
		return fmt.Errorf("attribute %q has inverted range", a.Name)
	}
	return nil
}
