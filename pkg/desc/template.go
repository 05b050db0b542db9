package desc

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueSource resolves the current value of an attribute by dotted path
// (e.g. "boundingBox.bboxTranslation.x"). The instantiated parameter tree
// implements it; templates never read descriptor defaults directly.
type ValueSource interface {
	Lookup(path string) (any, bool)
}

// Env carries the per-chunk substitution context for command line and
// output path templates.
type Env struct {
	CacheDir   string
	NodeType   string
	UID        string
	RangeStart int
	RangeSize  int
}

// ExpandCommandLine builds the argv for one chunk from the node's command
// line template. {allParams} expands every input attribute not marked
// omitFromCommandLine to a --name value pair; groups join their leaf values
// with the group's joinChar.
func ExpandCommandLine(n *Node, src ValueSource, env Env) ([]string, error) {
	// Output names are valid placeholders too; they expand to their path
	// template resolved against the same context.
	res := &outputResolver{node: n, src: src, env: env}

	var argv []string
	for _, token := range strings.Fields(n.CommandLine) {
		if token == "{allParams}" {
			params, err := paramArgs(n, src)
			if err != nil {
				return nil, err
			}
			argv = append(argv, params...)
			continue
		}
		expanded, err := substitute(token, res, env)
		if err != nil {
			return nil, err
		}
		argv = append(argv, expanded)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("node %s expands to an empty command line", n.Name)
	}
	return argv, nil
}

// outputResolver resolves placeholders first against the live parameter
// values, then against the node's output path templates.
type outputResolver struct {
	node *Node
	src  ValueSource
	env  Env
}

func (r *outputResolver) Lookup(path string) (any, bool) {
	if v, ok := r.src.Lookup(path); ok {
		return v, true
	}
	out := r.node.Output(path)
	if out == nil {
		return nil, false
	}
	tmpl, ok := out.Value.(string)
	if !ok {
		return nil, false
	}
	expanded, err := substitute(tmpl, r.src, r.env)
	if err != nil {
		return nil, false
	}
	return expanded, true
}

// ExpandPath expands an output value template such as
// "{cache}/{nodeType}/{uid}/mesh.obj".
func ExpandPath(template string, src ValueSource, env Env) (string, error) {
	return substitute(template, src, env)
}

func paramArgs(n *Node, src ValueSource) ([]string, error) {
	var argv []string
	for i := range n.Inputs {
		a := &n.Inputs[i]
		if a.OmitFromCommandLine {
			continue
		}
		value, err := attrValue(a, a.Name, src)
		if err != nil {
			return nil, err
		}
		argv = append(argv, "--"+a.Name, value)
	}
	return argv, nil
}

// attrValue formats the current value of an attribute. For groups the leaf
// values are joined with the group's joinChar, innermost first.
func attrValue(a *Attribute, path string, src ValueSource) (string, error) {
	if a.IsGroup() {
		parts := make([]string, 0, len(a.Group))
		for i := range a.Group {
			child := &a.Group[i]
			v, err := attrValue(child, path+"."+child.Name, src)
			if err != nil {
				return "", err
			}
			parts = append(parts, v)
		}
		join := a.JoinChar
		if join == "" {
			join = ","
		}
		return strings.Join(parts, join), nil
	}

	v, ok := src.Lookup(path)
	if !ok {
		v = a.Value
	}
	return formatValue(v), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// substitute replaces {cache}, {nodeType}, {uid}, {rangeStart}, {rangeSize}
// and {attrName} placeholders in a single template token.
func substitute(token string, src ValueSource, env Env) (string, error) {
	out := token
	out = strings.ReplaceAll(out, "{cache}", env.CacheDir)
	out = strings.ReplaceAll(out, "{nodeType}", env.NodeType)
	out = strings.ReplaceAll(out, "{uid}", env.UID)
	out = strings.ReplaceAll(out, "{rangeStart}", strconv.Itoa(env.RangeStart))
	out = strings.ReplaceAll(out, "{rangeSize}", strconv.Itoa(env.RangeSize))

	for {
		start := strings.Index(out, "{")
		if start < 0 {
			return out, nil
		}
		end := strings.Index(out[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", token)
		}
		name := out[start+1 : start+end]
		v, ok := src.Lookup(name)
		if !ok {
			return "", fmt.Errorf("unknown placeholder {%s} in %q", name, token)
		}
		out = out[:start] + formatValue(v) + out[start+end+1:]
	}
}
