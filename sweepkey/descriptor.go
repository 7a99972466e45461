package sweepkey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// reShape is the cheap gate deciding whether a string is descriptor shaped
// at all. Anything matching it is committed to the descriptor format:
// failing the semantic checks afterwards is an error, not a fall through.
var reShape = regexp.MustCompile(`^([a-z]{2,11})\(.+\)(#[0-9a-z]{8})?$`)

// scriptFuncs are the script expression names the parser knows about.
var scriptFuncs = map[string]bool{
	"pk":          true,
	"pkh":         true,
	"wpkh":        true,
	"sh":          true,
	"wsh":         true,
	"tr":          true,
	"multi":       true,
	"sortedmulti": true,
}

// topFuncs are the script expressions that may appear at the top level of
// a descriptor.
var topFuncs = map[string]bool{
	"pk":   true,
	"pkh":  true,
	"wpkh": true,
	"sh":   true,
	"wsh":  true,
	"tr":   true,
}

// innerFuncs maps a wrapper function to the functions it may contain. A
// wrapper absent from the map only accepts key material.
var innerFuncs = map[string]map[string]bool{
	"sh": {
		"wpkh":        true,
		"wsh":         true,
		"pk":          true,
		"pkh":         true,
		"multi":       true,
		"sortedmulti": true,
	},
	"wsh": {
		"pk":          true,
		"pkh":         true,
		"multi":       true,
		"sortedmulti": true,
	},
}

// IsDescriptorShaped reports whether s looks like an output descriptor:
// a known script function wrapping an argument list, with an optional
// checksum. Shape only, no semantic validation.
func IsDescriptorShaped(s string) bool {
	match := reShape.FindStringSubmatch(s)

	return match != nil && scriptFuncs[match[1]]
}

// Descriptor is a parsed and sanity checked output descriptor.
type Descriptor struct {
	raw string

	// root is the top level script expression.
	root *descNode
}

// descNode is one node of the descriptor expression tree: either a script
// function wrapping further nodes, or raw key material.
type descNode struct {
	// fn is the script function name, empty for key material.
	fn string

	// args are the wrapped expressions, nil for key material.
	args []*descNode

	// key is the key expression, only set when fn is empty.
	key string
}

// String returns the descriptor as it was supplied, checksum included.
func (d *Descriptor) String() string { return d.raw }

// ParseDescriptor parses an output descriptor and runs the semantic sanity
// pass over its nesting: script functions that expect key material must not
// wrap further script functions (a pkh() inside a pkh() is nonsense), sh()
// is only meaningful at the top level, and wsh() cannot contain nested
// witness scripts.
func ParseDescriptor(material string) (*Key, error) {
	material = strings.TrimSpace(material)
	if !IsDescriptorShaped(material) {
		return nil, fmt.Errorf("%w: %q is not descriptor shaped",
			ErrInvalidDescriptor, material)
	}

	// The checksum format was already shape checked, drop it for
	// parsing.
	core := material
	if idx := strings.LastIndex(core, "#"); idx >= 0 {
		core = core[:idx]
	}

	root, err := parseDescExpr(core)
	if err != nil {
		return nil, err
	}

	if root.fn == "" || !topFuncs[root.fn] {
		return nil, fmt.Errorf("%w: %s cannot be used at the top "+
			"level", ErrInvalidDescriptor, root.fn)
	}
	if err := checkNesting(root, true); err != nil {
		return nil, err
	}

	desc := &Descriptor{raw: material, root: root}

	return &Key{kind: kindDescriptor, desc: desc}, nil
}

// parseDescExpr parses a single descriptor expression into its tree form.
func parseDescExpr(expr string) (*descNode, error) {
	open := strings.Index(expr, "(")
	if open < 0 {
		if expr == "" {
			return nil, fmt.Errorf("%w: empty expression",
				ErrInvalidDescriptor)
		}
		if strings.ContainsAny(expr, "()") {
			return nil, fmt.Errorf("%w: unbalanced parentheses "+
				"in %q", ErrInvalidDescriptor, expr)
		}

		return &descNode{key: expr}, nil
	}

	name := expr[:open]
	if !scriptFuncs[name] {
		return nil, fmt.Errorf("%w: unknown script function %q",
			ErrInvalidDescriptor, name)
	}
	if !strings.HasSuffix(expr, ")") {
		return nil, fmt.Errorf("%w: unbalanced parentheses in %q",
			ErrInvalidDescriptor, expr)
	}

	inner := expr[open+1 : len(expr)-1]

	if name == "multi" || name == "sortedmulti" {
		return parseMulti(name, inner)
	}

	arg, err := parseDescExpr(inner)
	if err != nil {
		return nil, err
	}

	return &descNode{fn: name, args: []*descNode{arg}}, nil
}

// parseMulti parses the threshold and key list of a multi() expression.
func parseMulti(name, inner string) (*descNode, error) {
	parts := strings.Split(inner, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %s needs a threshold and at "+
			"least one key", ErrInvalidDescriptor, name)
	}

	threshold, err := strconv.Atoi(parts[0])
	if err != nil || threshold < 1 || threshold > len(parts)-1 {
		return nil, fmt.Errorf("%w: invalid %s threshold %q",
			ErrInvalidDescriptor, name, parts[0])
	}

	node := &descNode{fn: name}
	for _, part := range parts[1:] {
		key, err := parseDescExpr(part)
		if err != nil {
			return nil, err
		}
		if key.fn != "" {
			return nil, fmt.Errorf("%w: %s expects key "+
				"material, found nested %s()",
				ErrInvalidDescriptor, name, key.fn)
		}
		node.args = append(node.args, key)
	}

	return node, nil
}

// checkNesting enforces the wrapper rules over the parsed tree.
func checkNesting(node *descNode, top bool) error {
	if node.fn == "" {
		return nil
	}

	if node.fn == "sh" && !top {
		return fmt.Errorf("%w: sh() is only valid at the top level",
			ErrInvalidDescriptor)
	}

	allowed := innerFuncs[node.fn]
	for _, arg := range node.args {
		if arg.fn != "" {
			if allowed == nil {
				return fmt.Errorf("%w: %s() expects key "+
					"material, found nested %s()",
					ErrInvalidDescriptor, node.fn, arg.fn)
			}
			if !allowed[arg.fn] {
				return fmt.Errorf("%w: %s() cannot wrap "+
					"%s()", ErrInvalidDescriptor, node.fn,
					arg.fn)
			}
		}

		if err := checkNesting(arg, false); err != nil {
			return err
		}
	}

	return nil
}
