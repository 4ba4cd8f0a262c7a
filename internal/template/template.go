// Package template is the path-template engine: parsing a string
// containing `{name}` placeholders into an ordered sequence of literal
// and placeholder segments, validating the placeholder set against a
// role's schema, and rendering against a value map.
package template

import (
	"fmt"
	"strings"

	"github.com/DiamondLightSource/numtracker/internal/numerrors"
)

// Role identifies which placeholder schema a template must satisfy.
type Role string

const (
	RoleDirectory Role = "directory"
	RoleScan      Role = "scan"
	RoleDetector  Role = "detector"
)

// Segment is either a literal run of text or a named placeholder.
type Segment struct {
	Literal     string
	Placeholder string
}

func (s Segment) isPlaceholder() bool { return s.Placeholder != "" }

// Template is a parsed, validated path pattern. It is a value object:
// callers re-parse the raw string on every load rather than caching
// the parse across instrument-config reloads.
type Template struct {
	raw      string
	segments []Segment
	role     Role
}

// Raw returns the original template string.
func (t Template) Raw() string { return t.raw }

// roleSchema describes the allowed/required placeholders and the
// absolute/relative discipline for a role.
type roleSchema struct {
	allowed     map[string]bool
	required    []string
	mustBeAbs   bool
	mustBeRel   bool
}

var schemas = map[Role]roleSchema{
	RoleDirectory: {
		allowed:   set("instrument", "proposal", "visit", "year"),
		required:  nil,
		mustBeAbs: true,
	},
	RoleScan: {
		allowed:   set("instrument", "subdirectory", "scan_number"),
		required:  []string{"scan_number"},
		mustBeRel: true,
	},
	RoleDetector: {
		allowed:   set("instrument", "subdirectory", "scan_number", "detector"),
		required:  []string{"scan_number", "detector"},
		mustBeRel: true,
	},
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Parse tokenises raw into literal/placeholder segments. A literal `{`
// or `}` is not supported: unbalanced or nested braces are parse
// errors.
func Parse(role Role, raw string) (Template, error) {
	if raw == "" {
		return Template{}, numerrors.InvalidTemplateErr(string(role), "template must not be empty")
	}

	segments, err := tokenize(raw)
	if err != nil {
		return Template{}, numerrors.InvalidTemplateErr(string(role), err.Error())
	}

	schema, ok := schemas[role]
	if !ok {
		return Template{}, numerrors.InvalidTemplateErr(string(role), fmt.Sprintf("unknown role %q", role))
	}

	if err := validateDiscipline(schema, raw); err != nil {
		return Template{}, numerrors.InvalidTemplateErr(string(role), err.Error())
	}

	seen := make(map[string]bool)
	for _, seg := range segments {
		if !seg.isPlaceholder() {
			continue
		}
		if !schema.allowed[seg.Placeholder] {
			return Template{}, numerrors.InvalidTemplateErr(string(role), fmt.Sprintf("unknown placeholder {%s}", seg.Placeholder))
		}
		seen[seg.Placeholder] = true
	}
	for _, req := range schema.required {
		if !seen[req] {
			return Template{}, numerrors.InvalidTemplateErr(string(role), fmt.Sprintf("missing {%s}", req))
		}
	}

	return Template{raw: raw, segments: segments, role: role}, nil
}

func validateDiscipline(schema roleSchema, raw string) error {
	abs := strings.HasPrefix(raw, "/")
	if schema.mustBeAbs && !abs {
		return fmt.Errorf("template must be an absolute path (start with '/')")
	}
	if schema.mustBeRel && abs {
		return fmt.Errorf("template must be a relative path (must not start with '/')")
	}
	return nil
}

func tokenize(raw string) ([]Segment, error) {
	var segments []Segment
	var lit strings.Builder
	i := 0
	n := len(raw)
	depth := 0
	var ph strings.Builder

	flushLiteral := func() {
		if lit.Len() > 0 {
			segments = append(segments, Segment{Literal: lit.String()})
			lit.Reset()
		}
	}

	for i < n {
		c := raw[i]
		switch c {
		case '{':
			if depth > 0 {
				return nil, fmt.Errorf("nested or unbalanced '{' at offset %d", i)
			}
			depth = 1
			flushLiteral()
		case '}':
			if depth == 0 {
				return nil, fmt.Errorf("unbalanced '}' at offset %d", i)
			}
			depth = 0
			name := ph.String()
			if name == "" {
				return nil, fmt.Errorf("empty placeholder '{}' at offset %d", i)
			}
			segments = append(segments, Segment{Placeholder: name})
			ph.Reset()
		default:
			if depth == 1 {
				ph.WriteByte(c)
			} else {
				lit.WriteByte(c)
			}
		}
		i++
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '{' with no closing '}'")
	}
	flushLiteral()
	return segments, nil
}

// Render substitutes each placeholder from values. A missing key is a
// render error (distinct from the numerrors kinds: rendering only
// happens after validation has already succeeded, so a missing key
// here indicates a caller bug rather than user input, and is reported
// as a plain error).
func (t Template) Render(values map[string]string) (string, error) {
	var out strings.Builder
	for _, seg := range t.segments {
		if !seg.isPlaceholder() {
			out.WriteString(seg.Literal)
			continue
		}
		v, ok := values[seg.Placeholder]
		if !ok {
			return "", fmt.Errorf("render %s template: missing value for {%s}", t.role, seg.Placeholder)
		}
		out.WriteString(v)
	}
	return out.String(), nil
}
