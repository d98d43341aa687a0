package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingVariable is returned by Template.Render when a placeholder has no
// value. Callers fall back to the unformatted template text.
var ErrMissingVariable = errors.New("missing template variable")

// Template is a compiled prompt template. Placeholders are written {key} and
// substituted from session state; {{ and }} escape literal braces. Rendering
// is all-or-nothing: if any placeholder is missing the caller gets
// ErrMissingVariable and no partial substitution.
type Template struct {
	src      string
	segments []segment
	keys     []string
}

type segment struct {
	text        string
	placeholder bool
}

// ParseTemplate compiles a prompt template, rejecting malformed placeholder
// syntax so definition mistakes surface at compile time rather than per
// request.
func ParseTemplate(src string) (*Template, error) {
	t := &Template{src: src}
	var literal strings.Builder
	seen := make(map[string]bool)
	i := 0
	for i < len(src) {
		ch := src[i]
		switch ch {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				literal.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder at position %d", i)
			}
			name := src[i+1 : i+end]
			if !isValidPlaceholder(name) {
				return nil, fmt.Errorf("invalid placeholder %q at position %d", "{"+name+"}", i)
			}
			if literal.Len() > 0 {
				t.segments = append(t.segments, segment{text: literal.String()})
				literal.Reset()
			}
			t.segments = append(t.segments, segment{text: name, placeholder: true})
			if !seen[name] {
				seen[name] = true
				t.keys = append(t.keys, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				literal.WriteByte('}')
				i += 2
				continue
			}
			return nil, fmt.Errorf("unmatched %q at position %d", "}", i)
		default:
			literal.WriteByte(ch)
			i++
		}
	}
	if literal.Len() > 0 {
		t.segments = append(t.segments, segment{text: literal.String()})
	}
	return t, nil
}

func isValidPlaceholder(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if i == 0 && !isIdentStart(name[i]) {
			return false
		}
		if i > 0 && !isIdentPart(name[i]) {
			return false
		}
	}
	return true
}

// Render substitutes every placeholder from vars. A placeholder absent from
// vars aborts the render with ErrMissingVariable naming the key.
func (t *Template) Render(vars map[string]string) (string, error) {
	var out strings.Builder
	for _, seg := range t.segments {
		if !seg.placeholder {
			out.WriteString(seg.text)
			continue
		}
		val, ok := vars[seg.text]
		if !ok {
			return "", fmt.Errorf("%w %q", ErrMissingVariable, seg.text)
		}
		out.WriteString(val)
	}
	return out.String(), nil
}

// Keys returns the distinct placeholder names in first-appearance order.
func (t *Template) Keys() []string {
	return t.keys
}

// Source returns the original template text.
func (t *Template) Source() string {
	return t.src
}
