package packager

import "strings"

// Substitute expands $name and ${name} references in template from vars.
// "$$" escapes a literal dollar sign. References to unknown variables (and
// malformed references) are left in place untouched, so a template can carry
// placeholders that a later packaging stage fills in.
func Substitute(template string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}

		// At a '$'. Decide between escape, ${name}, $name, or literal.
		if i+1 >= len(template) {
			b.WriteByte('$')
			i++
			continue
		}

		next := template[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i += 2
		case next == '{':
			end := strings.IndexByte(template[i+2:], '}')
			if end < 0 {
				b.WriteByte('$')
				i++
				continue
			}
			name := template[i+2 : i+2+end]
			if value, ok := lookup(vars, name); ok {
				b.WriteString(value)
			} else {
				b.WriteString(template[i : i+2+end+1])
			}
			i += 2 + end + 1
		case isIdentStart(next):
			j := i + 1
			for j < len(template) && isIdentPart(template[j]) {
				j++
			}
			name := template[i+1 : j]
			if value, ok := vars[name]; ok {
				b.WriteString(value)
			} else {
				b.WriteString(template[i:j])
			}
			i = j
		default:
			b.WriteByte('$')
			i++
		}
	}

	return b.String()
}

func lookup(vars map[string]string, name string) (string, bool) {
	if name == "" || !isIdentStart(name[0]) {
		return "", false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return "", false
		}
	}
	value, ok := vars[name]
	return value, ok
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
