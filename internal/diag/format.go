package diag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/value"
)

// Placeholder names resolved from the element itself rather than from a
// property.
const (
	NameID          = "Id"
	NameDomainModel = "DomainModel"
	NameSchemaInfo  = "SchemaInfo"
)

// maxWidth caps alignment and zero-padding widths.
const maxWidth = 1024

// reserved names get a positional slot per occurrence; every other name
// shares one slot across all of its occurrences.
var reserved = map[string]bool{
	NameID:          true,
	NameDomainModel: true,
	NameSchemaInfo:  true,
}

// Format substitutes {name}, {name,width} and {name:format} placeholders
// in template with values taken from element. Without an element the
// template is returned unchanged. Names that resolve to nothing render as
// the empty string. "{{" and "}}" produce literal braces.
func Format(template string, element schema.Element) string {
	if element == nil {
		return template
	}
	rewritten, names := compile(template)
	args := make([]string, len(names))
	for i, name := range names {
		args[i] = resolve(name, element)
	}
	return render(rewritten, args)
}

// compile rewrites named placeholders into positional ones and returns the
// name bound to each position.
func compile(template string) (string, []string) {
	var (
		b     strings.Builder
		names []string
		slots = make(map[string]int)
	)
	for i := 0; i < len(template); {
		c := template[i]
		if c == '{' && i+1 < len(template) && template[i+1] == '{' {
			b.WriteString("{{")
			i += 2
			continue
		}
		if c != '{' {
			b.WriteByte(c)
			i++
			continue
		}
		end := i + 1
		for end < len(template) && isNameByte(template[end]) {
			end++
		}
		if end == i+1 || end >= len(template) || !strings.ContainsRune(",:}", rune(template[end])) {
			b.WriteByte(c)
			i++
			continue
		}
		name := template[i+1 : end]
		slot, seen := slots[name]
		if !seen || reserved[name] {
			slot = len(names)
			names = append(names, name)
			if !reserved[name] {
				slots[name] = slot
			}
		}
		b.WriteByte('{')
		b.WriteString(strconv.Itoa(slot))
		i = end
	}
	return b.String(), names
}

func isNameByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func resolve(name string, element schema.Element) string {
	switch name {
	case NameID:
		return element.ID().String()
	case NameDomainModel:
		return element.DomainModel()
	case NameSchemaInfo:
		return element.SchemaID().String()
	}
	v, ok := element.PropertyValue(name)
	if !ok {
		return ""
	}
	return value.Text(v)
}

// render expands {index[,alignment][:format]} items. Malformed items are
// copied through literally.
func render(format string, args []string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		c := format[i]
		switch {
		case c == '{' && i+1 < len(format) && format[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(format) && format[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				b.WriteString(format[i:])
				return b.String()
			}
			item := format[i+1 : i+end]
			out, ok := renderItem(item, args)
			if !ok {
				b.WriteString(format[i : i+end+1])
			} else {
				b.WriteString(out)
			}
			i += end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func renderItem(item string, args []string) (string, bool) {
	verb := ""
	if k := strings.IndexByte(item, ':'); k >= 0 {
		item, verb = item[:k], item[k+1:]
	}
	width := 0
	if k := strings.IndexByte(item, ','); k >= 0 {
		w, err := strconv.Atoi(strings.TrimSpace(item[k+1:]))
		if err != nil {
			return "", false
		}
		item, width = item[:k], w
	}
	idx, err := strconv.Atoi(strings.TrimSpace(item))
	if err != nil || idx < 0 || idx >= len(args) {
		return "", false
	}
	width = max(-maxWidth, min(width, maxWidth))
	s := applyVerb(args[idx], verb)
	n := utf8.RuneCountInString(s)
	switch {
	case width > n:
		s = strings.Repeat(" ", width-n) + s
	case -width > n:
		s += strings.Repeat(" ", -width-n)
	}
	return s, true
}

// applyVerb supports a small set of format strings: "U" and "L" change
// case, "D<n>" zero-pads integers, and anything starting with '%' is a
// fmt verb applied to the text.
func applyVerb(s, verb string) string {
	switch {
	case verb == "":
		return s
	case verb == "U":
		return strings.ToUpper(s)
	case verb == "L":
		return strings.ToLower(s)
	case verb[0] == 'D':
		n, err := strconv.ParseInt(s, 10, 64)
		digits, werr := strconv.Atoi(verb[1:])
		if err != nil || werr != nil {
			return s
		}
		return fmt.Sprintf("%0*d", min(digits, maxWidth), n)
	case verb[0] == '%':
		return fmt.Sprintf(verb, s)
	default:
		return s
	}
}
