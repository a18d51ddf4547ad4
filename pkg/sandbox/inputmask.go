package sandbox

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/dop251/goja"
)

var (
	integerPattern = regexp.MustCompile(`^[-+]?\d+$`)
	numericPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)$`)
)

// inputmaskObject exposes `Inputmask.isValid(value, mask)` and
// `Inputmask.format(value, mask)`. Masks use 9 for digits, a for letters and
// * for either; every other character is a literal. The aliases integer,
// numeric and email are understood as well. mask may be a string or an
// object with a mask or alias property.
func inputmaskObject(vm *goja.Runtime, live func()) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("isValid", func(value string, opts goja.Value) bool {
		live()
		return maskValid(value, maskSpec(opts))
	})
	_ = obj.Set("format", func(value string, opts goja.Value) string {
		live()
		return maskFormat(value, maskSpec(opts))
	})
	return obj
}

func maskSpec(opts goja.Value) string {
	switch typed := exportValue(opts).(type) {
	case string:
		return typed
	case map[string]any:
		if mask, ok := typed["mask"].(string); ok {
			return mask
		}
		if alias, ok := typed["alias"].(string); ok {
			return alias
		}
	}
	return ""
}

func maskValid(value, mask string) bool {
	switch mask {
	case "":
		return true
	case "integer":
		return integerPattern.MatchString(value)
	case "numeric", "decimal":
		return numericPattern.MatchString(value)
	case "email":
		addr, err := mail.ParseAddress(value)
		return err == nil && addr.Address == value
	}
	if matchesMask([]rune(value), []rune(mask)) {
		return true
	}
	raw := unmask(value)
	return len(raw) == slotCount(mask) && matchesMask([]rune(maskFormat(raw, mask)), []rune(mask))
}

func matchesMask(value, mask []rune) bool {
	if len(value) != len(mask) {
		return false
	}
	for idx, m := range mask {
		if !slotAccepts(m, value[idx]) {
			if isSlot(m) || value[idx] != m {
				return false
			}
		}
	}
	return true
}

func isSlot(m rune) bool {
	return m == '9' || m == 'a' || m == 'A' || m == '*'
}

func slotAccepts(m, r rune) bool {
	switch m {
	case '9':
		return unicode.IsDigit(r)
	case 'a', 'A':
		return unicode.IsLetter(r)
	case '*':
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	default:
		return false
	}
}

func slotCount(mask string) int {
	count := 0
	for _, m := range mask {
		if isSlot(m) {
			count++
		}
	}
	return count
}

func unmask(value string) []rune {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// maskFormat fills the mask slots with the letters and digits of value,
// stopping at the first slot that has no input left.
func maskFormat(value any, mask string) string {
	var raw []rune
	switch typed := value.(type) {
	case string:
		raw = unmask(typed)
	case []rune:
		raw = typed
	}
	if mask == "" || slotCount(mask) == 0 {
		return string(raw)
	}
	var b strings.Builder
	pos := 0
	for _, m := range mask {
		if !isSlot(m) {
			if pos >= len(raw) {
				break
			}
			b.WriteRune(m)
			continue
		}
		if pos >= len(raw) {
			break
		}
		r := raw[pos]
		if m == 'A' {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		pos++
	}
	return b.String()
}
