package findings

// DefaultMessages maps rule names to their message templates. Templates are
// rendered with pongo2 and may reference any key of the finding context.
var DefaultMessages = map[string]string{
	"required":  "{{ field }} is required",
	"minLength": "{{ field }} must have at least {{ length }} characters.",
	"maxLength": "{{ field }} must have no more than {{ length }} characters.",
	"pattern":   "{{ field }} does not match the pattern {{ pattern }}",
	"email":     "{{ field }} must be a valid email.",
	"min":       "{{ field }} cannot be less than {{ min }}.",
	"max":       "{{ field }} cannot be greater than {{ max }}.",
	"minDate":   "{{ field }} should not contain date before {{ minDate }}",
	"maxDate":   "{{ field }} should not contain date after {{ maxDate }}",
	"date":      "{{ field }} is not a valid date.",
	"number":    "{{ field }} must be a number.",
	"select":    "{{ field }} contains an invalid selection",
	"unique":    "{{ field }} must be unique",
	"custom":    "{{ field }} is invalid",
}

// MessageFor returns the template registered for rule, or a generic one.
func MessageFor(rule string) string {
	if tpl, ok := DefaultMessages[rule]; ok {
		return tpl
	}
	return "{{ field }} is invalid"
}
