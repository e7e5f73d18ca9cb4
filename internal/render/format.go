package render

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"golang.org/x/text/unicode/norm"

	"valter-dash/internal/model"
	"valter-dash/internal/schema"
)

const NullDisplay = "-"

// Formatter renders scalar cell values for display. Numbers follow the
// configured locale; everything else is shown as-is.
type Formatter struct {
	p *message.Printer
}

func NewFormatter(g model.GlobalSettings) Formatter {
	tag, err := language.Parse(strings.TrimSpace(g.Locale))
	if err != nil || g.Locale == "" {
		tag = language.English
	}
	return Formatter{p: message.NewPrinter(tag)}
}

// Value formats v. Composite values report ok=false and are not rendered.
func (f Formatter) Value(v any) (string, bool) {
	if f.p == nil {
		f = NewFormatter(model.GlobalSettings{})
	}
	switch t := v.(type) {
	case nil:
		return NullDisplay, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return f.p.Sprint(number.Decimal(i)), true
		}
		if fl, err := t.Float64(); err == nil {
			return f.p.Sprint(number.Decimal(fl, number.MaxFractionDigits(2))), true
		}
		return t.String(), true
	case float64:
		if t == float64(int64(t)) {
			return f.p.Sprint(number.Decimal(int64(t))), true
		}
		return f.p.Sprint(number.Decimal(t, number.MaxFractionDigits(2))), true
	case int:
		return f.p.Sprint(number.Decimal(t)), true
	case int64:
		return f.p.Sprint(number.Decimal(t)), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		if schema.IsComposite(v) {
			return "", false
		}
		return schema.Scalar(v)
	}
}

// Fold lowercases s and strips diacritics so "Čvor" matches "cvor" in
// the sidebar filter.
func Fold(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
