package extract

import (
	"regexp"
	"strings"
)

// Field is a named destination for section text.
type Field string

// Routed fields. Sections matching no rule land in key_details.
const (
	FieldImportantDates Field = "important_dates"
	FieldEligibility    Field = "eligibility"
	FieldApplicationFee Field = "application_fee"
	FieldHowToApply     Field = "how_to_apply"
)

// Rule routes a section to Field when its lowercased heading contains any keyword.
type Rule struct {
	Keywords []string
	Field    Field
}

// DefaultRules is evaluated top to bottom; the first match wins.
var DefaultRules = []Rule{
	{Keywords: []string{"important date", "last date", "application date", "dates"}, Field: FieldImportantDates},
	{Keywords: []string{"eligibility", "qualification", "educational"}, Field: FieldEligibility},
	{Keywords: []string{"application fee", "fee details", "fee"}, Field: FieldApplicationFee},
	{Keywords: []string{"how to apply", "application process", "how to fill"}, Field: FieldHowToApply},
}

// Derived holds the routed section text.
type Derived struct {
	ImportantDates string
	Eligibility    string
	ApplicationFee string
	HowToApply     string
	KeyDetails     map[string]string
}

func (d *Derived) appendTo(f Field, text string) {
	var dst *string
	switch f {
	case FieldImportantDates:
		dst = &d.ImportantDates
	case FieldEligibility:
		dst = &d.Eligibility
	case FieldApplicationFee:
		dst = &d.ApplicationFee
	case FieldHowToApply:
		dst = &d.HowToApply
	default:
		return
	}
	if *dst == "" {
		*dst = text
		return
	}
	*dst += "\n" + text
}

var dateLine = regexp.MustCompile(
	`(?i)(last date|application (?:start|end|begin)(?: date)?|exam date)[^0-9\n]{0,40}?(\d{1,2}[-/]\d{1,2}[-/]\d{4})`)

// Derive routes sections through rules. When no section yields important
// dates, date lines are recovered from fullText by pattern.
func Derive(sections []Section, fullText string, rules []Rule) Derived {
	if rules == nil {
		rules = DefaultRules
	}
	d := Derived{KeyDetails: map[string]string{}}
	for _, s := range sections {
		heading := strings.ToLower(s.Heading)
		routed := false
		for _, r := range rules {
			if containsAny(heading, r.Keywords) {
				d.appendTo(r.Field, s.Text)
				routed = true
				break
			}
		}
		if routed {
			continue
		}
		if prev, ok := d.KeyDetails[s.Heading]; ok {
			d.KeyDetails[s.Heading] = prev + "\n" + s.Text
		} else {
			d.KeyDetails[s.Heading] = s.Text
		}
	}
	if d.ImportantDates == "" {
		d.ImportantDates = DatesFromText(fullText)
	}
	return d
}

// DatesFromText finds "<label> ... dd-mm-yyyy" pairs and renders one per line.
func DatesFromText(text string) string {
	matches := dateLine.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	lines := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		line := titleCase(m[1]) + ": " + m[2]
		if seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
