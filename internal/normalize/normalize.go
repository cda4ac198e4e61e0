// Package normalize implements the Normalizer (C2): a pure, deterministic
// value canonicalization function per declared field type (spec.md §4.2).
// New code — the teacher has no direct analogue — written in the
// aggregation/pure-function style of internal/extraction/keywords.go's
// GenerateKeywordDetails: no side effects, no shared state, every output
// derivable solely from its inputs (spec.md §3 invariant 6).
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

// Result is the outcome of one normalize call. A failed normalization never
// panics; it is a tagged failure the Decision Engine surfaces as an issue
// (spec.md §4.2).
type Result struct {
	OK     bool
	Reason string
	Text   string // canonical string form, used for comparison regardless of FieldType
}

// Normalize canonicalizes value according to fieldType and policy. It never
// throws; ill-typed input yields Result{OK:false}.
func Normalize(value any, fieldType models.FieldType, policy models.NormalizationRules) Result {
	s := toString(value)

	switch fieldType {
	case models.FieldNumber, models.FieldCurrency:
		return normalizeNumber(s, policy.Numbers)
	case models.FieldDate:
		return normalizeDate(s, policy.Dates)
	case models.FieldBoolean:
		return normalizeBool(s)
	default:
		return normalizeText(s, fieldType, policy)
	}
}

// Idempotent reports whether re-normalizing r's canonical text under the
// same field type/policy reproduces it (spec.md §8 property). It is not
// invoked by the core pipeline.
func Idempotent(r Result, fieldType models.FieldType, policy models.NormalizationRules) bool {
	if !r.OK {
		return true
	}
	again := Normalize(r.Text, fieldType, policy)
	return again.OK && again.Text == r.Text
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func applyWhitespace(s string, p models.WhitespacePolicy) string {
	if p.TrimLeading {
		s = strings.TrimLeft(s, " \t\n\r")
	}
	if p.TrimTrailing {
		s = strings.TrimRight(s, " \t\n\r")
	}
	if p.CollapseInternal {
		var b strings.Builder
		prevSpace := false
		for _, r := range s {
			isSpace := unicode.IsSpace(r)
			if isSpace {
				if !prevSpace {
					b.WriteRune(' ')
				}
				prevSpace = true
				continue
			}
			b.WriteRune(r)
			prevSpace = false
		}
		s = b.String()
	}
	return s
}

func applySpecialChars(s string, p models.SpecialCharsPolicy) string {
	if p.StripAccents {
		s = stripAccents(s)
	}
	if p.UnifyQuotes {
		replacer := strings.NewReplacer("‘", "'", "’", "'", "“", "\"", "”", "\"")
		s = replacer.Replace(s)
	}
	if p.UnifyDashes {
		replacer := strings.NewReplacer("–", "-", "—", "-")
		s = replacer.Replace(s)
	}
	return s
}

// stripAccents decomposes to NFD and drops combining marks, per spec.md
// §4.2 ("Unicode decomposition then combining-mark removal").
func stripAccents(s string) string {
	t := norm.NFD.String(s)
	var b strings.Builder
	for _, r := range t {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

func applyCase(s string, fieldType models.FieldType, policy models.NormalizationRules) string {
	c, ok := policy.CasePerFieldType[fieldType]
	if !ok {
		c = defaultCase(fieldType)
	}
	switch c {
	case models.CaseLower:
		return strings.ToLower(s)
	case models.CaseUpper:
		return strings.ToUpper(s)
	case models.CaseTitle:
		return titleCase(s)
	default:
		return s
	}
}

func defaultCase(fieldType models.FieldType) models.CasePolicy {
	switch fieldType {
	case models.FieldEmail:
		return models.CaseLower
	case models.FieldName:
		return models.CaseTitle
	default:
		return models.CasePreserve
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		for j := 1; j < len(r); j++ {
			r[j] = unicode.ToLower(r[j])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func normalizeText(s string, fieldType models.FieldType, policy models.NormalizationRules) Result {
	s = applyWhitespace(s, policy.Whitespace)
	s = applySpecialChars(s, policy.SpecialChars)
	s = applyCase(s, fieldType, policy)
	return Result{OK: true, Text: s}
}

func normalizeBool(s string) Result {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y":
		return Result{OK: true, Text: "true"}
	case "false", "no", "0", "n", "":
		return Result{OK: true, Text: "false"}
	default:
		return Result{OK: false, Reason: "not a recognised boolean: " + s}
	}
}

func normalizeNumber(s string, p models.NumberPolicy) Result {
	s = strings.TrimSpace(s)
	if p.StripCurrencySymbols {
		var b strings.Builder
		for _, r := range s {
			if unicode.IsDigit(r) || r == '-' || r == '+' {
				b.WriteRune(r)
				continue
			}
			if p.ThousandSeparator != "" && string(r) == p.ThousandSeparator {
				continue
			}
			if p.DecimalSeparator != "" && string(r) == p.DecimalSeparator {
				b.WriteRune('.')
				continue
			}
			if r == '.' && p.DecimalSeparator == "" {
				b.WriteRune('.')
			}
		}
		s = b.String()
	} else {
		if p.ThousandSeparator != "" {
			s = strings.ReplaceAll(s, p.ThousandSeparator, "")
		}
		if p.DecimalSeparator != "" && p.DecimalSeparator != "." {
			s = strings.ReplaceAll(s, p.DecimalSeparator, ".")
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Result{OK: false, Reason: "not a finite real: " + err.Error()}
	}
	return Result{OK: true, Text: strconv.FormatFloat(f, 'f', -1, 64)}
}

func normalizeDate(s string, p models.DatePolicy) Result {
	s = strings.TrimSpace(s)
	formats := p.AcceptedInputFormats
	if len(formats) == 0 {
		formats = []string{time.RFC3339, "2006-01-02", "01/02/2006", "Jan 2, 2006", "2 Jan 2006"}
	}
	target := p.TargetFormat
	if target == "" {
		target = "2006-01-02"
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return Result{OK: true, Text: t.Format(target)}
		}
	}
	return Result{OK: false, Reason: "no accepted input format matched: " + s}
}
