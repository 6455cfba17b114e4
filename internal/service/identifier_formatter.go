package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

const defaultIdentifierWidth = 6

// ParsedIdentifier is the decomposition of an external identifier.
// Year is -1 when the category is not year-scoped.
type ParsedIdentifier struct {
	Category models.ApplicationCategory
	Year     int
	Sequence int64
}

// IdentifierFormatter renders counter values as external identifiers of the
// form <PREFIX>[<YY>]<zero padded sequence>. The shape is a public contract
// printed on admit cards and emails.
type IdentifierFormatter struct {
	width      int
	prefixes   map[models.ApplicationCategory]string
	yearScoped map[models.ApplicationCategory]bool
	byPrefix   []prefixEntry
}

type prefixEntry struct {
	prefix   string
	category models.ApplicationCategory
}

// NewIdentifierFormatter validates cfg and builds the formatter. Prefixes must
// be distinct, non-empty and must not end in a digit.
func NewIdentifierFormatter(cfg config.IdentifierConfig) (*IdentifierFormatter, error) {
	width := cfg.Width
	if width <= 0 {
		width = defaultIdentifierWidth
	}
	f := &IdentifierFormatter{
		width: width,
		prefixes: map[models.ApplicationCategory]string{
			models.CategoryEnquiry:      strings.ToUpper(strings.TrimSpace(cfg.EnquiryPrefix)),
			models.CategoryAdmission:    strings.ToUpper(strings.TrimSpace(cfg.AdmissionPrefix)),
			models.CategoryRegistration: strings.ToUpper(strings.TrimSpace(cfg.RegistrationPrefix)),
		},
		yearScoped: make(map[models.ApplicationCategory]bool, len(models.Categories)),
	}
	seen := make(map[string]models.ApplicationCategory, len(f.prefixes))
	for _, category := range models.Categories {
		prefix := f.prefixes[category]
		if prefix == "" {
			return nil, fmt.Errorf("identifier prefix for %s is empty", category)
		}
		if last := prefix[len(prefix)-1]; last >= '0' && last <= '9' {
			return nil, fmt.Errorf("identifier prefix %q must not end in a digit", prefix)
		}
		if other, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("identifier prefix %q shared by %s and %s", prefix, other, category)
		}
		seen[prefix] = category
		f.byPrefix = append(f.byPrefix, prefixEntry{prefix: prefix, category: category})
		f.yearScoped[category] = cfg.IsYearScoped(string(category))
	}
	// longest first so that ADMX is not read as ADM + X
	sort.Slice(f.byPrefix, func(i, j int) bool {
		return len(f.byPrefix[i].prefix) > len(f.byPrefix[j].prefix)
	})
	return f, nil
}

// YearScoped reports whether identifiers of category embed the year.
func (f *IdentifierFormatter) YearScoped(category models.ApplicationCategory) bool {
	return f.yearScoped[category]
}

// Width is the minimum number of sequence digits.
func (f *IdentifierFormatter) Width() int {
	return f.width
}

// Format renders seq for category. at supplies the year for year-scoped
// categories. Sequences wider than the configured width render in full.
func (f *IdentifierFormatter) Format(category models.ApplicationCategory, seq int64, at time.Time) (string, error) {
	prefix, ok := f.prefixes[category]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", category))
	}
	if seq < 1 {
		return "", appErrors.Clone(appErrors.ErrValidation, "sequence must be positive")
	}
	var b strings.Builder
	b.WriteString(prefix)
	if f.yearScoped[category] {
		fmt.Fprintf(&b, "%02d", at.Year()%100)
	}
	fmt.Fprintf(&b, "%0*d", f.width, seq)
	return b.String(), nil
}

// Parse is the inverse of Format. Only canonical codes are accepted, so a
// code parses iff Format would have produced it.
func (f *IdentifierFormatter) Parse(code string) (ParsedIdentifier, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	invalid := appErrors.Clone(appErrors.ErrValidation, "malformed identifier")
	for _, entry := range f.byPrefix {
		if !strings.HasPrefix(code, entry.prefix) {
			continue
		}
		rest := code[len(entry.prefix):]
		parsed := ParsedIdentifier{Category: entry.category, Year: -1}
		if f.yearScoped[entry.category] {
			if len(rest) < 2 || !allDigits(rest[:2]) {
				return ParsedIdentifier{}, invalid
			}
			year, _ := strconv.Atoi(rest[:2])
			parsed.Year = year
			rest = rest[2:]
		}
		if len(rest) < f.width || !allDigits(rest) {
			return ParsedIdentifier{}, invalid
		}
		if len(rest) > f.width && rest[0] == '0' {
			return ParsedIdentifier{}, invalid
		}
		seq, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || seq < 1 {
			return ParsedIdentifier{}, invalid
		}
		parsed.Sequence = seq
		return parsed, nil
	}
	return ParsedIdentifier{}, invalid
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
