// Package normalize cleans extracted card fields and merges the reverse side
// of two-sided cards. Every function here is pure.
package normalize

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

// TimestampFormat is ISO-8601 UTC with milliseconds, e.g. 2024-05-01T09:30:00.000Z
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Normalizer applies the cleanup rules. Now is the only source of
// non-determinism and defaults to time.Now.
type Normalizer struct {
	Now func() time.Time
}

// New returns a Normalizer using the wall clock
func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

var (
	emailKeys   = []string{models.Email, models.AdditionalEmail}
	phoneKeys   = []string{models.Phone, models.AdditionalPhone}
	websiteKeys = []string{models.Website, models.AdditionalWebsite}
)

// back-side keys that fill an empty front field and are consumed when they do
var backAliases = map[string]string{
	models.AdditionalEmail:   models.Email,
	models.AdditionalPhone:   models.Phone,
	models.AdditionalWebsite: models.Website,
}

// back-side keys copied whenever they carry a value
var backOnlyKeys = map[string]bool{
	models.SocialMedia:        true,
	models.CompanyDescription: true,
	models.AdditionalEmail:    true,
	models.AdditionalPhone:    true,
	models.AdditionalWebsite:  true,
	models.Services:           true,
}

// Normalize cleans front and, when back is non-nil, merges the cleaned back
// side into it. Neither input is modified.
func (n *Normalizer) Normalize(front, back models.FieldMap) models.FieldMap {
	out := coerce(front)
	ensureKeys(out, models.CardKeys)
	cleanEmails(out)
	cleanPhones(out)
	splitName(out)
	cleanWebsites(out)

	if back != nil {
		b := coerce(back)
		ensureKeys(b, models.BackKeys)
		cleanEmails(b)
		cleanPhones(b)
		cleanWebsites(b)
		merge(out, b)
	}

	if out.Empty(models.Timestamp) {
		out[models.Timestamp] = n.now().UTC().Format(TimestampFormat)
	}
	return out
}

func (n *Normalizer) now() time.Time {
	if n == nil || n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// coerce copies m turning every value into a trimmed string or nil
func coerce(m models.FieldMap) models.FieldMap {
	out := make(models.FieldMap, len(m))
	for k, v := range m {
		if k == models.BackSideProcessed {
			out[k] = v
			continue
		}
		out.Set(k, stringify(v))
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func ensureKeys(m models.FieldMap, keys []string) {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			m[k] = nil
		}
	}
}

func cleanEmails(m models.FieldMap) {
	for _, k := range emailKeys {
		if _, ok := m[k]; ok {
			m.Set(k, CleanEmail(m.Get(k)))
		}
	}
}

func cleanPhones(m models.FieldMap) {
	for _, k := range phoneKeys {
		if _, ok := m[k]; ok {
			m.Set(k, CleanPhone(m.Get(k)))
		}
	}
}

func cleanWebsites(m models.FieldMap) {
	for _, k := range websiteKeys {
		if _, ok := m[k]; ok {
			m.Set(k, CleanWebsite(m.Get(k)))
		}
	}
}

// CleanEmail lower-cases an address and returns "" unless it has an @
// followed somewhere later by a dot. Full-width characters are folded first.
func CleanEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(width.Fold.String(s)))
	at := strings.Index(s, "@")
	if at <= 0 || !strings.Contains(s[at+1:], ".") {
		return ""
	}
	return s
}

var phoneReplacer = strings.NewReplacer("O", "0", "l", "1", "I", "1")

// CleanPhone folds full-width digits and applies the OCR substitutions
// O→0, l→1, I→1 to the whole string. Letters that really belong in the
// number are also replaced.
func CleanPhone(s string) string {
	return phoneReplacer.Replace(strings.TrimSpace(width.Fold.String(s)))
}

// CleanWebsite returns "" for values without a dot and prefixes https://
// when no http(s) scheme is present
func CleanWebsite(s string) string {
	s = strings.TrimSpace(width.Fold.String(s))
	if !strings.Contains(s, ".") {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "https://" + strings.TrimPrefix(s, "//")
}

// SplitName splits a full name on whitespace into first and last parts
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func splitName(m models.FieldMap) {
	if m.Empty(models.FullName) || !m.Empty(models.FirstName) {
		return
	}
	first, last := SplitName(m.Get(models.FullName))
	m.Set(models.FirstName, first)
	if m.Empty(models.LastName) {
		m.Set(models.LastName, last)
	}
}

// merge copies back into front. Same-name keys go first so an alias never
// shadows a value the back side reported under the front key itself.
func merge(front, back models.FieldMap) {
	keys := slices.Sorted(maps.Keys(back))
	var aliases []string
	for _, k := range keys {
		if _, ok := backAliases[k]; ok {
			aliases = append(aliases, k)
			continue
		}
		s := back.Get(k)
		if s == "" {
			continue
		}
		if backOnlyKeys[k] || front.Empty(k) {
			front.Set(k, s)
		}
	}

	for _, k := range aliases {
		s := back.Get(k)
		if s == "" {
			continue
		}
		if target := backAliases[k]; front.Empty(target) {
			front.Set(target, s)
			continue
		}
		front.Set(k, s)
	}
	front[models.BackSideProcessed] = true
}
