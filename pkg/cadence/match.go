package cadence

import (
	"strings"
	"unicode"

	"github.com/harrisonrobin/taskbot/pkg/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer maps a supplier name, or text mentioning one, to a comparable form.
type Normalizer func(string) string

var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "h", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "sch", 'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu",
	'я': "ya",
}

// DefaultNormalize folds case, strips diacritics, transliterates Cyrillic to
// Latin and drops everything that is not a letter or digit, so that
// "Молоко", "moloko" and "MOLOKO-" compare equal.
func DefaultNormalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	for _, r := range folded {
		if lat, ok := translit[r]; ok {
			b.WriteString(lat)
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve returns the active profile whose normalized name occurs in the
// normalized text. The longest matching name wins so that "Milk Plus" beats
// "Milk". Nil means no profile matched.
func Resolve(profiles []model.SupplierProfile, text string, normalize Normalizer) *model.SupplierProfile {
	if normalize == nil {
		normalize = DefaultNormalize
	}
	haystack := normalize(text)
	var (
		best    *model.SupplierProfile
		bestLen int
	)
	for i := range profiles {
		p := &profiles[i]
		if !p.Active {
			continue
		}
		name := normalize(p.Name)
		if name == "" || !strings.Contains(haystack, name) {
			continue
		}
		if len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	return best
}

var orderWords = map[string]bool{
	"order": true, "orders": true, "reorder": true,
	"заказ": true, "заказа": true, "заказы": true, "заказать": true, "закажи": true, "дозаказ": true,
	"zakaz": true,
}

// IsOrder reports whether completing inst should advance a supplier cycle.
// Untyped instances qualify when a whole word of the description is an order word.
func IsOrder(inst model.Instance) bool {
	switch inst.Kind {
	case model.KindOrder:
		return true
	case model.KindDelivery:
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(inst.Description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if orderWords[w] {
			return true
		}
	}
	return false
}

// PointsFor picks the delivery points for a completed order: its own
// sub-category when set, otherwise every point of the profile.
func PointsFor(p model.SupplierProfile, completed model.Instance) []string {
	if completed.Subcategory != "" {
		return []string{completed.Subcategory}
	}
	return p.DeliveryPoints
}
