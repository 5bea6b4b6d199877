package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SubcategoryGroup is a named group of subcategories (e.g. "Nega lica").
type SubcategoryGroup struct {
	Key   string   `json:"key"`
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// Category is one top-level storefront category. A category either lists its
// subcategories directly or arranges them in groups, never both.
type Category struct {
	Key           string             `json:"key"`
	Name          string             `json:"name"`
	Subcategories []string           `json:"subcategories,omitempty"`
	Groups        []SubcategoryGroup `json:"groups,omitempty"`
}

// HasSubgroups reports whether subcategories are grouped.
func (c Category) HasSubgroups() bool {
	return len(c.Groups) > 0
}

// Slug is the URL-safe form of the category name.
func (c Category) Slug() string {
	return Slugify(c.Name)
}

// CategorySummary is the list form of a category.
type CategorySummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	HasSubgroups bool   `json:"hasSubgroups"`
}

func salonGroups(depilation []string) []SubcategoryGroup {
	return []SubcategoryGroup{
		{Key: "ZA_FRIZERE", Name: "ZA FRIZERE", Items: []string{}},
		{Key: "ZA_KOZMETICARE", Name: "ZA KOZMETIČARE", Items: []string{}},
		{Key: "ZA_MASAZU", Name: "ZA MASAŽU", Items: []string{}},
		{Key: "ZA_MANIKIR", Name: "ZA MANIKIR", Items: []string{}},
		{Key: "ZA_PEDIKIR", Name: "ZA PEDIKIR", Items: []string{}},
		{Key: "ZA_DEPILACIJU", Name: "ZA DEPILACIJU", Items: depilation},
	}
}

var categories = []Category{
	{
		Key:  "KOSA",
		Name: "KOSA",
		Subcategories: []string{
			"Električni aparati za stilizovanje kose",
			"Trajne farbe za kosu",
			"Salonski pribor za rad",
			"Hidrogen i blanš",
			"Profesionalne četke i češljevi",
			"Toneri i color maske za kosu",
			"Nadogradnja prirodne kose",
			"Pribor za nadogradnju kose",
			"Nega i stilizovanje kose",
			"Barber - za muškarce",
		},
	},
	{
		Key:  "NOKTI",
		Name: "NOKTI",
		Subcategories: []string{
			"Manikir pribor za rad",
			"Pedikir pribor za rad",
			"Preparati za nokat",
			"Nadogradnja i izlivanje",
			"Gel lak i ojačavanje",
			"Lakovi za prirodne nokte",
			"UV/LED LAMPE",
			"Aspiratori",
			"Ostali pribor",
		},
	},
	{
		Key:  "PREPARATI_ZA_LICE_I_TELO",
		Name: "PREPARATI ZA LICE I TELO",
		Groups: []SubcategoryGroup{
			{
				Key:  "NEGA_LICA",
				Name: "Nega lica",
				Items: []string{
					"Čišćenje lica",
					"Kreme za lice - normalna koža",
					"Kreme za lice - problematična koža",
					"ANTI AGE kolekcija",
				},
			},
			{
				Key:  "NEGA_TELA",
				Name: "Nega tela",
				Items: []string{
					"Kreme za telo",
					"Losioni za telo",
					"Buteri za telo",
					"Pilinzi za telo",
					"Anticelulit kolekcija",
					"Dnevna rutina - kućna upotreba",
				},
			},
		},
	},
	{
		Key:    "MASAZA",
		Name:   "MASAŽA",
		Groups: salonGroups([]string{}),
	},
	{
		Key:  "OPREMA_ZA_SALONE",
		Name: "OPREMA ZA SALONE",
		Groups: salonGroups([]string{
			"Šećerna pasta - LIKE SUGAR WAX",
			"Hladna depilacija - Patrone",
			"Hladna depilacija - Limenke",
			"Topla depilacija - Film vosak",
			"Topla depilacija - ostalo",
			"Kozmetika za depilaciju",
			"Pribor za depilaciju",
		}),
	},
	{
		Key:           "CRNA_GORA",
		Name:          "CRNA GORA",
		Subcategories: []string{},
	},
}

// Categories returns the static taxonomy in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryList returns the flat category list used by selectors.
func CategoryList() []CategorySummary {
	out := make([]CategorySummary, 0, len(categories))
	for _, c := range categories {
		out = append(out, CategorySummary{
			ID:           c.Name,
			Name:         c.Name,
			Slug:         c.Slug(),
			HasSubgroups: c.HasSubgroups(),
		})
	}
	return out
}

// FindCategory looks a category up by name, key or slug, ignoring case and diacritics.
func FindCategory(q string) (Category, bool) {
	want := Slugify(q)
	if want == "" {
		return Category{}, false
	}
	for _, c := range categories {
		if c.Slug() == want || Slugify(c.Key) == want {
			return c, true
		}
	}
	return Category{}, false
}

// Subcategories returns the flat subcategory names of a category, flattening
// groups in order. Unknown categories yield nil.
func Subcategories(name string) []string {
	c, ok := FindCategory(name)
	if !ok {
		return nil
	}
	if !c.HasSubgroups() {
		return append([]string(nil), c.Subcategories...)
	}
	var out []string
	for _, g := range c.Groups {
		out = append(out, g.Items...)
	}
	return out
}

// SameCategory compares two category names the way lookups do.
func SameCategory(a, b string) bool {
	return Slugify(a) == Slugify(b)
}

// Slugify lowercases, strips diacritics and joins words with dashes:
// "MASAŽA" -> "masaza", "PREPARATI ZA LICE I TELO" -> "preparati-za-lice-i-telo".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	// đ has no decomposition
	folded = strings.NewReplacer("đ", "dj", "Đ", "dj").Replace(folded)

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
