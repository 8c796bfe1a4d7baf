package domain

import "strings"

// Category is a closed set of abstract labels. Display names are a client concern.
type Category string

const (
	CategoryTechnology Category = "Technology"
	CategoryBusiness   Category = "Business"
	CategoryDesign     Category = "Design"
	CategoryEducation  Category = "Education"
	CategoryPolitics   Category = "Politics"
	CategoryEconomy    Category = "Economy"
	CategorySociety    Category = "Society"
	CategoryCulture    Category = "Culture"
	CategoryHealth     Category = "Health"
	CategoryOther      Category = "Other"
)

// Categories lists every valid category, catch-all last.
var Categories = []Category{
	CategoryTechnology,
	CategoryBusiness,
	CategoryDesign,
	CategoryEducation,
	CategoryPolitics,
	CategoryEconomy,
	CategorySociety,
	CategoryCulture,
	CategoryHealth,
	CategoryOther,
}

// Labels the classification model was historically prompted to answer with.
var categoryAliases = map[string]Category{
	"기술":   CategoryTechnology,
	"비즈니스": CategoryBusiness,
	"디자인":  CategoryDesign,
	"교육":   CategoryEducation,
	"정치":   CategoryPolitics,
	"경제":   CategoryEconomy,
	"사회":   CategorySociety,
	"문화":   CategoryCulture,
	"건강":   CategoryHealth,
	"기타":   CategoryOther,
}

// ParseCategory maps s onto the closed set. Unknown values become CategoryOther.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryOther
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	if c, ok := categoryAliases[s]; ok {
		return c
	}
	return CategoryOther
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
