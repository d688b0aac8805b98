package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCategory marks a category outside the fixed enum.
var ErrUnknownCategory = errors.New("unknown category")

// Category is one of the fixed topic labels assigned by the categorizer.
type Category string

const (
	CategoryTechnology    Category = "technology"
	CategoryScience       Category = "science"
	CategoryPolitics      Category = "politics"
	CategoryBusiness      Category = "business"
	CategorySports        Category = "sports"
	CategoryEntertainment Category = "entertainment"
	CategoryGaming        Category = "gaming"
	CategoryMusic         Category = "music"
	CategoryArt           Category = "art"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryTravel        Category = "travel"
	CategoryFood          Category = "food"
	CategoryFashion       Category = "fashion"
	CategoryNews          Category = "news"
	CategoryOther         Category = "other"

	// CategoryAll selects every category in trend queries.
	CategoryAll Category = "all"
)

// Categories lists the fixed enum in display order.
var Categories = []Category{
	CategoryTechnology, CategoryScience, CategoryPolitics, CategoryBusiness,
	CategorySports, CategoryEntertainment, CategoryGaming, CategoryMusic,
	CategoryArt, CategoryHealth, CategoryEducation, CategoryTravel,
	CategoryFood, CategoryFashion, CategoryNews, CategoryOther,
}

var categorySet = func() map[Category]struct{} {
	m := make(map[Category]struct{}, len(Categories))
	for _, c := range Categories {
		m[c] = struct{}{}
	}
	return m
}()

// Valid reports whether c is a member of the fixed enum. "all" is not.
func (c Category) Valid() bool {
	_, ok := categorySet[c]
	return ok
}

// ParseCategory accepts an enum member or "all".
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if c == CategoryAll || c.Valid() {
		return c, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownCategory, s)
}

// CategoryShare is the percentage of a tweet attributed to one category.
type CategoryShare struct {
	Category   Category `json:"category" yaml:"category"`
	Percentage int      `json:"percentage" yaml:"percentage"`
}

// ValidateCategories checks that shares are empty or sum to exactly 100
// with no duplicate or unknown categories.
func ValidateCategories(shares []CategoryShare) error {
	if len(shares) == 0 {
		return nil
	}
	seen := make(map[Category]struct{}, len(shares))
	total := 0
	for _, s := range shares {
		if !s.Category.Valid() {
			return fmt.Errorf("%w %q", ErrUnknownCategory, s.Category)
		}
		if _, dup := seen[s.Category]; dup {
			return fmt.Errorf("duplicate category %q", s.Category)
		}
		seen[s.Category] = struct{}{}
		if s.Percentage <= 0 || s.Percentage > 100 {
			return fmt.Errorf("category %q: percentage %d out of range", s.Category, s.Percentage)
		}
		total += s.Percentage
	}
	if total != 100 {
		return fmt.Errorf("category percentages sum to %d, want 100", total)
	}
	return nil
}

// DominantCategory returns the highest-share category. Ties resolve to the
// lexically smaller name so the result is stable.
func DominantCategory(shares []CategoryShare) (Category, bool) {
	if len(shares) == 0 {
		return "", false
	}
	best := shares[0]
	for _, s := range shares[1:] {
		if s.Percentage > best.Percentage || (s.Percentage == best.Percentage && s.Category < best.Category) {
			best = s
		}
	}
	return best.Category, true
}

// SortShares orders shares by percentage desc then name.
func SortShares(shares []CategoryShare) {
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Percentage != shares[j].Percentage {
			return shares[i].Percentage > shares[j].Percentage
		}
		return shares[i].Category < shares[j].Category
	})
}
