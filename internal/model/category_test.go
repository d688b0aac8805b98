package model

import "testing"

func TestValidateCategories(t *testing.T) {
	cases := []struct {
		name   string
		shares []CategoryShare
		ok     bool
	}{
		{"uncategorized", nil, true},
		{"single", []CategoryShare{{CategoryTechnology, 100}}, true},
		{"split", []CategoryShare{{CategoryTechnology, 60}, {CategoryScience, 40}}, true},
		{"short", []CategoryShare{{CategoryTechnology, 60}, {CategoryScience, 30}}, false},
		{"over", []CategoryShare{{CategoryTechnology, 70}, {CategoryScience, 40}}, false},
		{"duplicate", []CategoryShare{{CategoryTechnology, 50}, {CategoryTechnology, 50}}, false},
		{"unknown", []CategoryShare{{Category("cooking"), 100}}, false},
		{"all is not a tweet category", []CategoryShare{{CategoryAll, 100}}, false},
		{"zero share", []CategoryShare{{CategoryTechnology, 100}, {CategoryScience, 0}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCategories(tc.shares)
			if (err == nil) != tc.ok {
				t.Fatalf("ok=%v err=%v", tc.ok, err)
			}
		})
	}
}

func TestDominantCategoryStableOnTie(t *testing.T) {
	c, ok := DominantCategory([]CategoryShare{{CategorySports, 50}, {CategoryMusic, 50}})
	if !ok || c != CategoryMusic {
		t.Fatalf("got %q %v", c, ok)
	}
	if _, ok := DominantCategory(nil); ok {
		t.Fatal("expected no dominant category for empty shares")
	}
}

func TestSortSharesLargestFirst(t *testing.T) {
	shares := []CategoryShare{{CategoryArt, 25}, {CategorySports, 50}, {CategoryMusic, 25}}
	SortShares(shares)
	want := []Category{CategorySports, CategoryArt, CategoryMusic}
	for i, c := range want {
		if shares[i].Category != c {
			t.Fatalf("position %d: got %q want %q (%+v)", i, shares[i].Category, c, shares)
		}
	}
}

func TestParseCategory(t *testing.T) {
	if c, err := ParseCategory("all"); err != nil || c != CategoryAll {
		t.Fatalf("all: %q %v", c, err)
	}
	if _, err := ParseCategory("gaming"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseCategory("Gaming"); err == nil {
		t.Fatal("expected case-sensitive enum")
	}
}

func TestHasMedia(t *testing.T) {
	tw := Tweet{Media: []MediaRef{{Kind: MediaVideo}, {Kind: MediaImage}}}
	img, vid := tw.HasMedia()
	if !img || !vid {
		t.Fatalf("image=%v video=%v", img, vid)
	}
}
