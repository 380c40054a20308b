package koi

import (
	"math/rand"
	"sort"
)

// Pattern is a cosmetic koi variety.
type Pattern struct {
	Name   string
	Base   string
	Accent string
}

var patterns = []Pattern{
	{Name: "Kohaku", Base: "#DC3232", Accent: "#F5F5F5"},
	{Name: "Showa", Base: "#1E1E1E", Accent: "#C83232"},
	{Name: "Shiro Utsuri", Base: "#282828", Accent: "#F0F0F0"},
	{Name: "Yamabuki Ogon", Base: "#F0B432", Accent: "#FFDC78"},
	{Name: "Asagi", Base: "#5064B4", Accent: "#DC6E3C"},
	{Name: "Platinum Ogon", Base: "#DCDCDC", Accent: "#FFFFFF"},
	{Name: "Sanke", Base: "#DC3C3C", Accent: "#1E1E1E"},
	{Name: "Calico", Base: "#F07832", Accent: "#282828"},
	{Name: "Copper", Base: "#B4783C", Accent: "#DCA064"},
}

var (
	genera = []string{
		"Cyprinus", "Koi", "Nishiki", "Hikari", "Ogon", "Asagi", "Showa",
		"Kohaku", "Sanke", "Utsurimono", "Bekko", "Tancho", "Kinginrin",
		"Karasugoi", "Chagoi", "Soragoi", "Ochiba", "Goshiki", "Koromo",
	}
	epithets = []string{
		"carpio", "japonicus", "auratus", "elegans", "magnificus", "splendidus",
		"nobilis", "imperialis", "regalis", "spectabilis", "formosus", "ornatus",
		"picturatus",
	}
)

// ColorKey picks the pattern name for a species. The choice depends only on
// the species id so every member of a species looks alike.
func ColorKey(speciesID int) string {
	rng := rand.New(rand.NewSource(int64(speciesID)))
	return patterns[rng.Intn(len(patterns))].Name
}

// PatternFor looks up a pattern by its color key.
func PatternFor(key string) (Pattern, bool) {
	for _, p := range patterns {
		if p.Name == key {
			return p, true
		}
	}
	return Pattern{}, false
}

// Patterns lists the known varieties sorted by name.
func Patterns() []Pattern {
	out := append([]Pattern(nil), patterns...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ScientificName draws a binomial name such as "Nishiki elegans".
func ScientificName(rng *rand.Rand) string {
	return genera[rng.Intn(len(genera))] + " " + epithets[rng.Intn(len(epithets))]
}
