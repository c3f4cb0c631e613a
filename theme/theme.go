// Package theme holds the colour themes and the persisted appearance
// preferences of the app.
package theme

import "slices"

type Theme struct {
	ID           string
	Name         string
	Primary      string
	PrimaryLight string
	PrimaryDark  string
	Accent       string
}

const DefaultThemeID = "green"

var themes = []Theme{
	{ID: "green", Name: "Flashy Green", Primary: "#BAF742", PrimaryLight: "#D9FF9B", PrimaryDark: "#8FC73E", Accent: "#6B21A8"},
	{ID: "ocean", Name: "Ocean", Primary: "#00D4FF", PrimaryLight: "#7FEFFF", PrimaryDark: "#0099CC", Accent: "#FF6B35"},
	{ID: "sunset", Name: "Sunset", Primary: "#FF6B6B", PrimaryLight: "#FFB3B3", PrimaryDark: "#CC5555", Accent: "#4ECDC4"},
	{ID: "purple", Name: "Violet", Primary: "#A855F7", PrimaryLight: "#C084FC", PrimaryDark: "#7C3AED", Accent: "#F59E0B"},
}

// Themes returns every available theme in display order
func Themes() []Theme {
	return slices.Clone(themes)
}

func Lookup(id string) (Theme, bool) {
	i := slices.IndexFunc(themes, func(t Theme) bool { return t.ID == id })
	if i < 0 {
		return Theme{}, false
	}
	return themes[i], true
}
