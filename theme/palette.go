package theme

// Palette is the resolved set of colours for a theme in light or dark mode.
// Colours are CSS hex strings, optionally with an alpha suffix.
type Palette struct {
	Primary      string
	PrimaryLight string
	PrimaryDark  string
	Accent       string

	Background     string
	BackgroundCard string
	Border         string

	TextPrimary   string
	TextSecondary string
	TextMuted     string

	Success string
	Error   string
	Warning string
	Info    string

	Sent     string
	Received string

	ShadowPrimary string
}

// alpha appends a two digit hex alpha to colour
func alpha(colour, a string) string {
	return colour + a
}

// PaletteFor resolves the palette of themeID. Unknown ids fall back to the
// default theme.
func PaletteFor(themeID string, dark bool) Palette {
	t, ok := Lookup(themeID)
	if !ok {
		t, _ = Lookup(DefaultThemeID)
	}

	p := Palette{
		Primary:      t.Primary,
		PrimaryLight: t.PrimaryLight,
		PrimaryDark:  t.PrimaryDark,
		Accent:       t.Accent,
	}
	if dark {
		p.Background = "#0a0a0a"
		p.BackgroundCard = "#1a1a1a"
		p.Border = "rgba(255,255,255,0.1)"
		p.TextPrimary = "#ffffff"
		p.TextSecondary = "rgba(255,255,255,0.9)"
		p.TextMuted = "rgba(255,255,255,0.65)"
		p.Success = "#22c55e"
		p.Error = "#ef4444"
		p.Warning = "#f59e0b"
		p.Info = "#3b82f6"
		p.ShadowPrimary = alpha(t.Primary, "40")
	} else {
		p.Background = "#f8f9fa"
		p.BackgroundCard = "#ffffff"
		p.Border = alpha(t.Primary, "20")
		p.TextPrimary = "#1a1a1a"
		p.TextSecondary = "#2d2d2d"
		p.TextMuted = "#5a5a5a"
		p.Success = "#16a34a"
		p.Error = "#dc2626"
		p.Warning = "#d97706"
		p.Info = "#2563eb"
		p.ShadowPrimary = alpha(t.Primary, "25")
	}
	p.Sent = p.Error
	p.Received = p.Success
	return p
}
