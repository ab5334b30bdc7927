package relay

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values. A negative
// index means no color.
type Theme struct {
	UserMsg int // User message prompt marker
	Error   int // Error messages
	Notice  int // Retry and cancellation notices
	Muted   int // Status bar, placeholders, code gutters
	Accent  int // Headings, links
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg: 4,
		Error:   1,
		Notice:  3,
		Muted:   8,
		Accent:  5,
	}
}
