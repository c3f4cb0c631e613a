package main

const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"

	GreenInverse = "\033[7;32m"
	RedInverse   = "\033[7;31m"

	ResetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    Green,
	"POST":   Blue,
	"PUT":    Cyan,
	"DELETE": Yellow,
	"PATCH":  Magenta,
}

// statusColor picks the colour an HTTP status is printed in
func statusColor(code int) string {
	switch {
	case code >= 500:
		return RedInverse
	case code >= 400:
		return Red
	case code >= 300:
		return Yellow
	default:
		return Green
	}
}

func colourise(colour, s string) string {
	return colour + s + ResetColor
}
