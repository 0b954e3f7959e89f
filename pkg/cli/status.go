package cli

import "os"

// colorEnabled follows the NO_COLOR convention.
var colorEnabled = os.Getenv("NO_COLOR") == ""

const (
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiReset  = "\033[0m"
)

func paint(code, s string) string {
	if !colorEnabled || s == "" {
		return s
	}
	return code + s + ansiReset
}

// Status colors an interface status value: UP green, DOWN red, anything
// else (DORMANT, unknown) yellow.
func Status(s string) string {
	switch s {
	case "UP":
		return paint(ansiGreen, s)
	case "DOWN":
		return paint(ansiRed, s)
	default:
		return paint(ansiYellow, s)
	}
}
