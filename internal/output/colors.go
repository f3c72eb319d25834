package output

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Colors is off when stdout is not a terminal or NO_COLOR is set.
var Colors = term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

func format(code, text string) string {
	if !Colors {
		return text
	}
	return fmt.Sprintf("\x1B[%sm%s\x1B[0m", code, text)
}

func Dim(text string) string {
	return format("2", text)
}

func Added(text string) string {
	return format("32", text)
}

func Removed(text string) string {
	return format("31", text)
}

func Modified(text string) string {
	return format("33", text)
}

func Error(text string) string {
	return format("31", text)
}
