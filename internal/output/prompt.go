package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when confirmation is needed but stdin is
// not a terminal.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (pass --yes)")

// Confirm asks a yes/no question on stdout and reads the answer from in.
// Anything but y/yes declines.
func Confirm(in io.Reader, question string) (bool, error) {
	fmt.Fprintf(os.Stdout, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ConfirmTTY is Confirm on stdin, refusing to guess when stdin is piped.
func ConfirmTTY(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, ErrNotInteractive
	}
	return Confirm(os.Stdin, question)
}
