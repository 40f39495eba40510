package output

import (
	"io"
	"os"

	"golang.org/x/term"
)

// ColorEnabled reports whether w is an interactive terminal that should get
// ANSI colours. NO_COLOR disables colour everywhere.
func ColorEnabled(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
