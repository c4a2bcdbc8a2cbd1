package ui

import (
	"os"

	"github.com/aymanbagabas/go-osc52/v2"
)

// writeOSC52Clipboard copies text to the system clipboard via the OSC52
// terminal escape sequence (spec §6 "`y` copies ... to the clipboard").
// Most terminal emulators, including over SSH, honor this without a
// platform clipboard syscall; bubbletea already pulls in this encoder
// as termenv's transitive dependency.
func writeOSC52Clipboard(text string) {
	osc52.New(text).WriteTo(os.Stdout)
}
