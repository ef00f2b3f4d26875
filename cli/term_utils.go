package cli

import (
	"fmt"
	"os"

	"github.com/ije/gox/term"
	xterm "golang.org/x/term"
)

func termConfirm(prompt string) (value bool) {
	fmt.Print(term.Cyan("? "))
	fmt.Print(prompt + " ")
	fmt.Print(term.Dim("(y/N)"))
	defer func() {
		term.ClearLine()
		fmt.Print("\r")
	}()
	for {
		key := getRawInput()
		switch key {
		case 3, 27: // Ctrl+C, Escape
			fmt.Print("\n")
			fmt.Print(term.Dim("Aborted."))
			fmt.Print("\n")
			os.Exit(0)
		case 13, 32: // Enter, Space
			return false
		case 'y':
			return true
		case 'n':
			return false
		}
	}
}

// Read raw input from the terminal.
func getRawInput() byte {
	oldState, err := xterm.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		// not a terminal: treat as a decline
		return 'n'
	}
	defer xterm.Restore(int(os.Stdin.Fd()), oldState)

	buf := make([]byte, 3)
	n, err := os.Stdin.Read(buf)
	if err != nil {
		return 'n'
	}

	// the third byte carries the key for ANSI escape sequences
	if n == 3 {
		return buf[2]
	}

	return buf[0]
}
