package main

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

// isTTY returns true if the given file descriptor is a terminal.
func isTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// printBanner prints the sqlgate ASCII art. With useColor the lines run
// from green to yellow.
func printBanner(w io.Writer, useColor bool) {
	lines := []string{
		``,
		`             _             _        `,
		`   ___  __ _| | __ _  __ _| |_ ___  `,
		`  / __|/ _' | |/ _' |/ _' | __/ _ \ `,
		`  \__ \ (_| | | (_| | (_| | ||  __/ `,
		`  |___/\__, |_|\__, |\__,_|\__\___| `,
		`          |_|  |___/                `,
		``,
	}

	if !useColor {
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
		return
	}

	colors := []string{
		"\033[0m",
		"\033[1;32m", // bold green
		"\033[1;32m",
		"\033[1;92m", // bold bright green
		"\033[1;93m", // bold bright yellow
		"\033[1;33m", // bold yellow
		"\033[1;33m",
		"\033[0m",
	}
	for i, line := range lines {
		fmt.Fprintf(w, "%s%s\033[0m\n", colors[i%len(colors)], line)
	}
}
