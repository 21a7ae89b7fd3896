package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the arbor ASCII banner with a green gradient.
func PrintBanner() {
	p := termenv.ColorProfile()
	s1 := termenv.String("            _               ").Foreground(p.Color("#bef264"))
	s2 := termenv.String("  __ _ _ __| |__   ___  _ __ ").Foreground(p.Color("#a3e635"))
	s3 := termenv.String(" / _` | '__| '_ \\ / _ \\| '__|").Foreground(p.Color("#84cc16"))
	s4 := termenv.String("| (_| | |  | |_) | (_) | |   ").Foreground(p.Color("#65a30d"))
	s5 := termenv.String(" \\__,_|_|  |_.__/ \\___/|_|   ").Foreground(p.Color("#4d7c0f"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
}
