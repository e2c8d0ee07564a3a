// Package colors holds the terminal palette of the CLI.
//
// Colors are disabled when stdout is not a terminal; fatih/color detects
// that. Init overrides the detection from the --color flag.
package colors

import "github.com/fatih/color"

// Init overrides the detected color setting when forceColor is set.
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

func Bold() *color.Color  { return color.New(color.Bold) }
func Faint() *color.Color { return color.New(color.Faint) }

// Header colors table headers and section titles.
func Header() *color.Color { return color.New(color.Bold, color.FgHiBlue) }

// Path colors file system paths.
func Path() *color.Color { return color.New(color.FgHiMagenta) }

// Injected colors assets that are currently injected.
func Injected() *color.Color { return color.New(color.Bold, color.FgHiGreen) }

// Pending colors assets that are recorded but not injected.
func Pending() *color.Color { return color.New(color.FgHiYellow) }

// Removed colors desisted assets.
func Removed() *color.Color { return color.New(color.Faint, color.FgRed) }
