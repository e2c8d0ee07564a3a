package colors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestInit(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = true
	on := true
	Init(&on)
	if color.NoColor {
		t.Error("expected colors enabled after Init(true)")
	}

	off := false
	Init(&off)
	if !color.NoColor {
		t.Error("expected colors disabled after Init(false)")
	}

	Init(nil)
	if !color.NoColor {
		t.Error("Init(nil) should keep the current setting")
	}
}

func TestPalette(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	palette := map[string]func() *color.Color{
		"Bold":     Bold,
		"Faint":    Faint,
		"Header":   Header,
		"Path":     Path,
		"Injected": Injected,
		"Pending":  Pending,
		"Removed":  Removed,
	}
	for name, fn := range palette {
		t.Run(name, func(t *testing.T) {
			color.NoColor = false
			if got := fn().Sprint("x"); !strings.Contains(got, "\x1b[") {
				t.Errorf("%s() should produce ANSI codes, got: %q", name, got)
			}
			color.NoColor = true
			if got := fn().Sprint("x"); got != "x" {
				t.Errorf("%s() should print plain text without colors, got: %q", name, got)
			}
		})
	}
}
