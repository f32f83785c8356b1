package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/vitrine/internal/checksum"
	"github.com/starford/vitrine/internal/storage"
)

const stylesheetPrefix = "site."

// Stylesheet is the shared stylesheet asset with its content-hashed name.
type Stylesheet struct {
	Name  string
	Bytes []byte
}

// LoadStylesheet returns the stylesheet at override, or the built-in one
// when override is empty.
func LoadStylesheet(override string) (Stylesheet, error) {
	var data []byte
	var err error
	if override != "" {
		data, err = os.ReadFile(override)
	} else {
		data, err = assets.ReadFile("assets/site.css")
	}
	if err != nil {
		return Stylesheet{}, fmt.Errorf("render: load stylesheet: %w", err)
	}
	return Stylesheet{
		Name:  stylesheetPrefix + checksum.Short(data, 8) + ".css",
		Bytes: data,
	}, nil
}

// Deploy writes the stylesheet into dir unless identical bytes are already
// there, and removes older hashed versions. It reports whether it wrote.
func (s Stylesheet) Deploy(dir string) (bool, error) {
	wrote, err := storage.WriteIfChanged(filepath.Join(dir, s.Name), s.Bytes)
	if err != nil {
		return false, err
	}
	stale, _ := filepath.Glob(filepath.Join(dir, stylesheetPrefix+"*.css"))
	for _, p := range stale {
		if filepath.Base(p) != s.Name && strings.HasPrefix(filepath.Base(p), stylesheetPrefix) {
			_ = os.Remove(p)
		}
	}
	return wrote, nil
}
