// Package geometry provides a small catalog of named, fixed-size disk
// geometries so callers don't have to hand-compute a block count for common
// image sizes before calling sfs.Format.
package geometry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

//go:embed presets.csv
var presetsCSV string

// Preset names a fixed-geometry disk size in units of the engine's 4096-byte
// block.
type Preset struct {
	Name        string `csv:"name"`
	TotalBlocks uint32 `csv:"total_blocks"`
	Description string `csv:"description"`
}

var catalog []Preset

func init() {
	if err := gocsv.UnmarshalString(presetsCSV, &catalog); err != nil {
		panic(fmt.Sprintf("geometry: embedded preset catalog is malformed: %s", err))
	}
}

// Catalog returns every known named preset, in the order they appear in the
// embedded catalog.
func Catalog() []Preset {
	out := make([]Preset, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a preset by name (case-insensitive). It returns an error
// naming every valid choice if name isn't found.
func Lookup(name string) (Preset, error) {
	for _, p := range catalog {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}

	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name
	}
	return Preset{}, fmt.Errorf(
		"unknown geometry preset %q; known presets: %s", name, strings.Join(names, ", "))
}
