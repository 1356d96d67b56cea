package config

import (
	"path/filepath"
	"strings"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// OutputExtension is the container every preset writes.
const OutputExtension = ".mp4"

// OutputPathFor derives the destination of inputPath from the user's
// preferences. The {name} placeholder expands to the source base name.
func OutputPathFor(settings domain.Settings, inputPath string) string {
	dir := strings.TrimSpace(settings.OutputDirectory)
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	if settings.UseSubdirectory {
		if sub := sanitizeName(settings.SubdirectoryName); sub != "" {
			dir = filepath.Join(dir, sub)
		}
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	pattern := strings.TrimSpace(settings.FileNamePattern)
	if pattern == "" {
		pattern = DefaultSettings().FileNamePattern
	}
	name := sanitizeName(strings.ReplaceAll(pattern, "{name}", base))
	if name == "" {
		name = base
	}

	out := filepath.Join(dir, name+OutputExtension)
	if filepath.Clean(out) == filepath.Clean(inputPath) {
		out = filepath.Join(dir, name+"_converted"+OutputExtension)
	}
	return out
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		default:
			return r
		}
	}, name)
}
