package relation

import (
	"log/slog"
	"strings"
)

// FromFileSets builds a RelationDescription for every file set that carries
// a design file, logging and skipping any file set that doesn't (this comes
// in handy when a CTAS or VIEW design file hasn't been authored yet).
func FromFileSets(log *slog.Logger, fileSets []TableFileSet, getter ObjectGetter) []*RelationDescription {
	descriptions := make([]*RelationDescription, 0, len(fileSets))
	for _, fs := range fileSets {
		if fs.DesignFileName == "" {
			log.Warn("found file(s) without matching table design",
				slog.String("files", strings.Join(fs.Files, ", ")))
			continue
		}
		descriptions = append(descriptions, New(fs, getter))
	}
	return descriptions
}
