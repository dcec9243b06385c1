package lighting

import (
	"fmt"
	"strings"

	"lightforge.dev/internal/scene"
)

// Quality selects the remote bake's quality preset.
type Quality int

const (
	QualityPreview Quality = iota
	QualityMedium
	QualityHigh
	QualityProduction
)

func (q Quality) String() string {
	switch q {
	case QualityPreview:
		return "preview"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	case QualityProduction:
		return "production"
	}
	return "unknown"
}

func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(s) {
	case "preview":
		return QualityPreview, nil
	case "medium":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	case "production":
		return QualityProduction, nil
	}
	return QualityPreview, fmt.Errorf("unknown lighting quality %q", s)
}

// Options configures one build. Created per build request and read-only
// afterwards.
type Options struct {
	Quality Quality

	// SelectedOnly restricts the build to selected actors and BSP surfaces.
	SelectedOnly bool

	// VisibilityOnly rebuilds precomputed visibility without touching
	// lightmaps. Requires the world to precompute visibility.
	VisibilityOnly bool

	// ShouldBuildLevel filters levels. Nil includes every visible level.
	ShouldBuildLevel func(*scene.Level) bool

	// SortMappings orders mappings by descending texel count before
	// deterministic IDs are stamped, so large mappings finish first.
	SortMappings bool

	// DumpBlobsTo, when set, writes every encoded export section to the
	// given directory. Debug aid.
	DumpBlobsTo string

	// ImmediateImport applies mapping results as the service announces them
	// instead of deferring to finalization. Debug toggle.
	ImmediateImport bool

	// ClientName identifies this editor session to the bake service.
	ClientName string
}

func DefaultOptions() Options {
	return Options{
		Quality:      QualityHigh,
		SortMappings: true,
		ClientName:   "lightforge-editor",
	}
}
