package resolve

import (
	"fmt"
	"strings"

	"github.com/panbanda/reach/pkg/extract"
)

// Confidence grades how reliably an import binds a name to its defining
// module.
type Confidence uint8

const (
	// Unknown is a dynamic import whose target is only known at runtime.
	Unknown Confidence = iota
	// Low is a deep relative or star import.
	Low
	// Medium is a shallow relative import.
	Medium
	// High is a direct or from-import.
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// AtLeast reports whether c is as strong as min.
func (c Confidence) AtLeast(min Confidence) bool {
	return c >= min
}

// ParseConfidence converts a config value into a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High, nil
	case "medium", "":
		return Medium, nil
	case "low":
		return Low, nil
	case "unknown", "any":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown confidence %q", s)
}

// importConfidence grades an import by its shape.
func importConfidence(imp extract.Import) Confidence {
	switch imp.Kind {
	case extract.ImportDirect, extract.ImportFrom:
		return High
	case extract.ImportRelative:
		if imp.Level <= 1 {
			return Medium
		}
		return Low
	case extract.ImportStar:
		return Low
	default:
		return Unknown
	}
}
