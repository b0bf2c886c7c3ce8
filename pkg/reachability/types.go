package reachability

import (
	"fmt"

	"github.com/panbanda/reach/pkg/callgraph"
)

// Status is the verdict for one function.
type Status uint8

const (
	// StatusUnreferenced has no callers, is not a test, and nothing but the
	// lack of callers makes it an entry point. These are dead-code candidates.
	StatusUnreferenced Status = iota
	// StatusLive has at least one caller.
	StatusLive
	// StatusEntryPoint is flagged as an entry point by language conventions.
	StatusEntryPoint
	// StatusPublicAPI is exported and uncalled inside the tree.
	StatusPublicAPI
	// StatusTest is a test function.
	StatusTest
	// StatusTestOnly has callers, but only tests reach it.
	StatusTestOnly
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusEntryPoint:
		return "entry_point"
	case StatusPublicAPI:
		return "public_api"
	case StatusTest:
		return "test"
	case StatusTestOnly:
		return "test_only"
	default:
		return "unreferenced"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus converts a status name back into a Status.
func ParseStatus(s string) (Status, error) {
	for st := StatusUnreferenced; st <= StatusTestOnly; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return StatusUnreferenced, fmt.Errorf("unknown status %q", s)
}

// ConfidenceLevel indicates how likely an unreferenced function is dead code.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// Thresholds for mapping a numeric confidence onto a level.
const (
	HighThreshold   = 0.8
	MediumThreshold = 0.5
)

// LevelFor maps a 0..1 confidence onto a level.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= HighThreshold:
		return ConfidenceHigh
	case confidence >= MediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Classification is the verdict for one function.
type Classification struct {
	ID     callgraph.FunctionID `json:"id" toon:"id"`
	Status Status               `json:"status" toon:"status"`
	// Reason names the liveness source, or why the function is unreferenced.
	Reason  string `json:"reason" toon:"reason"`
	Callers int    `json:"callers" toon:"callers"`
	// Confidence is set for unreferenced functions only: how likely the
	// function is dead code.
	Confidence      float64         `json:"confidence,omitempty" toon:"confidence,omitempty"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level,omitempty" toon:"confidence_level,omitempty"`
}

// Summary counts classifications by status.
type Summary struct {
	Total        int `json:"total" toon:"total"`
	EntryPoints  int `json:"entry_points" toon:"entry_points"`
	Live         int `json:"live" toon:"live"`
	PublicAPI    int `json:"public_api" toon:"public_api"`
	Tests        int `json:"tests" toon:"tests"`
	TestOnly     int `json:"test_only" toon:"test_only"`
	Unreferenced int `json:"unreferenced" toon:"unreferenced"`
}

func (s *Summary) add(st Status) {
	s.Total++
	switch st {
	case StatusEntryPoint:
		s.EntryPoints++
	case StatusLive:
		s.Live++
	case StatusPublicAPI:
		s.PublicAPI++
	case StatusTest:
		s.Tests++
	case StatusTestOnly:
		s.TestOnly++
	default:
		s.Unreferenced++
	}
}

// Analysis holds one classification per function, in graph order.
type Analysis struct {
	Classifications []Classification `json:"classifications" toon:"classifications"`
	Summary         Summary          `json:"summary" toon:"summary"`

	byID map[callgraph.FunctionID]int
}

// Get returns the classification of a function.
func (a *Analysis) Get(id callgraph.FunctionID) (Classification, bool) {
	i, ok := a.byID[id]
	if !ok {
		return Classification{}, false
	}
	return a.Classifications[i], true
}

// Status returns the verdict for a function; unknown functions are unreferenced.
func (a *Analysis) Status(id callgraph.FunctionID) Status {
	c, _ := a.Get(id)
	return c.Status
}

// Dead lists the dead-code candidates: unreferenced functions whose
// confidence is at least minConfidence.
func (a *Analysis) Dead(minConfidence float64) []Classification {
	var out []Classification
	for _, c := range a.Classifications {
		if c.Status == StatusUnreferenced && c.Confidence >= minConfidence {
			out = append(out, c)
		}
	}
	return out
}
