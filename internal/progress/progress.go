// Package progress renders progress bars on stderr.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar for file processing.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
	out   io.Writer
}

// NewSpinner creates a spinner for operations with unknown total count.
func NewSpinner(label string) *Tracker {
	return newSpinner(os.Stderr, label)
}

func newSpinner(w io.Writer, label string) *Tracker {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Tracker{bar: bar, label: label, out: w}
}

// NewTracker creates a progress bar with the given label and total count.
func NewTracker(label string, total int) *Tracker {
	return newTracker(os.Stderr, label, total)
}

func newTracker(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, label: label, out: w}
}

// Tick increments the progress by 1. Safe for concurrent use.
func (t *Tracker) Tick() {
	_ = t.bar.Add(1)
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
	fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
}

// Stages shows one bar per analysis stage. A negative total shows a spinner.
// The zero value is not usable; call NewStages.
type Stages struct {
	mu      sync.Mutex
	out     io.Writer
	current *Tracker
}

// NewStages reports stages on stderr.
func NewStages() *Stages {
	return &Stages{out: os.Stderr}
}

// Start finishes the running stage, if any, and begins a new one.
func (s *Stages) Start(label string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.FinishSuccess()
	}
	if total < 0 {
		s.current = newSpinner(s.out, label)
		return
	}
	s.current = newTracker(s.out, label, total)
}

// Tick advances the running stage. Safe for concurrent use.
func (s *Stages) Tick() {
	s.mu.Lock()
	t := s.current
	s.mu.Unlock()
	if t != nil {
		t.Tick()
	}
}

// Finish clears the running stage.
func (s *Stages) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.FinishSuccess()
		s.current = nil
	}
}
