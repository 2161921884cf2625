package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner is a blocking-free line spinner for short CLI operations
// that run before or instead of the call screen.
type SimpleSpinner struct {
	out      io.Writer
	spinner  spinner.Spinner
	interval time.Duration

	message string

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newSpinner(message string, s spinner.Spinner, interval time.Duration) *SimpleSpinner {
	return &SimpleSpinner{
		out:      os.Stdout,
		spinner:  s,
		interval: interval,
		message:  message,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// NewSimpleSpinner creates a spinner for REST calls (Dot style)
func NewSimpleSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Dot, 80*time.Millisecond)
}

// NewConnectionSpinner creates a spinner for the signaling handshake (Globe style)
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

func (s *SimpleSpinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(frames[i%len(frames)]), s.message)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the spinner and clears its line. It is safe to call more than once.
func (s *SimpleSpinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		<-s.stopped
		fmt.Fprint(s.out, "\r\033[K")
	})
}

// RunSpinner starts a loading spinner and returns a stop function
func RunSpinner(message string) func() {
	sp := NewSimpleSpinner(message)
	sp.Start()
	return sp.Stop
}

// RunConnectionSpinner starts a connection spinner and returns a stop function
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}
