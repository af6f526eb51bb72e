package output

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestIsTerminal_NonFileWriter(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a bytes.Buffer is never a terminal")
	}
}

func TestIsTerminal_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Error("a regular file is not a terminal")
	}
}

func TestSpinner_NonTTYPrintsOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner(buf, "Searching for updates")

	s.Start()
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	if got := buf.String(); got != "Searching for updates...\n" {
		t.Errorf("non-TTY spinner should print its label once, got: %q", got)
	}
}

func TestSpinner_Running(t *testing.T) {
	s := NewSpinner(&bytes.Buffer{}, "Test")
	if s.Running() {
		t.Error("new spinner should not be running")
	}

	s.Start()
	if !s.Running() {
		t.Error("spinner should be running after Start()")
	}

	s.Stop()
	if s.Running() {
		t.Error("spinner should not be running after Stop()")
	}
}

func TestSpinner_Restart(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner(buf, "Again")
	s.Start()
	s.Stop()
	s.Start()
	s.Stop()

	if got := strings.Count(buf.String(), "Again..."); got != 2 {
		t.Errorf("expected label printed once per start, got %d in %q", got, buf.String())
	}
}

func TestSpinner_StopIsIdempotent(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner(buf, "Never started")
	s.Stop()
	if buf.Len() != 0 {
		t.Errorf("Stop() without Start() should write nothing, got %q", buf.String())
	}

	s.Start()
	s.Stop()
	s.Stop()
}

func TestSpinner_Text(t *testing.T) {
	tests := []struct {
		name    string
		elapsed bool
		started time.Time
		want    string
	}{
		{"plain", false, time.Now().Add(-5 * time.Second), "Checking"},
		{"elapsed before start", true, time.Time{}, "Checking"},
		{"elapsed", true, time.Now().Add(-5 * time.Second), "Checking (5s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSpinner(&bytes.Buffer{}, "Initial")
			s.SetLabel("Checking")
			if tt.elapsed {
				s.WithElapsed()
			}
			s.started = tt.started
			if got := s.text(); got != tt.want {
				t.Errorf("text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpinner_ConcurrentLabels(t *testing.T) {
	s := NewSpinner(&bytes.Buffer{}, "Concurrent spinner")
	s.Start()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.SetLabel("Message from goroutine")
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	s.Stop()
}

func BenchmarkFormatRelativeTime(b *testing.B) {
	times := []time.Time{
		time.Now().Add(-30 * time.Second),
		time.Now().Add(-5 * time.Minute),
		time.Now().Add(-2 * time.Hour),
		time.Now().Add(-3 * 24 * time.Hour),
		time.Now().Add(-30 * 24 * time.Hour),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		formatRelativeTime(times[i%len(times)])
	}
}
