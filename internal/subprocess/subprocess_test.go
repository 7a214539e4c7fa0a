package subprocess

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping Unix command test on Windows")
	}
}

func TestNewRunner(t *testing.T) {
	if got := NewRunner(0).Timeout(); got != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", got)
	}
	if got := NewRunner(time.Second).Timeout(); got != time.Second {
		t.Errorf("timeout = %v, want 1s", got)
	}
}

func TestRun(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner(5 * time.Second)

	tests := []struct {
		name    string
		input   string
		argv    []string
		want    string
		wantErr string
	}{
		{name: "stdin", input: "hello world", argv: []string{"cat"}, want: "hello world"},
		{name: "args", argv: []string{"echo", "one", "two"}, want: "one two\n"},
		{name: "stderr", argv: []string{"sh", "-c", "echo broken >&2; exit 3"}, wantErr: "broken"},
		{name: "missing", argv: []string{"nonexistent_command_xyz"}, wantErr: "failed to start"},
		{name: "empty", argv: nil, wantErr: "empty command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Run(context.Background(), tt.input, tt.argv)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, "", []string{"sleep", "10"})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("cancelled process was not killed")
	}
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	r := NewRunner(50 * time.Millisecond)

	_, err := r.Run(context.Background(), "", []string{"sleep", "10"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestExpand(t *testing.T) {
	got := Expand(
		[]string{"espeak-ng", "-v", "{voice}", "-s", "{rate}", "{text}"},
		map[string]string{"voice": "en", "rate": "175", "text": "say {voice} twice"},
	)
	want := []string{"espeak-ng", "-v", "en", "-s", "175", "say {voice} twice"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}
