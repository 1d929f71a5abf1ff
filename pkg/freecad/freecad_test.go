package freecad

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeTool writes a shell script standing in for freecadcmd. It receives
// the conversion script path as its first argument and can derive the
// scratch directory from it, like the real tool would via the embedded
// absolute paths.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-freecadcmd")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake tool: %v", err)
	}
	return path
}

func TestLocate(t *testing.T) {
	path := fakeTool(t, "exit 0")

	tool, err := Locate(path)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if tool.Path != path {
		t.Errorf("Path failed: expected %q, got %q", path, tool.Path)
	}
}

func TestLocateNotFound(t *testing.T) {
	_, err := Locate("definitely-not-a-real-binary-name")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConvertToSTL(t *testing.T) {
	path := fakeTool(t, `dir=$(dirname "$1")
printf 'solid converted\nendsolid converted\n' > "$dir/output.stl"`)
	tool := &Tool{Path: path}

	data, err := tool.ConvertToSTL(context.Background(), []byte("ISO-10303-21;"), Options{
		ScratchBase: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("ConvertToSTL failed: %v", err)
	}
	if !strings.Contains(string(data), "solid converted") {
		t.Errorf("output failed: got %q", data)
	}
}

func TestConvertToSTLExitError(t *testing.T) {
	path := fakeTool(t, `echo "kernel exploded" >&2
exit 3`)
	tool := &Tool{Path: path}

	_, err := tool.ConvertToSTL(context.Background(), []byte("ISO-10303-21;"), Options{
		ScratchBase: t.TempDir(),
	})
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if runErr.ExitCode != 3 {
		t.Errorf("ExitCode failed: expected 3, got %d", runErr.ExitCode)
	}
	if !strings.Contains(runErr.Stderr, "kernel exploded") {
		t.Errorf("Stderr failed: got %q", runErr.Stderr)
	}
}

func TestConvertToSTLNoOutput(t *testing.T) {
	path := fakeTool(t, "exit 0")
	tool := &Tool{Path: path}

	_, err := tool.ConvertToSTL(context.Background(), []byte("ISO-10303-21;"), Options{
		ScratchBase: t.TempDir(),
	})
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if !strings.Contains(runErr.Stderr, "no STL output") {
		t.Errorf("Stderr failed: got %q", runErr.Stderr)
	}
}

func TestConvertToSTLTimeout(t *testing.T) {
	path := fakeTool(t, "sleep 30")
	tool := &Tool{Path: path}

	start := time.Now()
	_, err := tool.ConvertToSTL(context.Background(), []byte("ISO-10303-21;"), Options{
		Timeout:     100 * time.Millisecond,
		ScratchBase: t.TempDir(),
	})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestConvertToSTLCancel(t *testing.T) {
	path := fakeTool(t, "sleep 30")
	tool := &Tool{Path: path}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := tool.ConvertToSTL(ctx, []byte("ISO-10303-21;"), Options{
		ScratchBase: t.TempDir(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConvertToSTLScratchCleanup(t *testing.T) {
	base := t.TempDir()

	ok := fakeTool(t, `dir=$(dirname "$1")
printf 'solid x\nendsolid x\n' > "$dir/output.stl"`)
	failing := fakeTool(t, "exit 1")

	tool := &Tool{Path: ok}
	if _, err := tool.ConvertToSTL(context.Background(), []byte("data"), Options{ScratchBase: base}); err != nil {
		t.Fatalf("ConvertToSTL failed: %v", err)
	}

	tool = &Tool{Path: failing}
	if _, err := tool.ConvertToSTL(context.Background(), []byte("data"), Options{ScratchBase: base}); err == nil {
		t.Fatal("expected failure from failing tool")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "gocad-") {
			t.Errorf("scratch directory %s left behind", entry.Name())
		}
	}
}
