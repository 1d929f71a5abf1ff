// Package freecad drives a headless FreeCAD process to tessellate STEP
// geometry into STL. The kernel does the real CAD work; this package only
// manages scripts, scratch space and the process lifecycle.
package freecad

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// DefaultCandidates lists the executable names probed for, in order. The
// macOS bundle path is included because the cask install does not put a
// launcher on PATH.
var DefaultCandidates = []string{
	"freecadcmd",
	"FreeCADCmd",
	"/Applications/FreeCAD.app/Contents/MacOS/FreeCAD",
	"freecad",
}

const (
	// DefaultTimeout bounds one conversion run.
	DefaultTimeout = 180 * time.Second

	// DefaultDeflectionRatio scales the shape's bounding box diagonal into
	// the linear deflection passed to the mesher.
	DefaultDeflectionRatio = 1e-3
)

// ErrNotFound means no FreeCAD executable is installed.
var ErrNotFound = errors.New("freecad executable not found")

// ErrTimedOut means the kernel did not finish within the allowed time.
var ErrTimedOut = errors.New("freecad conversion timed out")

// RunError reports a FreeCAD process that exited abnormally.
type RunError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("freecad exited with code %d", e.ExitCode)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	if e.Stdout != "" {
		msg += "\nstdout: " + e.Stdout
	}
	return msg
}

// Tool is a located FreeCAD executable.
type Tool struct {
	Path string
}

// Locate returns a Tool for the first working candidate. With no arguments
// it probes DefaultCandidates.
func Locate(candidates ...string) (*Tool, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return &Tool{Path: path}, nil
		}
	}
	return nil, ErrNotFound
}

// Options tune a single conversion run. Zero values select the defaults.
type Options struct {
	// Timeout bounds the kernel run. Defaults to DefaultTimeout.
	Timeout time.Duration

	// DeflectionRatio controls tessellation fineness as a fraction of the
	// bounding box diagonal. Defaults to DefaultDeflectionRatio.
	DeflectionRatio float64

	// ScratchBase is where per-run scratch directories are created.
	// Defaults to the system temp directory.
	ScratchBase string
}

// ConvertToSTL feeds STEP data through the FreeCAD kernel and returns the
// resulting binary STL bytes. All intermediate files live in a fresh
// scratch directory that is removed before returning, also on failure. On
// cancellation the whole process group is killed so no mesher children
// linger.
func (t *Tool) ConvertToSTL(ctx context.Context, stepData []byte, opts Options) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DeflectionRatio <= 0 {
		opts.DeflectionRatio = DefaultDeflectionRatio
	}
	if opts.ScratchBase == "" {
		opts.ScratchBase = os.TempDir()
	}

	dir := filepath.Join(opts.ScratchBase, "gocad-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	stepPath := filepath.Join(dir, "input.step")
	stlPath := filepath.Join(dir, "output.stl")
	scriptPath := filepath.Join(dir, "convert.py")

	if err := os.WriteFile(stepPath, stepData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write STEP input: %w", err)
	}
	script, err := renderScript(stepPath, stlPath, opts.DeflectionRatio)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(scriptPath, script, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write conversion script: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.Command(t.Path, scriptPath)
	cmd.Dir = dir
	// Own process group, so cancellation kills mesher children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", t.Path, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimedOut, opts.Timeout)
		}
		return nil, fmt.Errorf("conversion cancelled: %w", ctx.Err())
	case err = <-done:
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &RunError{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("failed to run %s: %w", t.Path, err)
	}

	data, err := os.ReadFile(stlPath)
	if err != nil || len(data) == 0 {
		return nil, &RunError{
			ExitCode: 0,
			Stdout:   stdout.String(),
			Stderr:   stderr.String() + "\nkernel reported success but produced no STL output",
		}
	}
	return data, nil
}

// conversionScript imports the STEP file, meshes every shape with a linear
// deflection derived from its bounding box, and writes one combined STL.
// MeshPart gives the best quality; plain tessellation covers builds
// without it.
var conversionScript = template.Must(template.New("convert").Parse(`import sys
import FreeCAD
import Import
import Mesh

step_path = r"{{.StepPath}}"
stl_path = r"{{.STLPath}}"
ratio = {{.DeflectionRatio}}

try:
    Import.insert(step_path, "conversion")
    doc = FreeCAD.ActiveDocument
    if doc is None:
        print("no document after import")
        sys.exit(2)
    shapes = []
    for obj in doc.Objects:
        shape = getattr(obj, "Shape", None)
        if shape is not None and not shape.isNull():
            shapes.append(shape)
    if not shapes:
        print("document contains no shapes")
        sys.exit(3)
    combined = Mesh.Mesh()
    for shape in shapes:
        deflection = max(shape.BoundBox.DiagonalLength * ratio, 0.001)
        try:
            import MeshPart
            part = MeshPart.meshFromShape(Shape=shape, LinearDeflection=deflection)
        except ImportError:
            part = Mesh.Mesh()
            part.addFacets(shape.tessellate(deflection))
        combined.addMesh(part)
    combined.write(stl_path)
    sys.exit(0)
except Exception as exc:
    print("conversion failed: %s" % exc)
    sys.exit(1)
`))

func renderScript(stepPath, stlPath string, ratio float64) ([]byte, error) {
	var buf bytes.Buffer
	err := conversionScript.Execute(&buf, struct {
		StepPath        string
		STLPath         string
		DeflectionRatio float64
	}{stepPath, stlPath, ratio})
	if err != nil {
		return nil, fmt.Errorf("failed to render conversion script: %w", err)
	}
	return buf.Bytes(), nil
}
