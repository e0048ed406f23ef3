package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"wwhdasm/pkg/utils"
)

const (
	GCC = "powerpc-eabi-gcc"
	LD  = "powerpc-eabi-ld"
)

const windowsDefaultRoot = `C:\devkitPro\devkitPPC`

// DefaultRoot picks the devkitPPC installation from $DEVKITPPC, falling back
// to the standard Windows install location.
func DefaultRoot(env string) (string, error) {
	if env != "" {
		return env, nil
	}
	if runtime.GOOS == "windows" {
		return windowsDefaultRoot, nil
	}
	return "", errors.Errorf(`could not find devkitPPC, which must be defined in $DEVKITPPC or found at %s`, windowsDefaultRoot)
}

// DevkitPPC drives the powerpc-eabi tools. Every intermediate file lives in
// WorkDir.
type DevkitPPC struct {
	Root    string
	WorkDir string
	Runner  Runner
	Log     logr.Logger
}

func NewDevkitPPC(root, workDir string, runner Runner, log logr.Logger) *DevkitPPC {
	return &DevkitPPC{
		Root:    root,
		WorkDir: workDir,
		Runner:  runner,
		Log:     log,
	}
}

// NewWorkspace creates the scoped temporary directory for toolchain
// artifacts. The returned func removes it.
func NewWorkspace() (string, func(), error) {
	dir, err := os.MkdirTemp("", "wwhdasm-")
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create working directory")
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (d *DevkitPPC) ToolPath(name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(d.Root, "bin", name)
}

func (d *DevkitPPC) run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	d.Log.V(1).Info("running tool", "tool", tool, "args", strings.Join(args, " "))
	return d.Runner.Run(ctx, d.ToolPath(tool), args, nil)
}

// Path returns the location of name inside the working directory.
func (d *DevkitPPC) Path(name string) string {
	return filepath.Join(d.WorkDir, name)
}

func (d *DevkitPPC) WriteFile(name string, data []byte) (string, error) {
	path := d.Path(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}

// Preprocess runs the C preprocessor over an assembly source and returns the
// expanded text.
func (d *DevkitPPC) Preprocess(ctx context.Context, src string) ([]byte, error) {
	out := d.Path(filepath.Base(src) + ".i")

	// gcc wants assembly with cpp directives to end in .S; say so explicitly
	if _, err := d.run(ctx, GCC, "-E", "-x", "assembler-with-cpp", "-o", out, src); err != nil {
		return nil, err
	}

	text, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read preprocessed %s", out)
	}
	return text, nil
}

// Compile spills code to name inside the working directory and compiles it
// into a relocatable object, returning the object path and contents.
func (d *DevkitPPC) Compile(ctx context.Context, name string, code []byte, flags []string) (string, []byte, error) {
	src, err := d.WriteFile(name, code)
	if err != nil {
		return "", nil, err
	}

	obj := d.Path(strings.TrimSuffix(name, filepath.Ext(name)) + ".o")
	args := append(append([]string(nil), flags...), "-c", src, "-o", obj)
	if _, err := d.run(ctx, GCC, args...); err != nil {
		return "", nil, err
	}

	contents, err := os.ReadFile(obj)
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to read object %s", obj)
	}
	return obj, contents, nil
}

// Link places obj at origin, resolves what it can against the symbols in
// script and keeps the rest as relocations.
func (d *DevkitPPC) Link(ctx context.Context, obj string, origin uint32, script string) ([]byte, error) {
	binary := strings.TrimSuffix(obj, filepath.Ext(obj)) + ".elf"

	_, err := d.run(ctx, LD,
		"-Ttext", utils.Hex(origin),
		"--just-symbols", script,
		"--relocatable",
		"-o", binary,
		obj,
	)
	if err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(binary)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read linked binary %s", binary)
	}
	return contents, nil
}
