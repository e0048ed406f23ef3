package linker

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const testRoot = "/game"

// fakeToolchain serves fixture objects by chunk file name instead of
// running devkitPPC.
type fakeToolchain struct {
	preprocessed map[string]string
	objects      map[string][]byte
	linked       map[string][]byte

	compiled []string
	links    []uint32
	files    map[string][]byte
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		preprocessed: make(map[string]string),
		objects:      make(map[string][]byte),
		linked:       make(map[string][]byte),
		files:        make(map[string][]byte),
	}
}

func stem(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}

func (f *fakeToolchain) Preprocess(_ context.Context, src string) ([]byte, error) {
	text, ok := f.preprocessed[src]
	if !ok {
		return nil, errors.Errorf("%s: no such file", src)
	}
	return []byte(text), nil
}

func (f *fakeToolchain) Compile(_ context.Context, name string, _ []byte, _ []string) (string, []byte, error) {
	f.compiled = append(f.compiled, name)
	obj, ok := f.objects[stem(name)]
	if !ok {
		return "", nil, errors.Errorf("%s: Error: unrecognized opcode", name)
	}
	return "/tmp/work/" + stem(name) + ".o", obj, nil
}

func (f *fakeToolchain) Link(_ context.Context, obj string, origin uint32, _ string) ([]byte, error) {
	f.links = append(f.links, origin)
	if linked, ok := f.linked[stem(obj)]; ok {
		return linked, nil
	}
	return f.objects[stem(obj)], nil
}

func (f *fakeToolchain) WriteFile(name string, data []byte) (string, error) {
	f.files[name] = data
	return "/tmp/work/" + name, nil
}

func newTestContext(fs afero.Fs, tc Toolchain, layout MemoryMap) *Context {
	args := ContextArgs{
		Root:   testRoot,
		Layout: layout,
		CFlags: []string{"-O2", "-fno-exceptions"},
	}
	return NewContext(args, fs, tc, logr.Discard())
}
