package main

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wwhdasm/pkg/linker"
)

// noTools fails every toolchain call; the runs below never get that far.
type noTools struct {
	scripts int
}

func (*noTools) Preprocess(context.Context, string) ([]byte, error) {
	return nil, errors.New("unexpected preprocess")
}

func (*noTools) Compile(context.Context, string, []byte, []string) (string, []byte, error) {
	return "", nil, errors.New("unexpected compile")
}

func (*noTools) Link(context.Context, string, uint32, string) ([]byte, error) {
	return nil, errors.New("unexpected link")
}

func (n *noTools) WriteFile(name string, _ []byte) (string, error) {
	n.scripts++
	return "/tmp/work/" + name, nil
}

func testConfig() Config {
	return Config{Root: "/game", Layout: linker.DefaultMemoryMap, LogLevel: "info"}
}

func TestRunPurgesBeforeFailing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/game/patch_diffs/old_diff.yaml", []byte("Data: {}\n"), 0o644))

	err := Run(context.Background(), fs, testConfig(), &noTools{}, logr.Discard())
	assert.ErrorContains(t, err, "failed to list /game/patches")

	exists, err := afero.Exists(fs, "/game/patch_diffs/old_diff.yaml")
	require.NoError(t, err)
	assert.False(t, exists, "a failed run must not leave old diffs behind")
}

func TestRunEmptyCorpus(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/game/patches", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/game/patches/common.h", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/game/linker.ld", []byte("OSReport = 0x0204a1c0;"), 0o644))

	tc := &noTools{}
	require.NoError(t, Run(context.Background(), fs, testConfig(), tc, logr.Discard()))
	assert.Equal(t, 1, tc.scripts)

	out, err := afero.ReadFile(fs, "/game/custom_symbols.yaml")
	require.NoError(t, err)
	assert.Equal(t, "{}\n\n", string(out))
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := NewRootCommand(afero.NewMemMapFs())
	cmd.SetArgs([]string{"patches/main.asm"})
	assert.Error(t, cmd.Execute())
}

func TestRunStemCollisionWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/game/patches/items.S", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/game/patches/items.asm", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/game/linker.ld", []byte("OSReport = 0x0204a1c0;"), 0o644))

	tc := &noTools{}
	err := Run(context.Background(), fs, testConfig(), tc, logr.Discard())
	assert.ErrorContains(t, err, "would both be written to /game/patch_diffs/items_diff.yaml")
	assert.Zero(t, tc.scripts)

	exists, err := afero.Exists(fs, "/game/custom_symbols.yaml")
	require.NoError(t, err)
	assert.False(t, exists)

	diffs, err := afero.Glob(fs, "/game/patch_diffs/*_diff.yaml")
	require.NoError(t, err)
	assert.Empty(t, diffs)
}
