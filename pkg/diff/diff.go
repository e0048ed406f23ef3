package diff

import (
	"cmp"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"wwhdasm/pkg/linker"
)

const (
	DiffsDir    = "patch_diffs"
	diffSuffix  = "_diff.yaml"
	SymbolsFile = "custom_symbols.yaml"
)

// Writer persists build results under a game root.
type Writer struct {
	Fs   afero.Fs
	Root string
	Log  logr.Logger
}

func NewWriter(fs afero.Fs, root string, log logr.Logger) *Writer {
	return &Writer{Fs: fs, Root: root, Log: log}
}

// DiffPath is where the diff of source is written.
func (w *Writer) DiffPath(source string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(w.Root, DiffsDir, stem+diffSuffix)
}

// Purge removes the diffs of a previous run so a failed build leaves none
// behind.
func (w *Writer) Purge() error {
	stale, err := afero.Glob(w.Fs, filepath.Join(w.Root, DiffsDir, "*"+diffSuffix))
	if err != nil {
		return errors.Wrap(err, "failed to list old diffs")
	}

	var errs error
	for _, path := range stale {
		if err := w.Fs.Remove(path); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "failed to remove %s", path))
			continue
		}
		w.Log.V(1).Info("removed old diff", "path", path)
	}
	return errs
}

// DiffNode lays out one source's diff: Data maps each origin to its bytes,
// and Relocations is only present when something was deferred.
func DiffNode(d *linker.SourceDiff) *yaml.Node {
	data := mapNode(0)
	patches := slices.SortedFunc(slices.Values(d.Patches), func(a, b linker.Patch) int {
		return cmp.Compare(a.Origin, b.Origin)
	})
	for _, p := range patches {
		data.Content = append(data.Content, hexNode(p.Origin), bytesNode(p.Data))
	}

	root := mapNode(0)
	root.Content = append(root.Content, strNode("Data"), data)

	if len(d.Relocations) > 0 {
		rels := seqNode(0)
		for _, r := range d.Relocations {
			m := mapNode(yaml.FlowStyle)
			m.Content = append(m.Content,
				strNode("r_addend"), hexNode(r.Addend),
				strNode("r_info"), hexNode(r.Info()),
				strNode("r_offset"), hexNode(r.Offset),
			)
			rels.Content = append(rels.Content, m)
		}
		root.Content = append(root.Content, strNode("Relocations"), rels)
	}

	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

// SymbolsNode lays out name -> address, sorted by name.
func SymbolsNode(symbols map[string]uint32) *yaml.Node {
	root := mapNode(0)
	for _, name := range slices.Sorted(maps.Keys(symbols)) {
		root.Content = append(root.Content, strNode(name), hexNode(symbols[name]))
	}
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

func (w *Writer) write(path string, node *yaml.Node, trailer string) error {
	out, err := Encode(node)
	if err != nil {
		return errors.Wrap(err, path)
	}
	out = append(out, trailer...)

	if err := w.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := afero.WriteFile(w.Fs, path, out, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func (w *Writer) WriteDiff(d *linker.SourceDiff) (string, error) {
	path := w.DiffPath(d.Source)
	if err := w.write(path, DiffNode(d), ""); err != nil {
		return "", err
	}
	w.Log.Info("wrote diff", "path", path, "patches", len(d.Patches), "relocations", len(d.Relocations))
	return path, nil
}

// CheckSources fails if two sources share a stem, since their diffs would
// overwrite each other.
func (w *Writer) CheckSources(sources []string) error {
	seen := make(map[string]string)
	for _, source := range sources {
		path := w.DiffPath(source)
		if prev, ok := seen[path]; ok {
			return errors.Errorf("%s and %s would both be written to %s", prev, source, path)
		}
		seen[path] = source
	}
	return nil
}

// WriteDiffs writes one file per source. Nothing is written if two sources
// collide.
func (w *Writer) WriteDiffs(diffs []*linker.SourceDiff) error {
	sources := make([]string, 0, len(diffs))
	for _, d := range diffs {
		sources = append(sources, d.Source)
	}
	if err := w.CheckSources(sources); err != nil {
		return err
	}

	for _, d := range diffs {
		if _, err := w.WriteDiff(d); err != nil {
			return err
		}
	}
	return nil
}

// WriteSymbols persists the public symbol table for other tooling.
func (w *Writer) WriteSymbols(symbols map[string]uint32) (string, error) {
	path := filepath.Join(w.Root, SymbolsFile)
	if err := w.write(path, SymbolsNode(symbols), "\n"); err != nil {
		return "", err
	}
	w.Log.Info("wrote symbols", "path", path, "count", len(symbols))
	return path, nil
}
