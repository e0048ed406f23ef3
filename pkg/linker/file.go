package linker

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

type File struct {
	Name     string
	Contents []byte
}

func NewFile(fs afero.Fs, filename string) (*File, error) {
	contents, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", filename)
	}
	return &File{
		Name:     filename,
		Contents: contents,
	}, nil
}
