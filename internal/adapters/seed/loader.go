package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/ports"
)

var _ ports.SeedSource = (*Loader)(nil)

// Loader reads the static seed catalog from a JSON or YAML file. JSON is
// accepted because it is valid YAML. The file holds either a list of shelves
// or a mapping with a "shelves" key.
type Loader struct {
	fs   afero.Fs
	path string
}

// NewLoader creates a seed loader for the file at path
func NewLoader(fs afero.Fs, path string) *Loader {
	return &Loader{fs: fs, path: path}
}

// Load parses the seed file. Items are returned as written; normalization is
// the caller's job.
func (l *Loader) Load(ctx context.Context) ([]entities.Shelf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", entities.ErrSeedInvalid, l.path)
		}
		return nil, fmt.Errorf("%w: read %s: %w", entities.ErrSeedInvalid, l.path, err)
	}

	shelves, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return shelves, nil
}

// Parse decodes a seed catalog document
func Parse(data []byte) ([]entities.Shelf, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrSeedInvalid, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", entities.ErrSeedInvalid)
	}

	node := root.Content[0]
	var shelves []entities.Shelf

	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&shelves); err != nil {
			return nil, fmt.Errorf("%w: %w", entities.ErrSeedInvalid, err)
		}
	case yaml.MappingNode:
		var doc struct {
			Shelves *[]entities.Shelf `yaml:"shelves"`
		}
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", entities.ErrSeedInvalid, err)
		}
		if doc.Shelves == nil {
			return nil, fmt.Errorf("%w: missing shelves list", entities.ErrSeedInvalid)
		}
		shelves = *doc.Shelves
	default:
		return nil, fmt.Errorf("%w: expected a list of shelves", entities.ErrSeedInvalid)
	}

	if shelves == nil {
		shelves = []entities.Shelf{}
	}
	return shelves, nil
}
