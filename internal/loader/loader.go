// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
	"github.com/sofastack/sofa-ark-sub003/pkg/cueutil"
)

const (
	// CUEFile is the CUE descriptor file name.
	CUEFile = "module.cue"
	// TOMLFile is the TOML descriptor file name.
	TOMLFile = "module.toml"
	// YAMLFile is the YAML descriptor file name.
	YAMLFile = "module.yaml"

	descriptorGlob = "*/module.{cue,toml,yaml}"
)

// ErrNoDescriptor is returned when a module directory holds no descriptor file.
var ErrNoDescriptor = errors.New("no module descriptor found")

//go:embed descriptor_schema.cue
var descriptorSchema []byte

// descriptorFiles lists the accepted file names in lookup order.
var descriptorFiles = []string{CUEFile, TOMLFile, YAMLFile}

type (
	// FileLoader loads descriptors from module directories.
	FileLoader struct {
		dirs   []string
		logger *slog.Logger
	}

	// Option configures a FileLoader.
	Option func(*FileLoader)
)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLoader) {
		l.logger = logger
	}
}

// New creates a FileLoader searching dirs in order.
func New(dirs []string, opts ...Option) *FileLoader {
	l := &FileLoader{dirs: slices.Clone(dirs), logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dirs returns the module directories searched by the loader.
func (l *FileLoader) Dirs() []string { return slices.Clone(l.dirs) }

// LoadDescriptor reads the descriptor for loc. The location parameter, when
// set, takes precedence over the module directories.
func (l *FileLoader) LoadDescriptor(ctx context.Context, loc arkmod.Locator) (arkmod.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return arkmod.Descriptor{}, err
	}

	path, err := l.find(loc)
	if err != nil {
		return arkmod.Descriptor{}, &arkmod.ModuleLoadError{Key: loc.Key, Location: loc.Location(), Cause: err}
	}
	d, err := ReadDescriptor(path)
	if err != nil {
		return arkmod.Descriptor{}, &arkmod.ModuleLoadError{Key: loc.Key, Location: path, Cause: err}
	}
	l.logger.Debug("descriptor loaded", "module", d.Key().String(), "path", path)
	return d, nil
}

// MaterializeNamespace builds the in-memory namespace described by d.
func (l *FileLoader) MaterializeNamespace(ctx context.Context, d arkmod.Descriptor) (arkmod.Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := d.Key()
	return arkmod.NewSymbolNamespace(key.String(), key, d.Provides.Types, d.Provides.Resources), nil
}

// Discover reads every descriptor under the module directories. Unreadable
// descriptors are skipped and reported in the joined error.
func (l *FileLoader) Discover(ctx context.Context) ([]arkmod.Descriptor, error) {
	var (
		out  []arkmod.Descriptor
		errs []error
		seen = make(map[arkmod.Key]string)
	)
	for _, dir := range l.dirs {
		matches, err := doublestar.Glob(os.DirFS(dir), descriptorGlob)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", dir, err))
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			path := filepath.Join(dir, filepath.FromSlash(m))
			d, err := ReadDescriptor(path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if prev, dup := seen[d.Key()]; dup {
				l.logger.Warn("duplicate module descriptor ignored", "module", d.Key().String(), "path", path, "first", prev)
				continue
			}
			seen[d.Key()] = path
			out = append(out, d)
		}
	}
	return out, errors.Join(errs...)
}

func (l *FileLoader) find(loc arkmod.Locator) (string, error) {
	if explicit := loc.Location(); explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return explicit, nil
		}
		return descriptorIn(explicit)
	}

	name := loc.Key.Name + "-" + loc.Key.Version
	for _, dir := range l.dirs {
		path, err := descriptorIn(filepath.Join(dir, name))
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, ErrNoDescriptor) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w for %s in %v", ErrNoDescriptor, loc.Key, l.dirs)
}

func descriptorIn(dir string) (string, error) {
	for _, name := range descriptorFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoDescriptor, dir)
}

// ReadDescriptor decodes a descriptor file, picking the format from its
// extension, and records the module directory as its location.
func ReadDescriptor(path string) (arkmod.Descriptor, error) {
	var (
		d   arkmod.Descriptor
		err error
	)
	switch filepath.Ext(path) {
	case ".cue":
		d, err = decodeCUE(path)
	case ".toml":
		d, err = decodeWith(path, func(data []byte, d *arkmod.Descriptor) error {
			dec := toml.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			return dec.Decode(d)
		})
	case ".yaml", ".yml":
		d, err = decodeWith(path, func(data []byte, d *arkmod.Descriptor) error {
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			return dec.Decode(d)
		})
	default:
		return arkmod.Descriptor{}, fmt.Errorf("%s: unsupported descriptor format", path)
	}
	if err != nil {
		return arkmod.Descriptor{}, err
	}

	d.Location = filepath.Dir(path)
	if err := d.Validate(); err != nil {
		return arkmod.Descriptor{}, err
	}
	return d, nil
}

func decodeCUE(path string) (arkmod.Descriptor, error) {
	d, err := cueutil.DecodeFile[arkmod.Descriptor](descriptorSchema, path, "#Descriptor")
	if err != nil {
		return arkmod.Descriptor{}, err
	}
	return *d, nil
}

// decodeWith reads path and decodes it over a descriptor whose priority is
// preset to the default, so an absent priority key keeps it.
func decodeWith(path string, decode func([]byte, *arkmod.Descriptor) error) (arkmod.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return arkmod.Descriptor{}, err
	}
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return arkmod.Descriptor{}, err
	}
	d := arkmod.Descriptor{Priority: arkmod.DefaultPriority}
	if err := decode(data, &d); err != nil {
		return arkmod.Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
