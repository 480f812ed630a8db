// Package source provides the frame sources the producer reads from.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
)

// ErrNoFrame is returned by FrameAt when the index is past the end of the
// source.
var ErrNoFrame = errors.New("no frame at index")

// Source supplies an ordered sequence of raw frames.
type Source interface {
	// Describe reports the frame count, shape and type of the source.
	Describe() frame.Descriptor

	// FrameAt returns the frame at index. Reading the same index twice must
	// yield the same frame.
	FrameAt(index int) (*frame.RawFrame, error)
}

// FileOptions control how input files are read
type FileOptions struct {
	// Format forces a reader ("npy", "tiff"); "" or "auto" uses the extension.
	Format string
	// Lazy reads frames from disk on demand instead of loading the file.
	Lazy bool
}

var (
	npyExtensions  = map[string]bool{".npy": true}
	tiffExtensions = map[string]bool{".tif": true, ".tiff": true}
	hdfExtensions  = map[string]bool{".h5": true, ".hdf": true, ".hdf5": true}
)

func formatOf(path string, opts FileOptions) string {
	if opts.Format != "" && opts.Format != "auto" {
		return opts.Format
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case npyExtensions[ext]:
		return "npy"
	case tiffExtensions[ext]:
		return "tiff"
	case hdfExtensions[ext]:
		return "hdf"
	}
	return ""
}

// Open opens a single input file
func Open(path string, opts FileOptions) (Source, error) {
	if path == "" {
		return nil, fmt.Errorf("invalid input file path")
	}
	switch format := formatOf(path, opts); format {
	case "npy":
		return OpenNpy(path, opts.Lazy)
	case "tiff", "tif":
		return NewTiffStack([]string{path})
	case "hdf", "h5":
		return nil, fmt.Errorf("cannot load input file %s: HDF5 input is not supported, convert it to .npy and set server.compression for compressed frames", path)
	default:
		return nil, fmt.Errorf("cannot load input file %s: unknown format %q", path, format)
	}
}

// OpenDir opens every supported file in dir in lexical order. Each run of
// consecutive TIFF files becomes one stack source; each NumPy file is its own
// source.
func OpenDir(dir string, opts FileOptions) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	log := logger.WithComponent("source")
	var (
		sources []Source
		tiffs   []string
	)
	// Consecutive TIFF files form one stack, kept in place among the others.
	flush := func() error {
		if len(tiffs) == 0 {
			return nil
		}
		stack, err := NewTiffStack(tiffs)
		if err != nil {
			return err
		}
		sources = append(sources, stack)
		tiffs = nil
		return nil
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		switch formatOf(path, opts) {
		case "tiff", "tif":
			tiffs = append(tiffs, path)
		case "npy":
			if err := flush(); err != nil {
				CloseAll(sources)
				return nil, err
			}
			src, err := OpenNpy(path, opts.Lazy)
			if err != nil {
				CloseAll(sources)
				return nil, err
			}
			sources = append(sources, src)
		default:
			log.Warn().Str("path", path).Msg("Skipping file with unsupported format")
		}
	}
	if err := flush(); err != nil {
		CloseAll(sources)
		return nil, err
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no supported input files in %s", dir)
	}
	return sources, nil
}

// CloseAll closes every source that holds resources
func CloseAll(sources []Source) {
	for _, s := range sources {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.WithComponent("source").Warn().Err(err).Msg("Failed to close source")
			}
		}
	}
}
