package sptree

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/annlab/sptree/core"
	"github.com/annlab/sptree/metadata"
)

func (x *VectorIndex) liveCount() int32 {
	return x.plugin.NumSamples() - x.plugin.NumDeleted()
}

func (x *VectorIndex) metaSnapshot() *metadata.Set {
	x.metaMu.RLock()
	defer x.metaMu.RUnlock()
	return x.meta
}

// CalculateBufferSizes returns the exact byte size of every blob a
// blob-mode save produces: the plugin's data blobs followed by the
// metadata payload and offset blobs.
func (x *VectorIndex) CalculateBufferSizes() []uint64 {
	sizes := x.plugin.BufferSizes()
	x.metaMu.RLock()
	payload, offsets := x.meta.BufferSizes()
	x.metaMu.RUnlock()
	return append(sizes, payload, offsets)
}

// SaveIndex persists the index into a folder: the loader config, the
// metadata file pair, and the plugin's data files. An index with no live
// samples is not saved and returns core.ErrEmptyIndex. When enough
// tombstones accumulated the plugin writes a compacted copy instead,
// reassigning identifiers densely.
func (x *VectorIndex) SaveIndex(folder string) error {
	if x.liveCount() == 0 {
		return core.ErrEmptyIndex
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("%w: %s", core.ErrFailedCreateFile, err)
	}

	cfg, err := os.Create(filepath.Join(folder, configFile))
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrFailedCreateFile, err)
	}
	if err := x.SaveIndexConfig(cfg); err != nil {
		cfg.Close()
		return err
	}
	if err := cfg.Close(); err != nil {
		return err
	}

	meta := x.metaSnapshot()
	if x.plugin.NeedRefine() {
		// The refine path writes everything itself, metadata included.
		names := append(x.plugin.DataFiles(), x.metadataFile, x.metadataIndexFile)
		files, ws, err := createFiles(folder, names)
		if err != nil {
			return err
		}
		refineErr := x.plugin.Refine(ws, meta)
		if err := closeFiles(files); refineErr == nil {
			refineErr = err
		}
		if refineErr == nil {
			x.logger.Info("index saved compacted", "folder", folder)
		}
		return refineErr
	}

	if err := meta.SaveToFiles(
		filepath.Join(folder, x.metadataFile),
		filepath.Join(folder, x.metadataIndexFile),
	); err != nil {
		return err
	}
	files, ws, err := createFiles(folder, x.plugin.DataFiles())
	if err != nil {
		return err
	}
	saveErr := x.plugin.SaveData(ws)
	if err := closeFiles(files); saveErr == nil {
		saveErr = err
	}
	if saveErr == nil {
		x.logger.Info("index saved", "folder", folder)
	}
	return saveErr
}

func createFiles(folder string, names []string) ([]*os.File, []io.Writer, error) {
	files := make([]*os.File, 0, len(names))
	ws := make([]io.Writer, 0, len(names))
	for _, name := range names {
		f, err := os.Create(filepath.Join(folder, name))
		if err != nil {
			closeFiles(files)
			return nil, nil, fmt.Errorf("%w: %s", core.ErrFailedCreateFile, err)
		}
		files = append(files, f)
		ws = append(ws, f)
	}
	return files, ws, nil
}

func closeFiles(files []*os.File) error {
	var first error
	for _, f := range files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SaveIndexToMemory serializes the index into its loader config string
// plus an ordered blob list: the plugin's data blobs followed by the
// metadata payload and offset blobs. Because the list has more than five
// entries the metadata always occupies the last two.
func (x *VectorIndex) SaveIndexToMemory() (string, [][]byte, error) {
	if x.liveCount() == 0 {
		return "", nil, core.ErrEmptyIndex
	}
	var cfg strings.Builder
	if err := x.SaveIndexConfig(&cfg); err != nil {
		return "", nil, err
	}

	n := x.plugin.BlobCount() + 2
	sizes := x.CalculateBufferSizes()
	bufs := make([]*bytes.Buffer, n)
	ws := make([]io.Writer, n)
	for i := range bufs {
		bufs[i] = bytes.NewBuffer(make([]byte, 0, sizes[i]))
		ws[i] = bufs[i]
	}

	meta := x.metaSnapshot()
	if x.plugin.NeedRefine() {
		if err := x.plugin.Refine(ws, meta); err != nil {
			return "", nil, err
		}
	} else {
		if err := x.plugin.SaveData(ws[:x.plugin.BlobCount()]); err != nil {
			return "", nil, err
		}
		if n > 5 {
			if err := meta.SaveToStreams(ws[n-2], ws[n-1]); err != nil {
				return "", nil, err
			}
		}
	}

	blobs := make([][]byte, n)
	for i, b := range bufs {
		blobs[i] = b.Bytes()
	}
	return cfg.String(), blobs, nil
}

// LoadIndex restores an index from a folder written by SaveIndex. The
// loader config selects and parameterizes the plugin; a missing config or
// data file returns core.ErrFailedOpenFile.
func LoadIndex(folder string, optFns ...Option) (*VectorIndex, error) {
	source, err := os.ReadFile(filepath.Join(folder, configFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrFailedOpenFile, err)
	}
	x, withMapping, err := indexFromConfig(source, optFns...)
	if err != nil {
		return nil, err
	}

	files := make([]*os.File, 0, x.plugin.BlobCount())
	rs := make([]io.Reader, 0, x.plugin.BlobCount())
	for _, name := range x.plugin.DataFiles() {
		f, err := os.Open(filepath.Join(folder, name))
		if err != nil {
			closeFiles(files)
			return nil, fmt.Errorf("%w: %s", core.ErrFailedOpenFile, err)
		}
		files = append(files, f)
		rs = append(rs, f)
	}
	loadErr := x.plugin.LoadData(rs)
	if err := closeFiles(files); loadErr == nil {
		loadErr = err
	}
	if loadErr != nil {
		return nil, loadErr
	}

	meta, err := metadata.NewFromFiles(
		filepath.Join(folder, x.metadataFile),
		filepath.Join(folder, x.metadataIndexFile),
	)
	if err != nil {
		return nil, err
	}
	x.meta = meta
	if withMapping {
		x.BuildMetaMapping()
	}
	x.logger.Info("index loaded", "folder", folder, "count", x.NumSamples())
	return x, nil
}

// LoadIndexFromMemory restores an index from a loader config string and
// the blob list a SaveIndexToMemory produced. When the list has more than
// four entries the last two are read as the metadata store.
func LoadIndexFromMemory(config string, blobs [][]byte, optFns ...Option) (*VectorIndex, error) {
	x, withMapping, err := indexFromConfig([]byte(config), optFns...)
	if err != nil {
		return nil, err
	}
	if len(blobs) < x.plugin.BlobCount() {
		return nil, fmt.Errorf("%w: %d blobs, want at least %d", core.ErrFail, len(blobs), x.plugin.BlobCount())
	}
	rs := make([]io.Reader, x.plugin.BlobCount())
	for i := range rs {
		rs[i] = bytes.NewReader(blobs[i])
	}
	if err := x.plugin.LoadData(rs); err != nil {
		return nil, err
	}
	if len(blobs) > 4 {
		meta, err := metadata.NewFromBlobs(blobs[len(blobs)-2], blobs[len(blobs)-1])
		if err != nil {
			return nil, err
		}
		x.meta = meta
		if withMapping {
			x.BuildMetaMapping()
		}
	}
	return x, nil
}
