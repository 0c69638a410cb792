// Package persistence saves and restores indexes through a blob store,
// framing every blob through the codec and throttling transfers through a
// resource controller. The object layout is the in-memory save form: the
// data and metadata blobs as blob_0000, blob_0001, ... and the loader
// config as indexloader.ini, written last so a complete config implies a
// complete index.
package persistence

import (
	"context"
	"fmt"

	"github.com/annlab/sptree"
	"github.com/annlab/sptree/blobstore"
	"github.com/annlab/sptree/codec"
	"github.com/annlab/sptree/resource"
)

const configObject = "indexloader.ini"

const blobPrefix = "blob_"

func blobName(i int) string {
	return fmt.Sprintf("%s%04d", blobPrefix, i)
}

// Options configure a save or load.
type Options struct {
	// Compression selects the codec frame type. Defaults to ZSTD.
	Compression codec.Type

	// Controller throttles transfers and bounds buffer memory. Nil means
	// unlimited.
	Controller *resource.Controller
}

func applyOptions(optFns []func(*Options)) Options {
	o := Options{Compression: codec.ZSTD}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// Save serializes the index into the store. The whole save runs under one
// background-worker slot of the controller. Blobs are uploaded before the
// config object, so a reader that finds the config finds a complete index.
func Save(ctx context.Context, store blobstore.WritableBlobStore, idx *sptree.VectorIndex, optFns ...func(*Options)) error {
	o := applyOptions(optFns)
	if err := o.Controller.AcquireBackground(ctx); err != nil {
		return err
	}
	defer o.Controller.ReleaseBackground()

	config, blobs, err := idx.SaveIndexToMemory()
	if err != nil {
		return err
	}
	for i, blob := range blobs {
		framed, err := codec.Compress(blob, o.Compression)
		if err != nil {
			return err
		}
		if err := o.Controller.AcquireIO(ctx, len(framed)); err != nil {
			return err
		}
		if err := store.Put(ctx, blobName(i), framed); err != nil {
			return err
		}
	}
	if err := o.Controller.AcquireIO(ctx, len(config)); err != nil {
		return err
	}
	return store.Put(ctx, configObject, []byte(config))
}

// Load restores an index from the store, holding one background-worker
// slot of the controller for the duration.
func Load(ctx context.Context, store blobstore.BlobStore, optFns ...func(*Options)) (*sptree.VectorIndex, error) {
	o := applyOptions(optFns)
	if err := o.Controller.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer o.Controller.ReleaseBackground()

	cfgBlob, err := store.Open(ctx, configObject)
	if err != nil {
		return nil, err
	}
	config, err := blobstore.ReadAll(cfgBlob)
	if err != nil {
		return nil, err
	}

	names, err := store.List(ctx, blobPrefix)
	if err != nil {
		return nil, err
	}
	blobs := make([][]byte, 0, len(names))
	var held int64
	defer func() { o.Controller.ReleaseMemory(held) }()
	for _, name := range names {
		b, err := store.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		framed, err := blobstore.ReadAll(b)
		if err != nil {
			return nil, err
		}
		if err := o.Controller.AcquireIO(ctx, len(framed)); err != nil {
			return nil, err
		}
		data, err := codec.Decompress(framed)
		if err != nil {
			return nil, fmt.Errorf("blob %s: %w", name, err)
		}
		if err := o.Controller.AcquireMemory(ctx, int64(len(data))); err != nil {
			return nil, err
		}
		held += int64(len(data))
		blobs = append(blobs, data)
	}

	return sptree.LoadIndexFromMemory(string(config), blobs)
}
