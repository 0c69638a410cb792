package sptree

import (
	"github.com/annlab/sptree/algo"
	"github.com/annlab/sptree/core"
	"github.com/annlab/sptree/metadata"

	// Register the built-in algorithm variants.
	_ "github.com/annlab/sptree/algo/bkt"
	_ "github.com/annlab/sptree/algo/kdt"
)

// Default file names for the metadata pair inside a saved index folder.
const (
	defaultMetadataFile      = "metadata.bin"
	defaultMetadataIndexFile = "metadataIndex.bin"

	configFile = "indexloader.ini"
)

// CreateInstance builds an empty index for the given algorithm variant and
// vector element type. It returns nil when either tag is undefined or no
// plugin is registered for the pair.
func CreateInstance(at core.IndexAlgoType, vt core.VectorValueType, optFns ...Option) *VectorIndex {
	p := algo.New(at, vt)
	if p == nil {
		return nil
	}
	o := applyOptions(optFns)
	return &VectorIndex{
		plugin:            p,
		logger:            o.logger,
		meta:              metadata.New(),
		metadataFile:      defaultMetadataFile,
		metadataIndexFile: defaultMetadataIndexFile,
	}
}
