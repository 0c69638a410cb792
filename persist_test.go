package sptree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annlab/sptree/core"
)

func TestSaveLoadFolderRoundTrip(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 20, 4)
	require.NoError(t, idx.BuildIndex(vs, payloadSet("m", 20), true))
	require.NoError(t, idx.DeleteIndex(2))
	require.NoError(t, idx.DeleteIndex(17))

	dir := t.TempDir()
	require.NoError(t, idx.SaveIndex(dir))
	for _, name := range []string{
		"indexloader.ini", "tree.bin", "graph.bin", "vectors.bin", "deletes.bin",
		"metadata.bin", "metadataIndex.bin",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "missing %s", name)
	}

	loaded, err := LoadIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, core.IndexAlgoTypeBKT, loaded.AlgoType())
	assert.Equal(t, core.VectorValueTypeFloat32, loaded.ValueType())
	assert.Equal(t, int32(20), loaded.NumSamples())
	assert.Equal(t, int32(2), loaded.NumDeleted())
	assert.Equal(t, 4, loaded.Dimension())
	assert.False(t, loaded.ContainSample(2))
	assert.Equal(t, []byte("m5"), loaded.GetMetadata(5))

	res, err := loaded.Search(vs.Vector(5), 1, true)
	require.NoError(t, err)
	assert.Equal(t, int32(5), res.Results()[0].VID)
	assert.Equal(t, []byte("m5"), res.Results()[0].Meta)

	// The config asks for the mapping, so it is usable right after load.
	require.NoError(t, loaded.DeleteIndexByMetadata([]byte("m9")))
	assert.False(t, loaded.ContainSample(9))
}

func TestSaveLoadKDTFolder(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeKDT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 16, 4)
	require.NoError(t, idx.BuildIndex(vs, nil, false))

	dir := t.TempDir()
	require.NoError(t, idx.SaveIndex(dir))
	loaded, err := LoadIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, core.IndexAlgoTypeKDT, loaded.AlgoType())

	res, err := loaded.Search(vs.Vector(3), 1, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), res.Results()[0].VID)
}

func TestSaveEmptyIndex(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.ErrorIs(t, idx.SaveIndex(t.TempDir()), ErrEmptyIndex)
	_, _, err := idx.SaveIndexToMemory()
	require.ErrorIs(t, err, ErrEmptyIndex)

	// An index whose every sample was deleted is empty too.
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 2, 4), nil, false))
	require.NoError(t, idx.DeleteIndex(0))
	require.NoError(t, idx.DeleteIndex(1))
	require.ErrorIs(t, idx.SaveIndex(t.TempDir()), ErrEmptyIndex)
}

func TestSaveLoadMemoryRoundTrip(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 12, 4)
	require.NoError(t, idx.BuildIndex(vs, payloadSet("m", 12), true))
	require.NoError(t, idx.DeleteIndex(4))

	config, blobs, err := idx.SaveIndexToMemory()
	require.NoError(t, err)
	assert.Contains(t, config, "DistCalcMethod=L2")
	assert.Contains(t, config, "IndexAlgoType=BKT")
	require.Len(t, blobs, 6)

	sizes := idx.CalculateBufferSizes()
	require.Len(t, sizes, 6)
	for i, blob := range blobs {
		assert.Equal(t, sizes[i], uint64(len(blob)), "blob %d size", i)
	}

	loaded, err := LoadIndexFromMemory(config, blobs)
	require.NoError(t, err)
	assert.Equal(t, int32(12), loaded.NumSamples())
	assert.Equal(t, int32(1), loaded.NumDeleted())
	assert.Equal(t, []byte("m7"), loaded.GetMetadata(7))
	require.NoError(t, loaded.DeleteIndexByMetadata([]byte("m7")))
}

func TestLoadMemoryWithoutMetadataBlobs(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 8, 4), payloadSet("m", 8), false))

	config, blobs, err := idx.SaveIndexToMemory()
	require.NoError(t, err)

	// Exactly four blobs: not more than four, so no metadata is read.
	loaded, err := LoadIndexFromMemory(config, blobs[:4])
	require.NoError(t, err)
	assert.Equal(t, int32(8), loaded.NumSamples())
	assert.Empty(t, loaded.GetMetadata(3))
}

func TestLoadMissingFolder(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrFailedOpenFile)
}

func TestLoadConfigRequiresDistCalcMethod(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 4, 4), nil, false))
	config, blobs, err := idx.SaveIndexToMemory()
	require.NoError(t, err)

	stripped := strings.Replace(config, "DistCalcMethod=L2\n", "", 1)
	_, err = LoadIndexFromMemory(stripped, blobs)
	require.ErrorIs(t, err, ErrFail)
}

func TestLoadConfigUnknownAlgo(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 4, 4), nil, false))
	config, blobs, err := idx.SaveIndexToMemory()
	require.NoError(t, err)

	broken := strings.Replace(config, "IndexAlgoType=BKT", "IndexAlgoType=XYZ", 1)
	_, err = LoadIndexFromMemory(broken, blobs)
	require.ErrorIs(t, err, ErrFailedParseValue)

	broken = strings.Replace(config, "ValueType=Float32", "ValueType=Float128", 1)
	_, err = LoadIndexFromMemory(broken, blobs)
	require.ErrorIs(t, err, ErrFailedParseValue)
}

func TestSaveConfigRecordsMappingOnlyWhenBuilt(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 8, 4), payloadSet("m", 8), false))

	config, blobs, err := idx.SaveIndexToMemory()
	require.NoError(t, err)
	assert.NotContains(t, config, "MetaDataToVectorIndex")

	// Metadata loads, but the reverse map stays unbuilt until asked for.
	loaded, err := LoadIndexFromMemory(config, blobs)
	require.NoError(t, err)
	assert.Equal(t, []byte("m3"), loaded.GetMetadata(3))
	require.ErrorIs(t, loaded.DeleteIndexByMetadata([]byte("m3")), ErrVectorNotFound)

	loaded.BuildMetaMapping()
	require.NoError(t, loaded.DeleteIndexByMetadata([]byte("m3")))

	idx.BuildMetaMapping()
	config, _, err = idx.SaveIndexToMemory()
	require.NoError(t, err)
	assert.Contains(t, config, "MetaDataToVectorIndex=true")
}

func TestSaveCompactsWhenTombstonesAccumulate(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.NoError(t, idx.SetParameter("RefineThreshold", "5"))
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 30, 4), payloadSet("m", 30), false))
	for id := int32(0); id < 10; id++ {
		require.NoError(t, idx.DeleteIndex(id))
	}

	dir := t.TempDir()
	require.NoError(t, idx.SaveIndex(dir))
	loaded, err := LoadIndex(dir)
	require.NoError(t, err)

	// Identifiers were reassigned densely over the 20 survivors, and the
	// metadata was compacted with them.
	assert.Equal(t, int32(20), loaded.NumSamples())
	assert.Equal(t, int32(0), loaded.NumDeleted())
	assert.Equal(t, []byte("m10"), loaded.GetMetadata(0))
	assert.Equal(t, []byte("m29"), loaded.GetMetadata(19))

	// The in-memory index is untouched by the save.
	assert.Equal(t, int32(30), idx.NumSamples())
	assert.Equal(t, int32(10), idx.NumDeleted())
}

func TestSaveConfigRoundTripsParameters(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.NoError(t, idx.SetParameter("TreeNumber", "2"))
	require.NoError(t, idx.SetParameter("MaxCheck", "512"))
	require.NoError(t, idx.SetParameter("DistCalcMethod", "Cosine"))
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 6, 4), nil, false))

	config, blobs, err := idx.SaveIndexToMemory()
	require.NoError(t, err)
	loaded, err := LoadIndexFromMemory(config, blobs)
	require.NoError(t, err)

	assert.Equal(t, "2", loaded.GetParameter("TreeNumber"))
	assert.Equal(t, "512", loaded.GetParameter("MaxCheck"))
	assert.Equal(t, "Cosine", loaded.GetParameter("DistCalcMethod"))
}
