package bkt

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annlab/sptree/algo"
	"github.com/annlab/sptree/core"
)

func float32Rows(n, dim int) []byte {
	buf := make([]byte, 0, n*dim*4)
	for i := 0; i < n; i++ {
		for d := 0; d < dim; d++ {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(i)))
		}
	}
	return buf
}

func row(buf []byte, i, dim int) []byte {
	return buf[i*dim*4 : (i+1)*dim*4]
}

func TestRegistered(t *testing.T) {
	for _, vt := range core.VectorValueTypes() {
		p := algo.New(core.IndexAlgoTypeBKT, vt)
		require.NotNil(t, p, "value type %s", vt)
		assert.Equal(t, core.IndexAlgoTypeBKT, p.AlgoType())
		assert.Equal(t, vt, p.ValueType())
	}
}

func TestBuildSearch(t *testing.T) {
	p := New(core.VectorValueTypeFloat32)
	data := float32Rows(40, 4)
	require.NoError(t, p.Build(data, 40, 4))

	res := core.NewQueryResult(row(data, 13, 4), 2, false)
	require.NoError(t, p.Search(row(data, 13, 4), res))
	assert.Equal(t, int32(13), res.Results()[0].VID)
	assert.Equal(t, float32(0), res.Results()[0].Dist)
	assert.Equal(t, int32(12), res.Results()[1].VID)
}

func TestDataRoundTrip(t *testing.T) {
	p := New(core.VectorValueTypeFloat32)
	data := float32Rows(25, 4)
	require.NoError(t, p.Build(data, 25, 4))
	require.NoError(t, p.Delete(6))

	require.Equal(t, 4, p.BlobCount())
	sizes := p.BufferSizes()
	require.Len(t, sizes, 4)

	bufs := make([]*bytes.Buffer, 4)
	ws := make([]io.Writer, 4)
	for i := range bufs {
		bufs[i] = &bytes.Buffer{}
		ws[i] = bufs[i]
	}
	require.NoError(t, p.SaveData(ws))
	for i, buf := range bufs {
		assert.Equal(t, sizes[i], uint64(buf.Len()), "blob %d", i)
	}

	back := New(core.VectorValueTypeFloat32)
	rs := make([]io.Reader, 4)
	for i := range rs {
		rs[i] = bufs[i]
	}
	require.NoError(t, back.LoadData(rs))
	assert.Equal(t, int32(25), back.NumSamples())
	assert.Equal(t, int32(1), back.NumDeleted())
	assert.False(t, back.ContainSample(6))

	res := core.NewQueryResult(row(data, 9, 4), 1, false)
	require.NoError(t, back.Search(row(data, 9, 4), res))
	assert.Equal(t, int32(9), res.Results()[0].VID)
}

func TestRefineCompacts(t *testing.T) {
	p := New(core.VectorValueTypeFloat32)
	data := float32Rows(20, 2)
	require.NoError(t, p.Build(data, 20, 2))
	require.NoError(t, p.SetParameter("RefineThreshold", "2"))
	for id := int32(0); id < 5; id++ {
		require.NoError(t, p.Delete(id))
	}
	require.True(t, p.NeedRefine())

	bufs := make([]*bytes.Buffer, 4)
	ws := make([]io.Writer, 4)
	for i := range bufs {
		bufs[i] = &bytes.Buffer{}
		ws[i] = bufs[i]
	}
	require.NoError(t, p.Refine(ws, nil))

	back := New(core.VectorValueTypeFloat32)
	rs := make([]io.Reader, 4)
	for i := range rs {
		rs[i] = bufs[i]
	}
	require.NoError(t, back.LoadData(rs))
	assert.Equal(t, int32(15), back.NumSamples())
	assert.Equal(t, int32(0), back.NumDeleted())

	// Old row 5 is the new row 0.
	query := row(data, 5, 2)
	res := core.NewQueryResult(query, 1, false)
	require.NoError(t, back.Search(query, res))
	assert.Equal(t, int32(0), res.Results()[0].VID)
	assert.Equal(t, float32(0), res.Results()[0].Dist)
}

func TestDuplicateRowsTerminate(t *testing.T) {
	// All rows identical: clustering collapses and the builder must fall
	// back to order splits instead of recursing forever.
	dim := 3
	n := 30
	buf := make([]byte, 0, n*dim*4)
	for i := 0; i < n; i++ {
		for d := 0; d < dim; d++ {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(7))
		}
	}
	p := New(core.VectorValueTypeFloat32)
	require.NoError(t, p.Build(buf, int32(n), dim))

	res := core.NewQueryResult(buf[:dim*4], 1, false)
	require.NoError(t, p.Search(buf[:dim*4], res))
	assert.Equal(t, int32(0), res.Results()[0].VID)
}

func TestParameters(t *testing.T) {
	p := New(core.VectorValueTypeFloat32)
	require.NoError(t, p.SetParameter("TreeNumber", "3"))
	require.NoError(t, p.SetParameter("KmeansK", "4"))
	require.NoError(t, p.SetParameter("LeafSize", "16"))
	assert.Equal(t, "3", p.GetParameter("TreeNumber"))
	assert.Equal(t, "4", p.GetParameter("KmeansK"))
	assert.Equal(t, "16", p.GetParameter("LeafSize"))

	var cfg bytes.Buffer
	require.NoError(t, p.SaveConfig(&cfg))
	assert.Contains(t, cfg.String(), "TreeNumber=3")
	assert.Contains(t, cfg.String(), "KmeansK=4")

	// Multiple trees still build and answer.
	data := float32Rows(30, 4)
	require.NoError(t, p.Build(data, 30, 4))
	res := core.NewQueryResult(row(data, 11, 4), 1, false)
	require.NoError(t, p.Search(row(data, 11, 4), res))
	assert.Equal(t, int32(11), res.Results()[0].VID)
}
