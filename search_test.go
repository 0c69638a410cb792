package sptree

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annlab/sptree/core"
)

func decodeFloat32Row(raw []byte, out []float32) {
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
}

func TestSearchExactOnSmallIndex(t *testing.T) {
	for _, at := range []core.IndexAlgoType{core.IndexAlgoTypeBKT, core.IndexAlgoTypeKDT} {
		t.Run(at.String(), func(t *testing.T) {
			idx := CreateInstance(at, core.VectorValueTypeFloat32)
			vs := lineVectorSet(t, 50, 4)
			require.NoError(t, idx.BuildIndex(vs, nil, false))

			res, err := idx.Search(vs.Vector(7), 3, false)
			require.NoError(t, err)
			got := res.Results()
			require.Len(t, got, 3)

			// Row 7 matches exactly; rows 6 and 8 tie at distance 4 and the
			// smaller identifier wins.
			assert.Equal(t, int32(7), got[0].VID)
			assert.Equal(t, float32(0), got[0].Dist)
			assert.Equal(t, int32(6), got[1].VID)
			assert.Equal(t, float32(4), got[1].Dist)
			assert.Equal(t, int32(8), got[2].VID)
			assert.Equal(t, float32(4), got[2].Dist)
		})
	}
}

func TestSearchSkipsDeleted(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 50, 4)
	require.NoError(t, idx.BuildIndex(vs, nil, false))
	require.NoError(t, idx.DeleteIndex(7))

	res, err := idx.Search(vs.Vector(7), 2, false)
	require.NoError(t, err)
	got := res.Results()
	assert.Equal(t, int32(6), got[0].VID)
	assert.Equal(t, int32(8), got[1].VID)
}

func TestSearchFindsRowsAddedAfterBuild(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	require.NoError(t, idx.BuildIndex(lineVectorSet(t, 5, 4), nil, false))

	added, err := core.NewFloat32VectorSet([][]float32{{100, 100, 100, 100}})
	require.NoError(t, err)
	first, err := idx.AddIndex(added, nil)
	require.NoError(t, err)

	res, err := idx.Search(added.Vector(0), 1, false)
	require.NoError(t, err)
	assert.Equal(t, first, res.Results()[0].VID)
	assert.Equal(t, float32(0), res.Results()[0].Dist)
}

func TestSearchIndexBatch(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 30, 4)
	require.NoError(t, idx.BuildIndex(vs, payloadSet("m", 30), false))

	results, err := idx.SearchIndex(vs, 2, true)
	require.NoError(t, err)
	require.Len(t, results, 30)
	for i, res := range results {
		got := res.Results()
		require.Equal(t, int32(i), got[0].VID, "query %d", i)
		assert.Equal(t, []byte(idx.GetMetadata(int32(i))), got[0].Meta)
	}
}

func TestSearchDeterministic(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 64, 4)
	require.NoError(t, idx.BuildIndex(vs, nil, false))

	baseline, err := idx.SearchIndex(vs, 5, false)
	require.NoError(t, err)
	for round := 0; round < 3; round++ {
		repeat, err := idx.SearchIndex(vs, 5, false)
		require.NoError(t, err)
		for q := range baseline {
			want := baseline[q].Results()
			got := repeat[q].Results()
			for s := range want {
				if got[s].VID != want[s].VID || got[s].Dist != want[s].Dist {
					t.Fatalf("round %d query %d slot %d: got (%d, %v), want (%d, %v)",
						round, q, s, got[s].VID, got[s].Dist, want[s].VID, want[s].Dist)
				}
			}
		}
	}
}

// A build large enough that searches go through tree seeding and graph
// expansion instead of the exhaustive scan.
func TestSearchGraphPath(t *testing.T) {
	if testing.Short() {
		t.Skip("large build")
	}
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 2500, 2)
	require.NoError(t, idx.BuildIndex(vs, nil, false))

	for _, q := range []int32{0, 1234, 2499} {
		res, err := idx.Search(vs.Vector(q), 1, false)
		require.NoError(t, err)
		assert.Equal(t, q, res.Results()[0].VID)
		assert.Equal(t, float32(0), res.Results()[0].Dist)
	}
}

func TestSearchInvalidArguments(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	vs := lineVectorSet(t, 4, 4)
	require.NoError(t, idx.BuildIndex(vs, nil, false))

	_, err := idx.Search(vs.Vector(0), 0, false)
	require.ErrorIs(t, err, ErrFail)

	_, err = idx.SearchIndex(vs, 0, false)
	require.ErrorIs(t, err, ErrFail)

	_, err = idx.Search([]byte{1, 2}, 1, false)
	require.ErrorIs(t, err, ErrFail)
}

func TestSearchEmptyIndexReturnsNoResults(t *testing.T) {
	idx := CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
	query := make([]byte, 16)
	res, err := idx.Search(query, 3, false)
	require.NoError(t, err)
	for _, r := range res.Results() {
		assert.Equal(t, core.InvalidVID, r.VID)
	}
}
