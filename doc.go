// Package sptree is an embedded approximate nearest neighbor index built
// on space-partition trees and a k-NN neighborhood graph.
//
// An index is created through the CreateInstance factory, keyed by an
// algorithm variant (BKT or KDT) and the numeric element type of the
// vectors. The returned VectorIndex owns the raw vector rows, a
// soft-delete bitmap, an optional metadata store aligned with vector
// identifiers, and a reverse metadata-to-identifier map that callers
// rebuild explicitly.
//
//	idx := sptree.CreateInstance(core.IndexAlgoTypeBKT, core.VectorValueTypeFloat32)
//	if err := idx.BuildIndex(vectors, meta, true); err != nil {
//	    ...
//	}
//	results, err := idx.SearchIndex(queries, 10, true)
//
// Indexes persist either to a folder, keyed by an indexloader.ini config
// file, or to an in-memory config string plus blob list suitable for any
// object store. The persistence package layers compression, rate-limited
// uploads and pluggable blob backends on top of the in-memory form.
package sptree
