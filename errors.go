package sptree

import "github.com/annlab/sptree/core"

// Re-exported sentinel errors, so callers matching with errors.Is do not
// need to import core directly.
var (
	ErrFail             = core.ErrFail
	ErrEmptyIndex       = core.ErrEmptyIndex
	ErrFailedCreateFile = core.ErrFailedCreateFile
	ErrFailedOpenFile   = core.ErrFailedOpenFile
	ErrFailedParseValue = core.ErrFailedParseValue
	ErrVectorNotFound   = core.ErrVectorNotFound
)
