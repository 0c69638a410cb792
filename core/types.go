// Package core defines the shared value types, enumerations and error
// taxonomy used across the sptree index packages.
package core

import "strings"

// InvalidVID marks an unfilled slot in a query result.
const InvalidVID int32 = -1

// IndexAlgoType selects one of the tree-partitioning index variants.
type IndexAlgoType int8

const (
	IndexAlgoTypeUndefined IndexAlgoType = iota
	IndexAlgoTypeBKT
	IndexAlgoTypeKDT
)

// String returns the config-file spelling of the algorithm type.
func (t IndexAlgoType) String() string {
	switch t {
	case IndexAlgoTypeBKT:
		return "BKT"
	case IndexAlgoTypeKDT:
		return "KDT"
	default:
		return "Undefined"
	}
}

// ParseIndexAlgoType parses the config-file spelling of an algorithm type.
// Unknown spellings map to IndexAlgoTypeUndefined.
func ParseIndexAlgoType(s string) IndexAlgoType {
	switch {
	case strings.EqualFold(s, "BKT"):
		return IndexAlgoTypeBKT
	case strings.EqualFold(s, "KDT"):
		return IndexAlgoTypeKDT
	default:
		return IndexAlgoTypeUndefined
	}
}

// VectorValueType is the numeric element type of stored vectors.
type VectorValueType int8

const (
	VectorValueTypeUndefined VectorValueType = iota
	VectorValueTypeInt8
	VectorValueTypeUInt8
	VectorValueTypeInt16
	VectorValueTypeFloat32
)

// Size returns the in-memory byte width of one element, or 0 for Undefined.
func (t VectorValueType) Size() int {
	switch t {
	case VectorValueTypeInt8, VectorValueTypeUInt8:
		return 1
	case VectorValueTypeInt16:
		return 2
	case VectorValueTypeFloat32:
		return 4
	default:
		return 0
	}
}

// String returns the config-file spelling of the value type.
func (t VectorValueType) String() string {
	switch t {
	case VectorValueTypeInt8:
		return "Int8"
	case VectorValueTypeUInt8:
		return "UInt8"
	case VectorValueTypeInt16:
		return "Int16"
	case VectorValueTypeFloat32:
		return "Float32"
	default:
		return "Undefined"
	}
}

// ParseVectorValueType parses the config-file spelling of a value type.
// Unknown spellings map to VectorValueTypeUndefined.
func ParseVectorValueType(s string) VectorValueType {
	switch {
	case strings.EqualFold(s, "Int8"):
		return VectorValueTypeInt8
	case strings.EqualFold(s, "UInt8"):
		return VectorValueTypeUInt8
	case strings.EqualFold(s, "Int16"):
		return VectorValueTypeInt16
	case strings.EqualFold(s, "Float32"), strings.EqualFold(s, "Float"):
		return VectorValueTypeFloat32
	default:
		return VectorValueTypeUndefined
	}
}

// VectorValueTypes lists every defined value type, in registration order.
func VectorValueTypes() []VectorValueType {
	return []VectorValueType{
		VectorValueTypeInt8,
		VectorValueTypeUInt8,
		VectorValueTypeInt16,
		VectorValueTypeFloat32,
	}
}

// DistCalcMethod selects the distance function used by a plugin.
type DistCalcMethod int8

const (
	DistCalcMethodUndefined DistCalcMethod = iota
	DistCalcMethodL2
	DistCalcMethodCosine
)

// String returns the config-file spelling of the distance method.
func (m DistCalcMethod) String() string {
	switch m {
	case DistCalcMethodL2:
		return "L2"
	case DistCalcMethodCosine:
		return "Cosine"
	default:
		return "Undefined"
	}
}

// ParseDistCalcMethod parses the config-file spelling of a distance method.
// Unknown spellings map to DistCalcMethodUndefined.
func ParseDistCalcMethod(s string) DistCalcMethod {
	switch {
	case strings.EqualFold(s, "L2"):
		return DistCalcMethodL2
	case strings.EqualFold(s, "Cosine"):
		return DistCalcMethodCosine
	default:
		return DistCalcMethodUndefined
	}
}
