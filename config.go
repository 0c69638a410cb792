package sptree

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-ini/ini"

	"github.com/annlab/sptree/core"
)

// SaveIndexConfig writes the loader config: a [MetaData] section naming
// the metadata file pair and recording whether the reverse metadata map
// was built, then an [Index] section carrying the dispatch tags and every
// plugin parameter.
func (x *VectorIndex) SaveIndexConfig(w io.Writer) error {
	x.metaMu.RLock()
	withMapping := x.metaToVec != nil
	x.metaMu.RUnlock()

	if _, err := fmt.Fprintf(w, "[MetaData]\nMetaDataFilePath=%s\nMetaDataIndexPath=%s\n",
		x.metadataFile, x.metadataIndexFile); err != nil {
		return err
	}
	if withMapping {
		if _, err := io.WriteString(w, "MetaDataToVectorIndex=true\n"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "[Index]\nIndexAlgoType=%s\nValueType=%s\n",
		x.AlgoType(), x.ValueType()); err != nil {
		return err
	}
	return x.plugin.SaveConfig(w)
}

// indexFromConfig parses a loader config and instantiates the index it
// describes: the dispatch tags select the plugin, DistCalcMethod is
// required, and the remaining [Index] keys are applied as plugin
// parameters. The returned flag reports whether the config asks for the
// reverse metadata map to be built once the metadata is loaded.
func indexFromConfig(source []byte, optFns ...Option) (*VectorIndex, bool, error) {
	cfg, err := ini.Load(source)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", core.ErrFailedParseValue, err)
	}

	idxSec := cfg.Section("Index")
	at := core.ParseIndexAlgoType(idxSec.Key("IndexAlgoType").String())
	vt := core.ParseVectorValueType(idxSec.Key("ValueType").String())
	x := CreateInstance(at, vt, optFns...)
	if x == nil {
		return nil, false, fmt.Errorf("%w: no index for algo %q, value type %q",
			core.ErrFailedParseValue, idxSec.Key("IndexAlgoType").String(), idxSec.Key("ValueType").String())
	}

	if !idxSec.HasKey("DistCalcMethod") {
		x.logger.Error("config missing DistCalcMethod")
		return nil, false, fmt.Errorf("%w: config missing DistCalcMethod", core.ErrFail)
	}
	for _, key := range idxSec.Keys() {
		if strings.EqualFold(key.Name(), "IndexAlgoType") || strings.EqualFold(key.Name(), "ValueType") {
			continue
		}
		if err := x.plugin.SetParameter(key.Name(), key.Value()); err != nil {
			return nil, false, err
		}
	}

	metaSec := cfg.Section("MetaData")
	if v := metaSec.Key("MetaDataFilePath").String(); v != "" {
		x.metadataFile = v
	}
	if v := metaSec.Key("MetaDataIndexPath").String(); v != "" {
		x.metadataIndexFile = v
	}
	withMapping, err := metaSec.Key("MetaDataToVectorIndex").Bool()
	if err != nil {
		withMapping = false
	}
	return x, withMapping, nil
}
