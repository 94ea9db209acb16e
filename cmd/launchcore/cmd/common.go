package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/outpost-dev/launchcore/src/layout"
	"github.com/outpost-dev/launchcore/src/manifest"
)

func versionField(versionID string) zap.Field {
	return zap.String("version", versionID)
}

func loadAssetIndex(root layout.Root, desc manifest.Descriptor) (manifest.AssetIndex, error) {
	data, err := os.ReadFile(root.AssetIndexPath(desc.AssetIndex.ID))
	if err != nil {
		return manifest.AssetIndex{}, fmt.Errorf("reading asset index: %w", err)
	}
	var idx manifest.AssetIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return manifest.AssetIndex{}, fmt.Errorf("parsing asset index: %w", err)
	}
	return idx, nil
}
