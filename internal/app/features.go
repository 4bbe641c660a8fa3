package app

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Feature names a selectable part of a run.
type Feature string

const (
	FeatureCPU     Feature = "cpu"
	FeatureGPU     Feature = "gpu"
	FeatureBattery Feature = "battery"
	FeatureNetwork Feature = "network"
)

var knownFeatures = []Feature{FeatureCPU, FeatureGPU, FeatureBattery, FeatureNetwork}

// ParseFeatures normalises a feature list. Entries may themselves be comma
// separated; duplicates are dropped and unknown names rejected.
func ParseFeatures(values []string) ([]Feature, error) {
	var features []Feature
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			name := Feature(strings.ToLower(strings.TrimSpace(part)))
			if name == "" {
				continue
			}
			if !lo.Contains(knownFeatures, name) {
				return nil, fmt.Errorf("unknown feature %q (expected cpu, gpu, battery or network)", part)
			}
			features = append(features, name)
		}
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no features selected")
	}
	return lo.Uniq(features), nil
}
