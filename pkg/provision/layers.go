package provision

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed layers.yaml
var layersYAML []byte

// Layer is one published layer version.
type Layer struct {
	ARN     string `yaml:"arn"`
	Version int    `yaml:"version"`
}

// VersionARN returns the layer version ARN used in function configuration.
func (l Layer) VersionARN() string {
	return fmt.Sprintf("%s:%d", l.ARN, l.Version)
}

// LayerTable maps architecture and region to hosted layers.
type LayerTable map[string]map[string][]Layer

var (
	hostedOnce  sync.Once
	hostedTable LayerTable
	hostedErr   error
)

// HostedLayers returns the embedded hosted layer table.
func HostedLayers() (LayerTable, error) {
	hostedOnce.Do(func() {
		hostedTable, hostedErr = ParseLayerTable(layersYAML)
	})
	return hostedTable, hostedErr
}

// ParseLayerTable decodes a YAML layer table.
func ParseLayerTable(data []byte) (LayerTable, error) {
	var t LayerTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse layer table: %w", err)
	}
	return t, nil
}

// Resolve returns the layer version ARNs for arch in region.
func (t LayerTable) Resolve(arch, region string) ([]string, error) {
	layers, ok := t[arch][region]
	if !ok || len(layers) == 0 {
		return nil, &ConfigError{
			Field:   "region",
			Message: fmt.Sprintf("no hosted layers for %s in %s; set function.layers", arch, region),
		}
	}
	arns := make([]string, len(layers))
	for i, l := range layers {
		arns[i] = l.VersionARN()
	}
	return arns, nil
}

// Regions lists the regions with hosted layers for arch.
func (t LayerTable) Regions(arch string) []string {
	regions := make([]string, 0, len(t[arch]))
	for r := range t[arch] {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}
