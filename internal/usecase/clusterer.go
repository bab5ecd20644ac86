package usecase

import (
	"context"
	"fmt"
)

// PointCloudClusterer assigns a label to every point. Labels are small
// non-negative cluster ids, or NoiseLabel.
type PointCloudClusterer interface {
	Labels(ctx context.Context, cloud PointCloud) ([]int, error)
}

// Segment runs the clusterer and groups the points by label.
func Segment(ctx context.Context, c PointCloudClusterer, cloud PointCloud) (map[string]PointCloud, error) {
	if err := cloud.Validate(); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	labels, err := c.Labels(ctx, cloud)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if len(labels) != len(cloud) {
		return nil, fmt.Errorf("segment: got %d labels for %d points", len(labels), len(cloud))
	}
	return GroupLabels(cloud, labels), nil
}
