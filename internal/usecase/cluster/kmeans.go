package cluster

import (
	"context"
	"fmt"
	"math"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"pointview/internal/usecase"
)

// KMeansClusterer partitions the cloud into a fixed number of clusters.
// Initial centers are random, so labels can differ between runs.
type KMeansClusterer struct {
	K         int
	Normalize bool
}

func NewKMeans(k int, normalize bool) *KMeansClusterer {
	return &KMeansClusterer{K: k, Normalize: normalize}
}

// indexedPoint remembers the input position of an observation.
type indexedPoint struct {
	index  int
	coords clusters.Coordinates
}

func (p indexedPoint) Coordinates() clusters.Coordinates {
	return p.coords
}

func (p indexedPoint) Distance(c clusters.Coordinates) float64 {
	var sum float64
	for i, v := range p.coords {
		d := v - c[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (c *KMeansClusterer) Labels(ctx context.Context, cloud usecase.PointCloud) ([]int, error) {
	if c.K <= 0 {
		return nil, fmt.Errorf("kmeans: %w: n_clusters %d", ErrInvalidSettings, c.K)
	}
	if c.K > len(cloud) {
		return nil, fmt.Errorf("kmeans: %w: n_clusters %d exceeds %d points", ErrInvalidSettings, c.K, len(cloud))
	}
	points, err := prepare(cloud, c.Normalize)
	if err != nil {
		return nil, fmt.Errorf("kmeans: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	observations := make(clusters.Observations, len(points))
	for i, p := range points {
		observations[i] = indexedPoint{
			index:  i,
			coords: clusters.Coordinates{float64(p[0]), float64(p[1]), float64(p[2])},
		}
	}
	partition, err := kmeans.New().Partition(observations, c.K)
	if err != nil {
		return nil, fmt.Errorf("kmeans: %w", err)
	}

	labels := make([]int, len(points))
	for label, cl := range partition {
		for _, o := range cl.Observations {
			labels[o.(indexedPoint).index] = label
		}
	}
	return labels, nil
}
