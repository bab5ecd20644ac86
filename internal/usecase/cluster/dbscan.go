package cluster

import (
	"context"
	"fmt"

	"pointview/internal/usecase"
)

const unvisited = -2

// DBSCANClusterer is density-based clustering in 3D.
type DBSCANClusterer struct {
	Eps        float64
	MinSamples int
	Normalize  bool
}

func NewDBSCAN(eps float64, minSamples int, normalize bool) *DBSCANClusterer {
	return &DBSCANClusterer{Eps: eps, MinSamples: minSamples, Normalize: normalize}
}

// Labels returns a cluster id per point, numbered in discovery order, or
// usecase.NoiseLabel. A point counts itself as a neighbor.
func (c *DBSCANClusterer) Labels(ctx context.Context, cloud usecase.PointCloud) ([]int, error) {
	if c.Eps <= 0 || c.MinSamples <= 0 {
		return nil, fmt.Errorf("dbscan: %w: eps %g, min_samples %d", ErrInvalidSettings, c.Eps, c.MinSamples)
	}
	points, err := prepare(cloud, c.Normalize)
	if err != nil {
		return nil, fmt.Errorf("dbscan: %w", err)
	}

	si := newSpatialIndex(points, c.Eps)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	region := func(i int) []int {
		p := points[i]
		return si.within(points, float64(p[0]), float64(p[1]), float64(p[2]), nil)
	}

	clusterID := 0
	for i := range points {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if labels[i] != unvisited {
			continue
		}
		neighbors := region(i)
		if len(neighbors) < c.MinSamples {
			labels[i] = usecase.NoiseLabel
			continue
		}

		labels[i] = clusterID
		for j := 0; j < len(neighbors); j++ {
			idx := neighbors[j]
			if labels[idx] == usecase.NoiseLabel {
				// border point
				labels[idx] = clusterID
			}
			if labels[idx] != unvisited {
				continue
			}
			labels[idx] = clusterID
			if more := region(idx); len(more) >= c.MinSamples {
				neighbors = append(neighbors, more...)
			}
		}
		clusterID++
	}
	return labels, nil
}
