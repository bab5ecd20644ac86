package cluster

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/golang/geo/r3"

	"pointview/internal/usecase"
)

const (
	meanShiftMaxIter = 300
	// meanShiftTol is the convergence threshold as a fraction of the bandwidth.
	meanShiftTol = 1e-3
)

// MeanShiftClusterer is flat-kernel mean shift seeded from bandwidth-sized bins.
// It is deterministic: seeds, modes and labels only depend on the input.
type MeanShiftClusterer struct {
	Bandwidth float64
	Normalize bool
}

func NewMeanShift(bandwidth float64, normalize bool) *MeanShiftClusterer {
	return &MeanShiftClusterer{Bandwidth: bandwidth, Normalize: normalize}
}

type mode struct {
	center  r3.Vector
	support int
}

// Labels assigns every point to the nearest converged mode.
func (c *MeanShiftClusterer) Labels(ctx context.Context, cloud usecase.PointCloud) ([]int, error) {
	if c.Bandwidth <= 0 {
		return nil, fmt.Errorf("mean shift: %w: bandwidth %g", ErrInvalidSettings, c.Bandwidth)
	}
	points, err := prepare(cloud, c.Normalize)
	if err != nil {
		return nil, fmt.Errorf("mean shift: %w", err)
	}

	si := newSpatialIndex(points, c.Bandwidth)
	var modes []mode
	var scratch []int
	for i, seed := range c.seeds(points) {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		center := seed
		support := 0
		for iter := 0; iter < meanShiftMaxIter; iter++ {
			scratch = si.within(points, center.X, center.Y, center.Z, scratch[:0])
			if len(scratch) == 0 {
				break
			}
			next := mean(points, scratch)
			shift := next.Sub(center).Norm()
			center, support = next, len(scratch)
			if shift < meanShiftTol*c.Bandwidth {
				break
			}
		}
		if support > 0 {
			modes = append(modes, mode{center: center, support: support})
		}
	}

	modes = c.merge(modes)
	labels := make([]int, len(points))
	for i, p := range points {
		v := r3.Vector{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
		best, bestDist := 0, math.Inf(1)
		for m := range modes {
			if d := v.Sub(modes[m].center).Norm2(); d < bestDist {
				best, bestDist = m, d
			}
		}
		labels[i] = best
	}
	return labels, nil
}

// seeds returns the centroid of every occupied bandwidth bin, in bin order.
func (c *MeanShiftClusterer) seeds(points usecase.PointCloud) []r3.Vector {
	type bin struct {
		key cellKey
		sum r3.Vector
		n   int
	}
	si := &spatialIndex{radius: c.Bandwidth}
	bins := make(map[cellKey]*bin)
	for _, p := range points {
		v := r3.Vector{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
		k := si.key(v.X, v.Y, v.Z)
		b, ok := bins[k]
		if !ok {
			b = &bin{key: k}
			bins[k] = b
		}
		b.sum = b.sum.Add(v)
		b.n++
	}
	ordered := make([]*bin, 0, len(bins))
	for _, b := range bins {
		ordered = append(ordered, b)
	}
	slices.SortFunc(ordered, func(a, b *bin) int {
		for i := 0; i < 3; i++ {
			if d := cmp.Compare(a.key[i], b.key[i]); d != 0 {
				return d
			}
		}
		return 0
	})
	seeds := make([]r3.Vector, len(ordered))
	for i, b := range ordered {
		seeds[i] = b.sum.Mul(1 / float64(b.n))
	}
	return seeds
}

// merge keeps the best supported modes and drops any mode within one
// bandwidth of a kept one.
func (c *MeanShiftClusterer) merge(modes []mode) []mode {
	slices.SortStableFunc(modes, func(a, b mode) int {
		if d := cmp.Compare(b.support, a.support); d != 0 {
			return d
		}
		if d := cmp.Compare(a.center.X, b.center.X); d != 0 {
			return d
		}
		if d := cmp.Compare(a.center.Y, b.center.Y); d != 0 {
			return d
		}
		return cmp.Compare(a.center.Z, b.center.Z)
	})
	kept := modes[:0:0]
	for _, m := range modes {
		duplicate := false
		for _, k := range kept {
			if m.center.Sub(k.center).Norm() < c.Bandwidth {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, m)
		}
	}
	return kept
}

func mean(points usecase.PointCloud, idx []int) r3.Vector {
	var sum r3.Vector
	for _, i := range idx {
		p := points[i]
		sum = sum.Add(r3.Vector{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])})
	}
	return sum.Mul(1 / float64(len(idx)))
}
