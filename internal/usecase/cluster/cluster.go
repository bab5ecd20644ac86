// Package cluster implements the segmentation algorithms offered by the
// cluster endpoint: DBSCAN, mean shift and k-means.
package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"pointview/internal/usecase"
)

// Algorithm names as sent by the viewer form.
const (
	DBSCAN    = "DBSCAN"
	MeanShift = "MEANSHIFT"
	KMeans    = "KMEANS"
)

// Defaults follow the segmentation service the viewer was built against.
const (
	DefaultEps        = 0.02
	DefaultMinSamples = 10
	DefaultBandwidth  = 0.1
	DefaultClusters   = 3
)

// ErrUnknownAlgorithm is returned for an algorithm name that is not offered.
var ErrUnknownAlgorithm = errors.New("unknown clustering algorithm")

// ErrInvalidSettings wraps every settings validation failure.
var ErrInvalidSettings = errors.New("invalid cluster settings")

// Settings is the cluster form. Zero values fall back to the defaults.
type Settings struct {
	Algorithm  string  `json:"algorithm" validate:"required"`
	Eps        float64 `json:"eps,omitempty" validate:"gte=0"`
	MinSamples int     `json:"min_samples,omitempty" validate:"gte=0"`
	Normalize  *bool   `json:"normalize,omitempty"`
	Bandwidth  float64 `json:"bandwidth,omitempty" validate:"gte=0"`
	NClusters  int     `json:"n_clusters,omitempty" validate:"gte=0"`
}

// Names lists the offered algorithms.
func Names() []string {
	return []string{DBSCAN, MeanShift, KMeans}
}

var validate = validator.New()

// New builds the clusterer selected by the settings.
func New(s Settings) (usecase.PointCloudClusterer, error) {
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	normalize := func(def bool) bool {
		if s.Normalize == nil {
			return def
		}
		return *s.Normalize
	}
	switch strings.ToUpper(s.Algorithm) {
	case DBSCAN:
		return NewDBSCAN(orFloat(s.Eps, DefaultEps), orInt(s.MinSamples, DefaultMinSamples), normalize(true)), nil
	case MeanShift:
		return NewMeanShift(orFloat(s.Bandwidth, DefaultBandwidth), normalize(true)), nil
	case KMeans:
		return NewKMeans(orInt(s.NClusters, DefaultClusters), normalize(false)), nil
	default:
		return nil, fmt.Errorf("%w: %q, want one of %s", ErrUnknownAlgorithm, s.Algorithm, strings.Join(Names(), ", "))
	}
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// prepare optionally normalizes the cloud. Labels always refer to the input
// order, so callers can group the original coordinates.
func prepare(cloud usecase.PointCloud, normalize bool) (usecase.PointCloud, error) {
	if !normalize {
		return cloud, nil
	}
	return usecase.Normalize(cloud)
}

// checkEvery is how many points are processed between context checks.
const checkEvery = 1024
