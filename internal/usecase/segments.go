package usecase

import (
	"slices"
	"strconv"
	"strings"
)

// NoiseLabel marks points that belong to no cluster.
const NoiseLabel = -1

// GroupLabels splits the cloud by label. Keys are the decimal labels and
// points keep their input order inside each segment.
func GroupLabels(cloud PointCloud, labels []int) map[string]PointCloud {
	segments := make(map[string]PointCloud)
	for i, label := range labels {
		if i >= len(cloud) {
			break
		}
		key := strconv.Itoa(label)
		segments[key] = append(segments[key], cloud[i])
	}
	return segments
}

// OrderSegments flattens a segment dictionary into a list: numeric ids
// ascending first, then any other ids in lexical order.
func OrderSegments(segments map[string]PointCloud) []PointCloud {
	keys := make([]string, 0, len(segments))
	for k := range segments {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareSegmentKeys)

	out := make([]PointCloud, 0, len(keys))
	for _, k := range keys {
		out = append(out, segments[k])
	}
	return out
}

func compareSegmentKeys(a, b string) int {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
