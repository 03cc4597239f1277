package sql

import (
	"strings"
)

func IsAggFunc(n string) bool {
	switch strings.ToLower(n) {
	case "min", "max", "sum", "avg", "count":
		return true
	default:
		return false
	}
}

// MergeAggFunc returns the aggregation that merges partial results produced
// by the given aggregation, ie partial counts are summed up. Unknown or
// already mergeable aggregation is returned as is.
func MergeAggFunc(n string) string {
	switch strings.ToLower(n) {
	case "count":
		return "sum"
	default:
		return n
	}
}
