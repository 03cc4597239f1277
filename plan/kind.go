package plan

import (
	"fmt"
	"github.com/cockroachdb/errors"
	"strconv"
	"strings"
)

// Kind of a physical operator. The set is closed, every switch over Kind in
// this repository is expected to be exhaustive.
type Kind int

const (
	KindTableScan Kind = iota
	KindFilter
	KindSelect
	KindGroupBy
	KindJoin
	KindMapJoin
	KindHashTableSink  // build side of a map join
	KindHashTableDummy // probe side placeholder of a map join
	KindReduceSink     // shuffle boundary
	KindLimit
	KindUnion
	KindFileSink
	KindListSink // terminal output
	KindExtract
	KindForward
	KindScript
	KindUDTF
	KindDemux
	KindMux
	KindPTF

	kindSize
)

type kindInfo struct {
	name   string // name used by plan file and printing
	prefix string // prefix of the operator id, ie TS_0
}

var kindTable = [kindSize]kindInfo{
	KindTableScan:      {"TableScan", "TS"},
	KindFilter:         {"Filter", "FIL"},
	KindSelect:         {"Select", "SEL"},
	KindGroupBy:        {"GroupBy", "GBY"},
	KindJoin:           {"Join", "JOIN"},
	KindMapJoin:        {"MapJoin", "MAPJOIN"},
	KindHashTableSink:  {"HashTableSink", "HASHTABLESINK"},
	KindHashTableDummy: {"HashTableDummy", "HASHTABLEDUMMY"},
	KindReduceSink:     {"ReduceSink", "RS"},
	KindLimit:          {"Limit", "LIM"},
	KindUnion:          {"Union", "UNION"},
	KindFileSink:       {"FileSink", "FS"},
	KindListSink:       {"ListSink", "LIST_SINK"},
	KindExtract:        {"Extract", "EX"},
	KindForward:        {"Forward", "FOR"},
	KindScript:         {"Script", "SCR"},
	KindUDTF:           {"UDTF", "UDTF"},
	KindDemux:          {"Demux", "DEMUX"},
	KindMux:            {"Mux", "MUX"},
	KindPTF:            {"PTF", "PTF"},
}

func (self Kind) valid() bool { return self >= 0 && self < kindSize }

func (self Kind) String() string {
	if !self.valid() {
		return fmt.Sprintf("Kind(%d)", int(self))
	}
	return kindTable[self].name
}

// Prefix returns the id prefix the source engine uses for this kind.
func (self Kind) Prefix() string {
	if !self.valid() {
		return ""
	}
	return kindTable[self].prefix
}

func (self Kind) IsSink() bool {
	return self == KindFileSink || self == KindListSink
}

func (self Kind) IsJoin() bool {
	return self == KindJoin || self == KindMapJoin
}

// ParseKind accepts either the name of the kind (case insensitive) or its
// id prefix.
func ParseKind(x string) (Kind, error) {
	for k := Kind(0); k < kindSize; k++ {
		info := kindTable[k]
		if strings.EqualFold(info.name, x) || info.prefix == x {
			return k, nil
		}
	}
	return -1, errors.Newf("unknown operator kind: %s", x)
}

// KindOfID guesses the kind from an operator id, ie RS_3 is a ReduceSink.
func KindOfID(id string) (Kind, bool) {
	prefix, _, ok := SplitID(id)
	if !ok {
		return -1, false
	}
	for k := Kind(0); k < kindSize; k++ {
		if kindTable[k].prefix == prefix {
			return k, true
		}
	}
	return -1, false
}

// SplitID decodes an operator id into its prefix and ordinal, ie
// HASHTABLEDUMMY_2 is (HASHTABLEDUMMY, 2).
func SplitID(id string) (string, int, bool) {
	idx := strings.LastIndexByte(id, '_')
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:idx], n, true
}

func MakeID(kind Kind, ordinal int) string {
	return fmt.Sprintf("%s_%d", kind.Prefix(), ordinal)
}
