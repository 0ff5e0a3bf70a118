// Package lumifilter implements run and luminosity-block filtering from the
// standard certification JSON format:
//
//	{"273158": [[1, 1279]], "273302": [[1, 459], [470, 620]]}
//
// Keys are run numbers, values are inclusive luminosity-block ranges.
package lumifilter

import (
	"io"
	"os"
	"sort"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// Range is an inclusive luminosity-block interval.
type Range struct {
	First uint32
	Last  uint32
}

// Contains reports whether lumi falls inside the range.
func (r Range) Contains(lumi uint32) bool {
	return lumi >= r.First && lumi <= r.Last
}

// Filter holds the certified ranges of every accepted run.
type Filter struct {
	runs map[uint32][]Range
}

// New builds a filter from a run → ranges map. Ranges are sorted by first
// block.
func New(runs map[uint32][]Range) (*Filter, error) {
	f := &Filter{runs: make(map[uint32][]Range, len(runs))}
	for run, ranges := range runs {
		rs := append([]Range(nil), ranges...)
		for _, r := range rs {
			if r.First > r.Last {
				return nil, errors.Newf(errors.ErrorTypeConfig, "run %d has inverted luminosity range [%d, %d]", run, r.First, r.Last)
			}
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i].First < rs[j].First })
		f.runs[run] = rs
	}
	return f, nil
}

// Parse decodes a certification JSON document.
func Parse(data []byte) (*Filter, error) {
	var raw map[string][][]uint32
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "decode luminosity JSON")
	}
	runs := make(map[uint32][]Range, len(raw))
	for key, pairs := range raw {
		run, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, errors.Newf(errors.ErrorTypeConfig, "luminosity JSON key %q is not a run number", key)
		}
		for _, p := range pairs {
			if len(p) != 2 {
				return nil, errors.Newf(errors.ErrorTypeConfig, "run %d has a range with %d bounds, want 2", run, len(p))
			}
			runs[uint32(run)] = append(runs[uint32(run)], Range{First: p[0], Last: p[1]})
		}
		if _, ok := runs[uint32(run)]; !ok {
			runs[uint32(run)] = nil
		}
	}
	return New(runs)
}

// Read decodes a certification JSON document from r.
func Read(r io.Reader) (*Filter, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "read luminosity JSON")
	}
	return Parse(data)
}

// Load reads a certification JSON file.
func Load(filename string) (*Filter, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "open luminosity JSON").WithDetail("file", filename)
	}
	return Parse(data)
}

// Runs returns the accepted run numbers in ascending order.
func (f *Filter) Runs() []uint32 {
	out := make([]uint32, 0, len(f.runs))
	for run := range f.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FilterRunOnly reports whether any luminosity block of run is accepted.
func (f *Filter) FilterRunOnly(run uint32) bool {
	_, ok := f.runs[run]
	return ok
}

// FilterRunLumi reports whether luminosity block lumi of run is accepted.
func (f *Filter) FilterRunLumi(run, lumi uint32) bool {
	ranges := f.runs[run]
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].First > lumi })
	for j := i - 1; j >= 0; j-- {
		if ranges[j].Contains(lumi) {
			return true
		}
	}
	return false
}
