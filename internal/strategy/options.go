package strategy

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"rewriteplan/pkg/planerr"
)

// optionSet is a closed set of option names.
type optionSet []string

func union(sets ...optionSet) []string {
	var out []string
	for _, s := range sets {
		out = append(out, s...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// checkKeys rejects any option key outside valid. Keys are reported in sorted
// order so the error is stable.
func checkKeys(strategy, table string, options map[string]string, valid []string) error {
	for _, key := range slices.Sorted(maps.Keys(options)) {
		if _, found := slices.BinarySearch(valid, key); !found {
			return planerr.Configf(strategy, table, "invalid option %q, valid options are [%s]",
				key, strings.Join(valid, ", "))
		}
	}
	return nil
}

// optionParser reads typed values out of an option map and remembers the
// first failure.
type optionParser struct {
	strategy string
	table    string
	options  map[string]string
	err      error
}

func (p *optionParser) asLong(key string, def int64) int64 {
	raw, ok := p.options[key]
	if !ok || p.err != nil {
		return def
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		p.err = planerr.ConfigWrap(p.strategy, p.table, err, "option %s must be a long, got %q", key, raw)
		return def
	}
	return v
}

func (p *optionParser) asInt(key string, def int) int {
	raw, ok := p.options[key]
	if !ok || p.err != nil {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.err = planerr.ConfigWrap(p.strategy, p.table, err, "option %s must be an integer, got %q", key, raw)
		return def
	}
	return v
}

func (p *optionParser) asBool(key string, def bool) bool {
	raw, ok := p.options[key]
	if !ok || p.err != nil {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.err = planerr.ConfigWrap(p.strategy, p.table, err, "option %s must be a boolean, got %q", key, raw)
		return def
	}
	return v
}
