// Package clusterversion implements the bare string-compare version gate
// the GC filter's activation check needs (spec.md §4.2.2: "the cluster
// has finished upgrading to at least version 5.0.0"). No third-party
// semver library is wired in here: nothing else in this project's
// dependency set pulls one in, so comparing three dot-separated integers
// is done directly, the same way the teacher keeps its own
// FormatVersion as a bare uint32 rather than reaching for a version
// library.
package clusterversion

import (
	"strconv"
	"strings"
)

// AtLeast reports whether version is >= min, where both are
// dot-separated non-negative integers (e.g. "5.0.0"). A component
// missing from version (e.g. "5" compared against "5.0.0") is treated as
// 0. A malformed component compares as 0, since an unparsable version
// string should never pass a feature gate.
func AtLeast(version, min string) bool {
	v := parse(version)
	m := parse(min)
	for i := 0; i < len(m); i++ {
		var vi int
		if i < len(v) {
			vi = v[i]
		}
		if vi != m[i] {
			return vi > m[i]
		}
	}
	return true
}

func parse(s string) []int {
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}
