// Package dedup implements the duplicate-key resolver: the pure computation
// that decides, for every submission of a form, which duplicate group it
// belongs to and whether it is the canonical (most recent) member.
//
// The package has no side effects and no persistence knowledge. Callers fetch
// submission rows with the values of the configured key fields, run Resolve,
// and apply the result however they need — the transactional flag rescan in
// services.DedupService persists it, while read-model "clean" views consume
// it in memory and never write anything.
package dedup

import (
	"sort"
	"strings"
	"time"
)

// FallbackKeyFields are the field names used to build the duplicate key when
// a form has no duplicate settings configured.
var FallbackKeyFields = []string{"phone", "email"}

// CleanKeyFields is the narrower presentation-only key used by cross-form
// "clean submissions" read models. It is distinct from per-form duplicate
// settings and its result is never persisted to the duplicated flag.
var CleanKeyFields = []string{"form-code", "phone", "email"}

// Row is one submission projected onto the configured key fields. Values are
// aligned with the key-field order; a missing response contributes "".
type Row struct {
	ID        uint
	Timestamp time.Time
	Values    []string
}

// Result is the resolver's verdict for a single submission.
type Result struct {
	// IsDuplicate is true for every non-canonical member of a non-empty-key
	// group. Rows with an empty key are never duplicates.
	IsDuplicate bool
	// GroupKey is the computed duplicate key, or "" when every contributing
	// value was blank (the row is then excluded from grouping).
	GroupKey string
}

// Key builds the duplicate-group key from field values: each value is
// whitespace-trimmed and the results are joined with "|". If every value
// trims to empty the key is "" and the row must be excluded from grouping.
func Key(values []string) string {
	parts := make([]string, len(values))
	empty := true
	for i, v := range values {
		parts[i] = strings.TrimSpace(v)
		if parts[i] != "" {
			empty = false
		}
	}
	if empty {
		return ""
	}
	return strings.Join(parts, "|")
}

// Resolve groups rows by their computed key and marks every non-canonical
// member of each group as a duplicate. The canonical member is the one with
// the latest timestamp; exact timestamp ties are broken by highest ID as a
// second recency proxy, so the output is deterministic for any input order.
//
// Rows whose key is empty get {IsDuplicate: false, GroupKey: ""} and do not
// participate in any group.
func Resolve(rows []Row) map[uint]Result {
	out := make(map[uint]Result, len(rows))
	groups := make(map[string][]Row)

	for _, r := range rows {
		k := Key(r.Values)
		if k == "" {
			out[r.ID] = Result{IsDuplicate: false, GroupKey: ""}
			continue
		}
		groups[k] = append(groups[k], r)
	}

	for key, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			if !members[i].Timestamp.Equal(members[j].Timestamp) {
				return members[i].Timestamp.After(members[j].Timestamp)
			}
			return members[i].ID > members[j].ID
		})
		for i, m := range members {
			out[m.ID] = Result{IsDuplicate: i > 0, GroupKey: key}
		}
	}
	return out
}

// Canonical returns, in input order, the IDs of rows the resolver does not
// consider duplicates. This is the shape consumed by presentation-only
// deduplication (clean submission views).
func Canonical(rows []Row) []uint {
	res := Resolve(rows)
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		if !res[r.ID].IsDuplicate {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
