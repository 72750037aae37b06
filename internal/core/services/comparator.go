package services

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/lookout/backend/internal/domain"
)

// CompareStates diffs two structured state snapshots and returns nil when
// nothing meaningful changed. A key present on only one side is reported
// as the field becoming known/unknown. The first execution (nil or empty
// prior) never produces a summary.
//
// Snapshots are opaque; values may be nested. Comparison is by deep
// equality after both sides round-tripped through JSON, so numeric
// representation differences do not count as changes.
func CompareStates(prev, curr domain.JSONB) *domain.ChangeSummary {
	if len(prev) == 0 {
		return nil
	}

	prev = normalizeSnapshot(prev)
	curr = normalizeSnapshot(curr)

	keys := make(map[string]struct{}, len(prev)+len(curr))
	for k := range prev {
		keys[k] = struct{}{}
	}
	for k := range curr {
		keys[k] = struct{}{}
	}

	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	var fields []domain.FieldChange
	for _, k := range ordered {
		before, hadBefore := prev[k]
		after, hasAfter := curr[k]

		switch {
		case hadBefore && !hasAfter:
			fields = append(fields, domain.FieldChange{Field: k, Before: before})
		case !hadBefore && hasAfter:
			fields = append(fields, domain.FieldChange{Field: k, After: after})
		case !reflect.DeepEqual(before, after):
			fields = append(fields, domain.FieldChange{Field: k, Before: before, After: after})
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &domain.ChangeSummary{Fields: fields}
}

// SummaryText renders a change summary as a short human-readable line,
// e.g. `date: "unknown" -> "2026-09-10"; price: 999 -> 1099`.
func SummaryText(change *domain.ChangeSummary) string {
	if change == nil || len(change.Fields) == 0 {
		return ""
	}

	parts := make([]string, 0, len(change.Fields))
	for _, f := range change.Fields {
		switch {
		case f.Before == nil && f.After != nil:
			parts = append(parts, fmt.Sprintf("%s: became %s", f.Field, renderValue(f.After)))
		case f.Before != nil && f.After == nil:
			parts = append(parts, fmt.Sprintf("%s: no longer known (was %s)", f.Field, renderValue(f.Before)))
		default:
			parts = append(parts, fmt.Sprintf("%s: %s -> %s", f.Field, renderValue(f.Before), renderValue(f.After)))
		}
	}
	return strings.Join(parts, "; ")
}

// ChangeDetail converts a summary into the jsonb shape persisted on the
// execution row.
func ChangeDetail(change *domain.ChangeSummary) domain.JSONB {
	if change == nil {
		return nil
	}
	fields := make([]interface{}, 0, len(change.Fields))
	for _, f := range change.Fields {
		fields = append(fields, map[string]interface{}{
			"field":  f.Field,
			"before": f.Before,
			"after":  f.After,
		})
	}
	return domain.JSONB{"fields": fields}
}

// normalizeSnapshot round-trips a snapshot through JSON so that values
// built in-process (int, custom types) compare equal to values decoded
// from storage or the wire. A malformed snapshot comes back empty rather
// than failing: "no comparison possible" is not a crash.
func normalizeSnapshot(s domain.JSONB) domain.JSONB {
	if len(s) == 0 {
		return s
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return domain.JSONB{}
	}
	var out domain.JSONB
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.JSONB{}
	}
	return out
}

func renderValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}
