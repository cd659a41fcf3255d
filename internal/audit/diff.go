package audit

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"sprintboard/internal/models"
)

// Change is one field whose serialized value differs.
type Change struct {
	Field string
	Old   string
	New   string
}

// Format serializes a field value the way it is stored in history. Nil
// pointers and nil become the empty string.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case *int64:
		if x == nil {
			return ""
		}
		return strconv.FormatInt(*x, 10)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// Diff compares two field maps and returns a change for every field whose
// serialized value differs, ordered by field name. Fields present in only one
// map compare against the empty string.
func Diff(before, after map[string]any) []Change {
	fields := make(map[string]struct{}, len(before)+len(after))
	for f := range before {
		fields[f] = struct{}{}
	}
	for f := range after {
		fields[f] = struct{}{}
	}
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var changes []Change
	for _, f := range names {
		o, n := Format(before[f]), Format(after[f])
		if o != n {
			changes = append(changes, Change{Field: f, Old: o, New: n})
		}
	}
	return changes
}

// Records turns changes into history records for one entity and action.
func Records(entityType string, entityID, userID int64, action string, changes []Change) []models.HistoryRecord {
	out := make([]models.HistoryRecord, 0, len(changes))
	for _, c := range changes {
		out = append(out, models.HistoryRecord{
			EntityType:   entityType,
			EntityID:     entityID,
			UserID:       userID,
			Action:       action,
			FieldChanged: c.Field,
			OldValue:     c.Old,
			NewValue:     c.New,
		})
	}
	return out
}

// ItemFields returns the user-editable fields of a work item keyed by name.
func ItemFields(w models.WorkItem) map[string]any {
	return map[string]any{
		"title":        w.Title,
		"description":  w.Description,
		"story_points": w.StoryPoints,
		"priority":     w.Priority,
		"type":         w.Type,
		"is_blocked":   w.IsBlocked,
	}
}
