package pipeline

import "github.com/sells-group/pipedrive-export/internal/model"

// Dedup keeps the last occurrence of each record id. The output follows the
// position of each id's last occurrence in the input. Applying Dedup to its
// own output returns it unchanged.
func Dedup(records []model.Record) []model.Record {
	last := make(map[int64]int, len(records))
	for i, r := range records {
		last[r.ID] = i
	}
	if len(last) == len(records) {
		return records
	}

	out := make([]model.Record, 0, len(last))
	for i, r := range records {
		if last[r.ID] == i {
			out = append(out, r)
		}
	}
	return out
}
