package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sells-group/pipedrive-export/internal/resilience"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

// fakeCRM serves the deals, dealFields and stages endpoints from memory.
type fakeCRM struct {
	mu sync.Mutex

	// pages per pipeline, served in order by start offset.
	pages  map[int64][][]map[string]any
	fields []map[string]any
	stages map[int64][]map[string]any

	fieldsStatus int
	stageStatus  map[int64]int
	dealStatus   map[int64]int

	requests map[string]int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		pages:       make(map[int64][][]map[string]any),
		stages:      make(map[int64][]map[string]any),
		stageStatus: make(map[int64]int),
		dealStatus:  make(map[int64]int),
		requests:    make(map[string]int),
	}
}

func (f *fakeCRM) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeCRM) server(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests[r.URL.Path]++

		q := r.URL.Query()
		pipeline, _ := strconv.ParseInt(q.Get("pipeline_id"), 10, 64)

		switch r.URL.Path {
		case "/deals":
			if status := f.dealStatus[pipeline]; status != 0 {
				w.WriteHeader(status)
				return
			}
			start, _ := strconv.Atoi(q.Get("start"))
			writeJSON(w, f.dealsPage(pipeline, start))
		case "/dealFields":
			if f.fieldsStatus != 0 {
				w.WriteHeader(f.fieldsStatus)
				return
			}
			writeJSON(w, map[string]any{"success": true, "data": f.fields})
		case "/stages":
			if status := f.stageStatus[pipeline]; status != 0 {
				w.WriteHeader(status)
				return
			}
			writeJSON(w, map[string]any{"success": true, "data": f.stages[pipeline]})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeCRM) dealsPage(pipeline int64, start int) map[string]any {
	offset := 0
	pages := f.pages[pipeline]
	for i, items := range pages {
		if offset == start {
			more := i < len(pages)-1
			pagination := map[string]any{"start": start, "more_items_in_collection": more}
			if more {
				pagination["next_start"] = start + len(items)
			}
			return map[string]any{
				"success":         true,
				"data":            items,
				"additional_data": map[string]any{"pagination": pagination},
			}
		}
		offset += len(items)
	}
	return map[string]any{"success": true, "data": nil}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
