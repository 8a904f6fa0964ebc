package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	syncx "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/sync"
)

// GET /events?since=<seq>&limit=<n>
func ListEventsHandler(repo *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since int64
		if v := r.URL.Query().Get("since"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				http.Error(w, "bad since", http.StatusBadRequest)
				return
			}
			since = n
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := repo.Since(r.Context(), since, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []syncx.Event{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(events)
	}
}
