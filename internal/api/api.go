package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hapdb/internal/storage"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// API serves read-only queries over a record store.
type API struct {
	Store  storage.Store
	DBPath string
}

func NewAPI(store storage.Store, dbPath string) *API {
	return &API{Store: store, DBPath: dbPath}
}

// RegisterRoutes mounts all API endpoints on the given mux
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/records", a.cors(a.handleRecords))
	mux.HandleFunc("/api/records/", a.cors(a.handleRecord))
	mux.HandleFunc("/api/ingests", a.cors(a.handleIngests))
	mux.HandleFunc("/api/stats", a.cors(a.handleStats))
	mux.HandleFunc("/api/health", a.cors(a.handleHealth))
}

// ── CORS middleware ──────────────────────────────────────────────
func (a *API) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// ── Records ──────────────────────────────────────────────────────

func (a *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := a.Store.ListRecords(opts)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRecord(w http.ResponseWriter, r *http.Request) {
	// /api/records/{id}
	raw := strings.TrimPrefix(r.URL.Path, "/api/records/")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "Invalid record id: "+raw, http.StatusBadRequest)
		return
	}

	entry, err := a.Store.GetRecord(id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Record not found: "+raw, http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// parseListOpts reads ?page=&page_size=&frontend=&backend=&server=&method=&status=&since=&until=
func parseListOpts(r *http.Request) (storage.ListOpts, error) {
	q := r.URL.Query()
	opts := storage.ListOpts{
		Frontend: q.Get("frontend"),
		Backend:  q.Get("backend"),
		Server:   q.Get("server"),
		Method:   q.Get("method"),
	}

	for name, dst := range map[string]*int{"page": &opts.Page, "page_size": &opts.PageSize, "status": &opts.Status} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New("invalid " + name + ": " + v)
		}
		*dst = n
	}

	for name, dst := range map[string]*time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New("invalid " + name + ": want RFC3339")
		}
		*dst = ts
	}

	return opts, nil
}

// ── Ingests ──────────────────────────────────────────────────────

func (a *API) handleIngests(w http.ResponseWriter, r *http.Request) {
	runs, err := a.Store.ListIngests()
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// ── Stats ────────────────────────────────────────────────────────

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Store.GetStats()
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ── Health ───────────────────────────────────────────────────────

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"database": a.DBPath,
	})
}

// ── Helpers ──────────────────────────────────────────────────────

func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("api request failed")
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
