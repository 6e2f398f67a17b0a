package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/livefeed/livefeed/server/internal/store"
)

// Query parameters accepted by GET /data.
const (
	paramStart = "start"
	paramStop  = "stop"
)

// SubscriberCounter reports how many subscribers are connected.
type SubscriberCounter interface {
	Count() int
}

// Handler is the HTTP handler for the query endpoints.
type Handler struct {
	store   store.Store
	subs    SubscriberCounter
	onFatal func(error)
	mux     *http.ServeMux
}

// New creates a Handler reading from st and registers all routes.
// onFatal is called with any store error.
func New(st store.Store, subs SubscriberCounter, onFatal func(error)) http.Handler {
	h := &Handler{store: st, subs: subs, onFatal: onFatal, mux: http.NewServeMux()}

	h.mux.HandleFunc("/data", h.data)
	h.mux.HandleFunc("/healthz", h.health)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// data serves GET /data: the filtered, timestamp-ordered record set.
func (h *Handler) data(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		textErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rng, msg := parseRange(r)
	if msg != "" {
		textErr(w, http.StatusBadRequest, msg)
		return
	}

	rows, err := h.store.Query(r.Context(), rng)
	if err != nil {
		h.fatal(w, err)
		return
	}

	body, err := json.Marshal(rows)
	if err != nil {
		h.fatal(w, err)
		return
	}

	etag := contentETag(body)
	w.Header().Set("ETag", etag)
	if etagMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(body) //nolint:errcheck
	}
}

// health serves GET /healthz with record and subscriber counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		textErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := h.store.Count(r.Context())
	if err != nil {
		h.fatal(w, err)
		return
	}

	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Records:     n,
		Subscribers: h.subs.Count(),
	})
}

// --- helpers ----------------------------------------------------------------

// parseRange validates the query string of r. It returns a non-empty client
// error message when the parameters are unacceptable.
func parseRange(r *http.Request) (store.Range, string) {
	q, msg := parseQuery(r.URL.RawQuery)
	if msg != "" {
		return store.Range{}, msg
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k != paramStart && k != paramStop {
			return store.Range{}, fmt.Sprintf("unkown parameter %s", k)
		}
	}

	var rng store.Range
	if rng.Start, msg = parseBound(q, paramStart); msg != "" {
		return store.Range{}, msg
	}
	if rng.Stop, msg = parseBound(q, paramStop); msg != "" {
		return store.Range{}, msg
	}
	return rng, ""
}

// parseQuery decodes raw and rejects the pairs url.ParseQuery would skip:
// bad escapes and ';' separators.
func parseQuery(raw string) (url.Values, string) {
	q, err := url.ParseQuery(raw)
	if err == nil {
		return q, ""
	}
	for _, pair := range strings.Split(raw, "&") {
		key, val, _ := strings.Cut(pair, "=")
		name, kerr := url.QueryUnescape(key)
		if kerr != nil || strings.Contains(key, ";") {
			return nil, "bad query"
		}
		if _, verr := url.QueryUnescape(val); verr != nil || strings.Contains(val, ";") {
			if name == paramStart || name == paramStop {
				return nil, fmt.Sprintf("%s must be an integer", name)
			}
			return nil, "bad query"
		}
	}
	return nil, "bad query"
}

// parseBound reads one optional integer parameter. An absent or empty value
// yields a nil bound.
func parseBound(q map[string][]string, name string) (*int64, string) {
	vals, ok := q[name]
	if !ok {
		return nil, ""
	}
	if len(vals) != 1 {
		return nil, fmt.Sprintf("%s must be a single value", name)
	}
	if vals[0] == "" {
		return nil, ""
	}
	n, err := strconv.ParseInt(vals[0], 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("%s must be an integer", name)
	}
	return &n, ""
}

// contentETag derives a strong validator from the response body.
func contentETag(body []byte) string {
	return fmt.Sprintf(`"%x-%016x"`, len(body), xxhash.Sum64(body))
}

// etagMatch reports whether an If-None-Match header value matches etag.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (h *Handler) fatal(w http.ResponseWriter, err error) {
	slog.Error("api: store failure", "err", err)
	textErr(w, http.StatusInternalServerError, "internal error")
	if h.onFatal != nil {
		h.onFatal(err)
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// textErr writes a one-line plaintext error body terminated by CRLF.
func textErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	fmt.Fprintf(w, "%s\r\n", msg)
}
