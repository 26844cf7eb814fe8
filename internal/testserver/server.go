// Package testserver is a stand-in for the avatar service: it answers the
// routes the built-in phases hit, plus a few diagnostic routes for
// exercising failure handling.
package testserver

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"octapulse/internal/payload"
	"octapulse/internal/store"
)

const (
	maxUploadSize   = 5 << 20
	maxKeys         = 7
	defaultAvatarPx = 64
	maxAvatarPx     = 512
)

// Store keeps uploaded images.
type Store interface {
	Put(ctx context.Context, key string, data []byte, meta store.Image) (id string, created bool, err error)
}

// Counters are the request totals since start.
type Counters struct {
	Reads   int64 `json:"reads"`
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
	Denied  int64 `json:"denied"`
}

// Server is the target stub.
type Server struct {
	mux    *http.ServeMux
	secret string
	store  Store
	logger *zap.Logger

	reads   atomic.Int64
	created atomic.Int64
	updated atomic.Int64
	denied  atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithStore persists uploads in st instead of memory.
func WithStore(st Store) Option {
	return func(s *Server) { s.store = st }
}

// WithLogger logs each request at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server. Uploads must carry secret in X-Secret-Key.
func NewServer(secret string, opts ...Option) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		secret: secret,
		store:  NewMemoryStore(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Counters returns a snapshot of the request totals.
func (s *Server) Counters() Counters {
	return Counters{
		Reads:   s.reads.Load(),
		Created: s.created.Load(),
		Updated: s.updated.Load(),
		Denied:  s.denied.Load(),
	}
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleRoot)
	s.mux.HandleFunc("GET /avatar/{seed}", s.handleAvatar)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("/status/{code}", s.handleStatus)
	s.mux.HandleFunc("/delay/{ms}", s.handleDelay)
	s.mux.HandleFunc("/fail-rate", s.handleFailRate)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "octapulse-target"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Counters())
}

// handleAvatar renders a deterministic noise JPEG for the seed.
// Example: GET /avatar/alice?size=128
func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	seed := r.PathValue("seed")
	size := defaultAvatarPx
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxAvatarPx {
			writeError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = n
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	img, err := payload.JPEG(size, rand.New(rand.NewSource(int64(h.Sum64()))))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.reads.Add(1)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Secret-Key")), []byte(s.secret)) != 1 {
		s.denied.Add(1)
		writeError(w, http.StatusForbidden, "invalid secret key")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file exceeds size limit or form is malformed")
		return
	}

	keys := parseKeys(r.FormValue("keys"))
	if len(keys) == 0 {
		writeError(w, http.StatusBadRequest, "at least one valid key is required")
		return
	}
	if len(keys) > maxKeys {
		writeError(w, http.StatusBadRequest, "too many keys provided")
		return
	}

	file, _, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'avatar' file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}

	id, created, err := s.store.Put(r.Context(), keys[0], data, store.Image{Width: cfg.Width, Height: cfg.Height, Format: format})
	if err != nil {
		s.logger.Error("store upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	action := "updated"
	if created {
		action = "created"
		s.created.Add(1)
	} else {
		s.updated.Add(1)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"action":    action,
		"avatar_id": id,
		"keys":      keys,
		"size_kb":   len(data) / 1024,
	})
}

// handleStatus returns the requested status code.
// Example: GET /status/404
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
	fmt.Fprintf(w, "%d %s", code, http.StatusText(code))
}

// handleDelay waits before answering.
// Example: GET /delay/100 waits 100ms
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.PathValue("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-r.Context().Done():
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "delayed %dms", ms)
}

// handleFailRate fails a percentage of requests with 500.
// Example: GET /fail-rate?rate=10
func (s *Server) handleFailRate(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
	if err != nil || rate < 0 || rate > 100 {
		rate = 0
	}

	if rand.Intn(100) < rate {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "success")
}

func parseKeys(raw string) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0, 1)
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": http.StatusText(code), "message": msg})
}

// MemoryStore is the default Store. Keys map to generated ids.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]string
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string), data: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, _ store.Image) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		m.data[id] = data
		return id, false, nil
	}
	id := uuid.NewString()
	m.keys[key] = id
	m.data[id] = data
	return id, true, nil
}

// Len returns the number of stored images.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
