package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"infopos/backend/internal/domain"
	"infopos/backend/internal/observability"
	"infopos/backend/internal/service"
	"infopos/backend/internal/store"
)

const (
	maxBodyBytes     = 1 << 20
	maxPushBodyBytes = 8 << 20
	loginRateLimit   = 5
)

// Options configures the API. PushRateLimit counts pushes per client IP per minute.
type Options struct {
	AllowedOrigin  string
	RequestTimeout time.Duration
	PushRateLimit  int
	Metrics        *observability.Metrics
	Logger         *slog.Logger
}

// API serves the sync endpoints. Rate limit windows are shared by every Handler it builds.
type API struct {
	service      *service.Service
	auth         *AuthManager
	opts         Options
	logger       *slog.Logger
	secure       *secure.Secure
	loginLimiter func(http.Handler) http.Handler
	pushLimiter  func(http.Handler) http.Handler
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.PushRateLimit < 1 {
		opts.PushRateLimit = 120
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	headers := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	})
	return &API{
		service:      svc,
		auth:         auth,
		opts:         opts,
		logger:       logger,
		secure:       headers,
		loginLimiter: rateLimit(loginRateLimit),
		pushLimiter:  rateLimit(opts.PushRateLimit),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		a.logRequests,
		middleware.Recoverer,
		middleware.Timeout(a.opts.RequestTimeout),
		a.securityHeaders,
		a.cors,
		a.opts.Metrics.Middleware,
	)

	r.Get("/api/sync/health", a.handleHealth)
	r.With(a.loginLimiter, limitBody(maxBodyBytes)).Post("/api/auth/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Method(http.MethodGet, "/metrics", a.opts.Metrics.Handler())
		r.Get("/api/sync", a.handlePull)
		r.With(a.pushLimiter, limitBody(maxPushBodyBytes)).Post("/api/sync", a.handlePush)
		r.Get("/api/sync/delta", a.handleDelta)
		r.Get("/api/sync/manifest", a.handleManifest)
		r.Get("/api/sync/stores/{storeID}", a.handleStoreConfig)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Health())
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			status = http.StatusUnauthorized
		case errors.Is(err, ErrInactiveAccount):
			status = http.StatusForbidden
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePull(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entity, err := service.ParseEntity(query.Get("table"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	storeID, err := parseStoreID(query.Get("store_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.service.Pull(r.Context(), entity, query.Get("last_sync"), storeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"table":     res.Entity,
		"data":      res.Data,
		"count":     res.Count,
		"timestamp": res.Timestamp,
	})
}

func (a *API) handleDelta(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	raw := strings.TrimSpace(query.Get("entity_type"))
	if raw == "" {
		writeServiceError(w, fmt.Errorf("%w: entity_type", service.ErrMissingRequiredField))
		return
	}
	entity, err := service.ParseEntity(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	storeID, err := parseStoreID(query.Get("store_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.service.Delta(r.Context(), entity, query.Get("last_sync"), storeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"entity_type": res.Entity,
		"data":        res.Data,
		"count":       res.Count,
		"timestamp":   res.Timestamp,
	})
}

func (a *API) handlePush(w http.ResponseWriter, r *http.Request) {
	entity, err := service.ParseEntity(r.URL.Query().Get("table"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var body map[string]json.RawMessage
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var storeID domain.FlexID
	if raw, ok := body["store_id"]; ok {
		if err := json.Unmarshal(raw, &storeID); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("store_id must be an integer"))
			return
		}
	}
	if !storeID.Valid {
		writeServiceError(w, fmt.Errorf("%w: store_id", service.ErrMissingRequiredField))
		return
	}

	records, err := pushRecords(entity, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.service.Push(r.Context(), entity, storeID.Value, records)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	countKey := "synced"
	if entity == domain.EntityStock {
		countKey = "updated"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   fmt.Sprintf("%d %s record(s) processed", res.Synced, entity),
		countKey:    res.Synced,
		"errors":    recordErrors(entity, res.Errors),
		"batch_id":  res.BatchID,
		"timestamp": res.Timestamp,
	})
}

func (a *API) handleManifest(w http.ResponseWriter, r *http.Request) {
	storeID, err := parseStoreID(r.URL.Query().Get("store_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	manifest, err := a.service.Manifest(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"data":      manifest,
		"timestamp": a.service.Timestamp(),
	})
}

func (a *API) handleStoreConfig(w http.ResponseWriter, r *http.Request) {
	storeID, err := parseStoreID(chi.URLParam(r, "storeID"))
	if err != nil || storeID == nil {
		writeError(w, http.StatusBadRequest, errors.New("store id must be a positive integer"))
		return
	}
	cfg, err := a.service.StoreConfig(r.Context(), *storeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"data":      cfg,
		"timestamp": a.service.Timestamp(),
	})
}

// pushRecords picks the entity array out of a push body. Stock also accepts `updates`.
func pushRecords(entity domain.Entity, body map[string]json.RawMessage) (domain.RawRecords, error) {
	keys := []string{string(entity)}
	if entity == domain.EntityStock {
		keys = append(keys, "updates")
	}
	for _, key := range keys {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var records domain.RawRecords
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%s must be an array of records", key)
		}
		return records, nil
	}
	return nil, nil
}

// recordErrors renders per-record failures keyed by the identifier clients track.
func recordErrors(entity domain.Entity, errs []domain.RecordError) []map[string]any {
	idKey := "id"
	switch entity {
	case domain.EntitySales:
		idKey = "sale_id"
	case domain.EntityTransactions:
		idKey = "transaction_id"
	case domain.EntityContacts:
		idKey = "contact_id"
	case domain.EntityStock:
		idKey = "product_id"
	}
	out := make([]map[string]any, 0, len(errs))
	for _, e := range errs {
		out = append(out, map[string]any{
			"index": e.Index,
			idKey:   e.ID,
			"error": e.Message,
		})
	}
	return out
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(startedAt)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.secure.Process(w, r); err != nil {
			a.logger.Warn("secure headers blocked request", slog.Any("error", err))
			writeError(w, http.StatusBadRequest, errors.New("request blocked"))
			return
		}
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many requests"))
		}),
	)
}

func limitBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func parseStoreID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, errors.New("store_id must be a positive integer")
	}
	return &id, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeBody accepts unknown fields; push bodies carry client-side extras.
func decodeBody(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnknownEntity),
		errors.Is(err, service.ErrMissingRequiredField),
		errors.Is(err, service.ErrMissingStoreID),
		errors.Is(err, service.ErrInvalidTimestamp):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrStoreForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	writeError(w, status, err)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause is only logged.
	msg := err.Error()
	if status >= 500 {
		slog.Error("internal error", slog.Int("status", status), slog.Any("error", err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
