package app

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/auth"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/export"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/observability"
)

const narrativeSegment = "narrative"

type HTTPServer struct {
	service *Service
	cfg     httpConfig
	log     zerolog.Logger
}

type httpConfig struct {
	corsOrigin   string
	cookieName   string
	jwtSecret    []byte
	dmpIDBaseURL string
}

func NewHTTPServer(service *Service, logger zerolog.Logger) *HTTPServer {
	observability.RegisterMetrics()
	cfg := service.cfg
	return &HTTPServer{
		service: service,
		log:     logger,
		cfg: httpConfig{
			corsOrigin:   cfg.CORSOrigin,
			cookieName:   cfg.AuthCookieName,
			jwtSecret:    []byte(cfg.JWTSecret),
			dmpIDBaseURL: cfg.DMPIDBaseURL,
		},
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.RequestLogger(s.log))
	r.Use(s.withCORS)

	r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/dmps/*", s.handleNarrative)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := s.service.Ready(ctx)
	checks := make(map[string]any, len(s.service.checks))
	for name := range s.service.checks {
		if err, failed := failures[name]; failed {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status, statusCode := "ready", http.StatusOK
	if len(failures) > 0 {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     len(failures) == 0,
		"status": status,
		"checks": checks,
	})
}

// handleNarrative serves GET /dmps/{id}/narrative[.ext]. The id may itself
// contain slashes.
func (s *HTTPServer) handleNarrative(w http.ResponseWriter, r *http.Request) {
	tail := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(tail); err == nil {
		tail = unescaped
	}
	i := strings.LastIndex(tail, "/")
	if i < 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	rawID, last := tail[:i], tail[i+1:]

	format, err := s.requestedFormat(last, r.Header.Get("Accept"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if format == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	dmpID := NormalizeDMPID(rawID, s.cfg.dmpIDBaseURL)
	if dmpID == "" {
		s.fail(w, r, errPlanNotFound(nil))
		return
	}

	query := r.URL.Query()
	result, err := s.service.Narrative(r.Context(), NarrativeRequest{
		DMPID:   dmpID,
		Version: strings.TrimSpace(query.Get("version")),
		Format:  format,
		Options: export.ParseOptions(query),
		Claims:  auth.FromRequest(r, s.cfg.cookieName, s.cfg.jwtSecret),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	if result.Attachment {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// requestedFormat returns "" when the final segment is not a narrative
func (s *HTTPServer) requestedFormat(segment, accept string) (export.Format, error) {
	if segment == narrativeSegment {
		return export.Negotiate(accept)
	}
	name, ext, ok := strings.Cut(segment, ".")
	if !ok || name != narrativeSegment {
		return "", nil
	}
	return export.FormatFromExtension(ext)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	event := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Msg("narrative request failed")
	writeError(w, status, code, message, details)
}

// NormalizeDMPID turns "10.48321/D1ABC", "doi.org/10.48321/D1ABC" or a full
// https URL into the canonical identifier under baseURL.
func NormalizeDMPID(raw, baseURL string) string {
	id := strings.Trim(strings.TrimSpace(raw), "/")
	lower := strings.ToLower(id)
	for _, prefix := range []string{"https://", "http://", "https:/", "http:/"} {
		if strings.HasPrefix(lower, prefix) {
			id, lower = id[len(prefix):], lower[len(prefix):]
			break
		}
	}
	base := strings.TrimSuffix(baseURL, "/")
	host := strings.ToLower(base)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if strings.HasPrefix(lower, host+"/") {
		id = id[len(host)+1:]
	} else if strings.HasPrefix(lower, "doi.org/") {
		id = id[len("doi.org/"):]
	}
	id = path.Clean("/" + id)[1:]
	if id == "" || id == "." {
		return ""
	}
	return base + "/" + id
}

func (s *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header(), s.cfg.corsOrigin)
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Accept, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}
