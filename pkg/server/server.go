// Package server exposes ValidateSubmission over HTTP with gin.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	formvalidator "github.com/goliatone/go-formio-validator"
	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/processing"
)

// Error codes of APIError responses.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeValidation     = "VALIDATION_FAILED"
	CodeRuntime        = "VALIDATION_ERROR"
	CodeFormNotFound   = "FORM_NOT_FOUND"
	CodeFormURLDenied  = "FORM_URL_DENIED"
)

// Validator is the service behind the handlers.
type Validator interface {
	ValidateSubmission(ctx context.Context, ref formsource.Reference, data map[string]any, opts formvalidator.ValidationOptions) formvalidator.Result
}

// Resolver maps the :name route parameter to a form reference. ok is false
// for unknown forms.
type Resolver func(name string) (ref formsource.Reference, ok bool)

// APIError is the body of non-validation error responses.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Options mirrors formvalidator.ValidationOptions on the wire. vmTimeout is
// in milliseconds.
type Options struct {
	Tokens         map[string]string `json:"tokens,omitempty"`
	SubmissionMeta map[string]any    `json:"submissionMeta,omitempty"`
	VMTimeout      int64             `json:"vmTimeout,omitempty"`
	Config         map[string]any    `json:"config,omitempty"`
	ProjectConfig  map[string]any    `json:"projectConfig,omitempty"`
}

// ValidateRequest is the body of POST /api/v1/validate. Exactly one of Form
// and FormURL identifies the form.
type ValidateRequest struct {
	Form    json.RawMessage `json:"form,omitempty"`
	FormURL string          `json:"formUrl,omitempty"`
	Data    map[string]any  `json:"data"`
	Options Options         `json:"options"`
}

// SubmissionRequest is the body of POST /api/v1/forms/:name/validate.
type SubmissionRequest struct {
	Data    map[string]any `json:"data"`
	Options Options        `json:"options"`
}

// Server owns the gin engine.
type Server struct {
	engine    *gin.Engine
	validator Validator
	resolver  Resolver
	logger    logging.Logger
	metrics   http.Handler
	metricsAt string
	formURLs  []*url.URL
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithResolver enables the named form routes.
func WithResolver(resolver Resolver) Option {
	return func(s *Server) {
		s.resolver = resolver
	}
}

// WithMetricsPath changes where WithMetricsHandler mounts. Defaults to
// /metrics.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		s.metricsAt = path
	}
}

// WithMetricsHandler mounts h at the metrics path, /metrics unless
// WithMetricsPath changes it.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithFormURLPrefixes lets POST /api/v1/validate fetch forms by formUrl
// when the URL falls under one of prefixes. Without it every formUrl is
// refused. Prefixes that do not parse as absolute http(s) URLs are ignored.
func WithFormURLPrefixes(prefixes ...string) Option {
	return func(s *Server) {
		for _, prefix := range prefixes {
			parsed, err := url.Parse(prefix)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
				continue
			}
			s.formURLs = append(s.formURLs, parsed)
		}
	}
}

// New builds the router.
func New(v Validator, options ...Option) *Server {
	s := &Server{validator: v, metricsAt: "/metrics"}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	s.logger = s.logger.Module("server")

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		engine.GET(s.metricsAt, gin.WrapH(s.metrics))
	}

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/validate", s.validate)
		if s.resolver != nil {
			v1.POST("/forms/:name/validate", s.validateNamed)
		}
	}
	s.engine = engine
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	var ref formsource.Reference
	switch {
	case len(req.Form) > 0 && req.FormURL == "":
		ref = formsource.InlineJSON("request", req.Form)
	case req.FormURL != "" && len(req.Form) == 0:
		parsed, err := formsource.FromURL(req.FormURL)
		if err != nil {
			RespondWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid form url", gin.H{"reason": err.Error()})
			return
		}
		if !s.formURLAllowed(req.FormURL) {
			s.logger.Emit(logging.LevelWarn, "Refused form url", map[string]any{"url": req.FormURL})
			RespondWithError(c, http.StatusForbidden, CodeFormURLDenied, "Form url is not allowed", nil)
			return
		}
		ref = parsed
	default:
		RespondWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Provide exactly one of form or formUrl", nil)
		return
	}
	s.respond(c, ref, req.Data, req.Options)
}

// formURLAllowed matches raw against the configured prefixes by scheme,
// host and whole path segments. URLs carrying credentials never match.
func (s *Server) formURLAllowed(raw string) bool {
	target, err := url.Parse(raw)
	if err != nil || target.User != nil {
		return false
	}
	for _, prefix := range s.formURLs {
		if target.Scheme != prefix.Scheme || !strings.EqualFold(target.Host, prefix.Host) {
			continue
		}
		base := strings.TrimSuffix(prefix.Path, "/")
		if base == "" || target.Path == base || strings.HasPrefix(target.Path, base+"/") {
			return true
		}
	}
	return false
}

func (s *Server) validateNamed(c *gin.Context) {
	name := c.Param("name")
	ref, ok := s.resolver(name)
	if !ok {
		RespondWithError(c, http.StatusNotFound, CodeFormNotFound, "Form not found", gin.H{"name": name})
		return
	}
	var req SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}
	s.respond(c, ref, req.Data, req.Options)
}

func (s *Server) respond(c *gin.Context, ref formsource.Reference, data map[string]any, wire Options) {
	opts := formvalidator.ValidationOptions{
		Tokens:         wire.Tokens,
		SubmissionMeta: wire.SubmissionMeta,
		VMTimeout:      time.Duration(wire.VMTimeout) * time.Millisecond,
		Config:         wire.Config,
		ProjectConfig:  wire.ProjectConfig,
	}
	if token := strings.TrimSpace(c.GetHeader(processing.TokenHeader)); token != "" {
		tokens := make(map[string]string, len(opts.Tokens)+1)
		for key, value := range opts.Tokens {
			tokens[key] = value
		}
		tokens[processing.TokenHeader] = token
		opts.Tokens = tokens
	}

	result := s.validator.ValidateSubmission(c.Request.Context(), ref, data, opts)
	c.JSON(statusOf(result), result)
}

func statusOf(r formvalidator.Result) int {
	switch {
	case r.Success:
		return http.StatusOK
	case r.Error != nil:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// RespondWithError sends a standardized JSON error response.
func RespondWithError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message, Details: details})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Emit(logging.LevelInfo, "Request handled", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
