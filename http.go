package sqlgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request correlation ID in both directions.
const RequestIDHeader = "X-Request-ID"

// DefaultHealthCheckPath is used when RouterConfig.HealthCheckPath is empty.
const DefaultHealthCheckPath = "/health"

// maxBodyBytes bounds a /sql request body. Binary payloads travel as
// base64 params, so this is well above query.max_sql_length.
const maxBodyBytes = 32 << 20

const requestIDKey = "request_id"

type requestIDCtxKey struct{}

// RouterConfig selects the optional routes mounted by NewRouter.
type RouterConfig struct {
	HealthCheckPath string
	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
	// MCPHandler is mounted at MCPPath when non-nil.
	MCPHandler http.Handler
	MCPPath    string
}

// sqlRequest is the POST /sql body. Numbers are kept as json.Number so
// integers reach the driver as int64.
type sqlRequest struct {
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

// NewRouter builds the gin engine serving POST /sql and GET /health for g.
func NewRouter(g *Gateway, config RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(g.logger), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		g.logger.Error().
			Str("request_id", c.GetString(requestIDKey)).
			Str("panic", fmt.Sprint(recovered)).
			Msg("handler panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorOutput{Detail: "Internal Server Error"})
	}))

	healthPath := config.HealthCheckPath
	if healthPath == "" {
		healthPath = DefaultHealthCheckPath
	}
	// Process liveness only, never touches the database.
	r.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/sql", g.handleSQL)

	if config.MetricsPath != "" {
		r.GET(config.MetricsPath, gin.WrapH(g.MetricsHandler()))
	}
	if config.MCPHandler != nil {
		path := config.MCPPath
		if path == "" {
			path = "/mcp"
		}
		r.Any(path, gin.WrapH(config.MCPHandler))
	}
	return r
}

func (g *Gateway) handleSQL(c *gin.Context) {
	ctx := context.WithValue(c.Request.Context(), requestIDCtxKey{}, c.GetString(requestIDKey))
	token := c.GetHeader(g.AuthHeader())

	// The token is checked before the body is read.
	if err := g.guard.Check(token); err != nil {
		writeError(c, g.fail(ctx, "", "", time.Now(), err))
		return
	}

	var req sqlRequest
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		detail := "Invalid request body: " + err.Error()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			detail = fmt.Sprintf("Request body too large: limit is %d bytes", tooLarge.Limit)
		}
		writeError(c, g.fail(ctx, "", "", time.Now(), badRequest(detail, err)))
		return
	}

	output, err := g.Execute(ctx, ExecuteInput{Query: req.Query, Params: req.Params, Token: token})
	if err != nil {
		writeError(c, classify(err))
		return
	}
	c.JSON(http.StatusOK, output)
}

func writeError(c *gin.Context, err *Error) {
	c.AbortWithStatusJSON(err.StatusCode(), ErrorOutput{Detail: err.Detail, Hint: err.Hint})
}

// requestID propagates X-Request-ID, generating one when absent.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one log line per HTTP request.
func accessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		logEvent := logger.Info()
		if status >= http.StatusInternalServerError {
			logEvent = logger.Error()
		}
		logEvent.
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("response_bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

// requestLogger returns the gateway logger tagged with the request ID
// carried by ctx, if any.
func (g *Gateway) requestLogger(ctx context.Context) zerolog.Logger {
	if id, ok := ctx.Value(requestIDCtxKey{}).(string); ok && id != "" {
		return g.logger.With().Str("request_id", id).Logger()
	}
	return g.logger
}
