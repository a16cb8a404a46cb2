package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tckz/go-visit-counter/internal/counter"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-Id"

type Visitor interface {
	Visit(ctx context.Context) (*counter.Counter, error)
	ID() string
}

type options struct {
	allowOrigin    string
	logger         *zap.SugaredLogger
	metricsHandler http.Handler
}

type Option func(o *options)

func WithAllowOrigin(origin string) Option {
	return Option(func(o *options) {
		o.allowOrigin = origin
	})
}

func WithLogger(l *zap.SugaredLogger) Option {
	return Option(func(o *options) {
		o.logger = l
	})
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return Option(func(o *options) {
		o.metricsHandler = h
	})
}

type handler struct {
	visitor Visitor
	opts    options
}

// New builds the router serving the counter endpoint.
func New(v Visitor, opts ...Option) *gin.Engine {
	o := options{
		allowOrigin: "*",
		logger:      zap.NewNop().Sugar(),
	}
	for _, e := range opts {
		e(&o)
	}
	h := &handler{visitor: v, opts: o}

	r := gin.New()
	r.Use(requestID(), accessLog(o.logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if o.metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(o.metricsHandler))
	}

	g := r.Group("/counter", h.cors)
	g.GET("", h.getCounter)
	g.OPTIONS("", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return r
}

func (h *handler) cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", h.opts.allowOrigin)
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Next()
}

func (h *handler) getCounter(c *gin.Context) {
	cnt, err := h.visitor.Visit(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, cnt)
		return
	}

	logger := h.opts.logger.With(
		zap.String("requestID", c.GetString(headerRequestID)),
		zap.String("counterID", h.visitor.ID()),
	)
	if errors.Is(err, counter.ErrCounterMissing) {
		logger.Errorf("Visit: counter document is missing, seed it first: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("counter %q not found", h.visitor.ID())})
		return
	}

	logger.Errorf("Visit: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update counter"})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func accessLog(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		c.Next()
		logger.With(
			zap.String("requestID", c.GetString(headerRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(now)),
		).Infof("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}
