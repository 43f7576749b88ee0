package server

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/charts"
	"github.com/matthieukhl/segmentor/internal/dashboard"
	"github.com/matthieukhl/segmentor/internal/database"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/matthieukhl/segmentor/internal/report"
	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templates embed.FS

type Server struct {
	router         *gin.Engine
	source         Source
	db             *database.DB
	churnThreshold int
}

// NewServer creates a new server instance. db is optional and only used by
// the health check.
func NewServer(source Source, db *database.DB, churnThreshold int) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.SetHTMLTemplate(template.Must(template.ParseFS(templates, "templates/*.html")))

	server := &Server{
		router:         router,
		source:         source,
		db:             db,
		churnThreshold: churnThreshold,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.page)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthCheck)
		api.GET("/segments", s.segments)
		api.GET("/dashboard", s.dashboard)
		api.GET("/summary", s.summary)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("Request served")
	}
}

// fail maps pipeline errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	var se *apperr.SchemaError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &se):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		log.WithError(err).Error("Dashboard request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) load(c *gin.Context) (*report.Table, bool) {
	t, err := s.source.Load(c.Request.Context())
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return t, true
}

// healthCheck endpoint for monitoring
func (s *Server) healthCheck(c *gin.Context) {
	// Check database health
	if s.db != nil {
		if err := s.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"error":  "database connection failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "segmentor",
		"version": "0.1.0",
	})
}

func (s *Server) segments(c *gin.Context) {
	t, ok := s.load(c)
	if !ok {
		return
	}
	rows, selected, err := dashboard.Filter(t.Rows, c.Query("cluster"))
	if err != nil {
		fail(c, err)
		return
	}
	if rows == nil {
		rows = []models.SegmentedCustomer{}
	}
	c.JSON(http.StatusOK, gin.H{"cluster": selected, "count": len(rows), "rows": rows})
}

func (s *Server) dashboard(c *gin.Context) {
	t, ok := s.load(c)
	if !ok {
		return
	}
	v, err := dashboard.Build(t.Rows, c.Query("cluster"), s.churnThreshold)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) summary(c *gin.Context) {
	t, ok := s.load(c)
	if !ok {
		return
	}
	sum := report.Summarize(t, s.churnThreshold)
	c.JSON(http.StatusOK, gin.H{"clusters": sum.Clusters, "segments": sum.Segments})
}

func chartJS(cfg charts.ChartConfig) (template.JS, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return template.JS(raw), nil
}

func (s *Server) page(c *gin.Context) {
	t, ok := s.load(c)
	if !ok {
		return
	}
	v, err := dashboard.Build(t.Rows, c.Query("cluster"), s.churnThreshold)
	if err != nil {
		fail(c, err)
		return
	}

	data := gin.H{"View": v}
	for name, cfg := range map[string]charts.ChartConfig{
		"Spend":   v.SpendChart(),
		"Churn":   v.ChurnChart(),
		"Scatter": v.ScatterChart(),
	} {
		js, err := chartJS(cfg)
		if err != nil {
			fail(c, err)
			return
		}
		data[name] = js
	}
	c.HTML(http.StatusOK, "dashboard.html", data)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	log.WithField("addr", addr).Info("Dashboard listening")
	return s.router.Run(addr)
}
