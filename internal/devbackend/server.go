package devbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

// Server answers the record service contract over a Store.
type Server struct {
	store   *Store
	schemas map[string]*schema.Snapshot
	token   string
	logger  *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option { return func(s *Server) { s.token = token } }

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer serves the fixture's schemas from store.
func NewServer(store *Store, f *Fixture, opts ...Option) *Server {
	s := &Server{store: store, schemas: make(map[string]*schema.Snapshot), logger: zap.NewNop()}
	for _, snap := range f.Schemas {
		s.schemas[snap.Code()] = snap
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the gin engine with the four service routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(s.logger), cors())
	if s.token != "" {
		r.Use(bearer(s.token))
	}
	r.POST("/telescope", s.telescope)
	r.POST("/read", s.read)
	r.POST("/update", s.update)
	r.POST("/create", s.create)
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	s.logger.Info("starting dev backend", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("dev backend request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func bearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// bind decodes the body keeping numbers as json.Number.
func bind(c *gin.Context, v any) bool {
	body, err := io.ReadAll(c.Request.Body)
	if err == nil {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		err = dec.Decode(v)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) entity(c *gin.Context, code, entity string) (*schema.Snapshot, *schema.EntityDescriptor, bool) {
	snap, ok := s.schemas[code]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown schema '%s'", code)})
		return nil, nil, false
	}
	if entity == "" {
		return snap, nil, true
	}
	desc, err := snap.Entity(entity)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return snap, desc, true
}

func (s *Server) telescope(c *gin.Context) {
	var req struct {
		Schema string `json:"schema"`
		Entity string `json:"entity"`
	}
	if !bind(c, &req) {
		return
	}
	snap, desc, ok := s.entity(c, req.Schema, req.Entity)
	if !ok {
		return
	}
	var (
		body []byte
		err  error
	)
	if desc != nil {
		body, err = desc.MarshalJSON()
	} else {
		body, err = snap.MarshalJSON()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) read(c *gin.Context) {
	var req struct {
		Schema string              `json:"schema"`
		Entity string              `json:"entity"`
		Read   railgun.ReadRequest `json:"read"`
	}
	if !bind(c, &req) {
		return
	}
	_, desc, ok := s.entity(c, req.Schema, req.Entity)
	if !ok || desc == nil {
		if ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity is required"})
		}
		return
	}
	if req.Read.Filters != nil {
		if err := checkFilterFields(desc, *req.Read.Filters); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	rows, err := s.store.Query(c.Request.Context(), req.Schema, req.Entity, req.Read.Filters, req.Read.Pagination, req.Read.Page)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := make([]schema.Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, project(row, req.Read.ReturnFields))
	}
	c.JSON(http.StatusOK, out)
}

// project keeps uid and the requested fields. No fields means all of them.
func project(row schema.Row, fields []string) schema.Row {
	if len(fields) == 0 {
		return row
	}
	out := schema.Row{schema.IdentityField: row[schema.IdentityField]}
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

func checkFilterFields(desc *schema.EntityDescriptor, f railgun.Filter) error {
	for _, cond := range f.Conditions {
		if cond.Field == schema.IdentityField {
			continue
		}
		if _, err := desc.Field(cond.Field); err != nil {
			return err
		}
	}
	for _, g := range f.Groups {
		if err := checkFilterFields(desc, g); err != nil {
			return err
		}
	}
	return nil
}

// checkData rejects unknown fields and LIST values outside the options.
func checkData(desc *schema.EntityDescriptor, data map[string]any) error {
	for code, v := range data {
		if code == schema.IdentityField {
			continue
		}
		fd, err := desc.Field(code)
		if err != nil {
			return err
		}
		if fd.Type != schema.FieldList || schema.IsEmpty(v) || len(fd.Params.Options) == 0 {
			continue
		}
		if s := schema.Text(v); !slices.Contains(fd.Params.Options, s) {
			return fmt.Errorf("value '%s' is not an option of %s.%s", s, desc.Type, code)
		}
	}
	return nil
}

func (s *Server) update(c *gin.Context) {
	var req railgun.UpdateRequest
	if !bind(c, &req) {
		return
	}
	_, desc, ok := s.entity(c, req.Schema, req.Entity)
	if !ok {
		return
	}
	if desc == nil || req.EntityID.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity and entity_id are required"})
		return
	}
	if err := checkData(desc, req.Data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row, err := s.store.Update(c.Request.Context(), req.Schema, req.Entity, req.EntityID.String(), req.Data)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, row)
	}
}

func (s *Server) create(c *gin.Context) {
	var req railgun.CreateRequest
	if !bind(c, &req) {
		return
	}
	_, desc, ok := s.entity(c, req.Schema, req.Entity)
	if !ok {
		return
	}
	if desc == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity is required"})
		return
	}
	if err := checkData(desc, req.Data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row, err := s.store.Insert(c.Request.Context(), req.Schema, req.Entity, schema.Row(req.Data))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, row)
}
