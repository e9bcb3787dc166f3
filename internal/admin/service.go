package admin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weir-lab/project-weir/internal/core/aggregation"
	httperr "github.com/weir-lab/project-weir/internal/core/errors"
	"github.com/weir-lab/project-weir/internal/engine"
)

// Service is the administrative surface: definition registration and
// removal, the metrics snapshot, and manual window flushing. Unlike the
// streaming path, administrative callers receive explicit typed errors.
type Service struct {
	engine *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	if eng == nil {
		panic("admin: engine must not be nil")
	}
	return &Service{engine: eng}
}

// RegisterRoutes registers the administrative routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/definitions", s.RegisterDefinitionHandler)
	r.GET("/v1/definitions", s.ListDefinitionsHandler)
	r.GET("/v1/definitions/:name", s.GetDefinitionHandler)
	r.DELETE("/v1/definitions/:name", s.UnregisterDefinitionHandler)
	r.GET("/v1/stats", s.StatsHandler)
	r.POST("/v1/force-close", s.ForceCloseHandler)
}

// definitionDTO is the wire shape of an aggregation definition. Durations
// are strings ("90s", "5m", "1d").
type definitionDTO struct {
	Name  string `json:"name"`
	Match struct {
		EventTypes    []string `json:"event_types,omitempty"`
		RequireFields []string `json:"require_fields,omitempty"`
	} `json:"match"`
	Window struct {
		Kind          string `json:"kind"`
		Duration      string `json:"duration,omitempty"`
		SlideInterval string `json:"slide_interval,omitempty"`
		SessionGap    string `json:"session_gap,omitempty"`
		MaxEvents     int    `json:"max_events,omitempty"`
	} `json:"window"`
	Metrics []struct {
		Field     string   `json:"field"`
		Operation string   `json:"operation"`
		GroupBy   []string `json:"group_by,omitempty"`
	} `json:"metrics"`
}

func (dto definitionDTO) toDefinition() (*aggregation.Definition, error) {
	def := &aggregation.Definition{
		Name: dto.Name,
		Match: aggregation.MatchSpec{
			EventTypes:    dto.Match.EventTypes,
			RequireFields: dto.Match.RequireFields,
		},
		Window: aggregation.WindowSpec{
			Kind:      dto.Window.Kind,
			MaxEvents: dto.Window.MaxEvents,
		},
	}

	var err error
	if dto.Window.Duration != "" {
		if def.Window.Duration, err = aggregation.ParseWindowDuration(dto.Window.Duration); err != nil {
			return nil, fmt.Errorf("window duration: %w", err)
		}
	}
	if dto.Window.SlideInterval != "" {
		if def.Window.SlideInterval, err = aggregation.ParseWindowDuration(dto.Window.SlideInterval); err != nil {
			return nil, fmt.Errorf("window slide_interval: %w", err)
		}
	}
	if dto.Window.SessionGap != "" {
		if def.Window.SessionGap, err = aggregation.ParseWindowDuration(dto.Window.SessionGap); err != nil {
			return nil, fmt.Errorf("window session_gap: %w", err)
		}
	}

	for _, m := range dto.Metrics {
		def.Metrics = append(def.Metrics, aggregation.MetricSpec{
			SourceField: m.Field,
			Operation:   m.Operation,
			GroupBy:     m.GroupBy,
		})
	}

	return def, nil
}

func fromDefinition(def *aggregation.Definition) definitionDTO {
	var dto definitionDTO
	dto.Name = def.Name
	dto.Match.EventTypes = def.Match.EventTypes
	dto.Match.RequireFields = def.Match.RequireFields
	dto.Window.Kind = def.Window.Kind
	if def.Window.Duration > 0 {
		dto.Window.Duration = def.Window.Duration.String()
	}
	if def.Window.SlideInterval > 0 {
		dto.Window.SlideInterval = def.Window.SlideInterval.String()
	}
	if def.Window.SessionGap > 0 {
		dto.Window.SessionGap = def.Window.SessionGap.String()
	}
	dto.Window.MaxEvents = def.Window.MaxEvents
	for _, m := range def.Metrics {
		dto.Metrics = append(dto.Metrics, struct {
			Field     string   `json:"field"`
			Operation string   `json:"operation"`
			GroupBy   []string `json:"group_by,omitempty"`
		}{Field: m.SourceField, Operation: m.Operation, GroupBy: m.GroupBy})
	}
	return dto
}

// RegisterDefinitionHandler handles POST /v1/definitions.
func (s *Service) RegisterDefinitionHandler(c *gin.Context) {
	var dto definitionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid JSON body",
		})
		return
	}

	def, err := dto.toDefinition()
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidDefinition,
			Message:   err.Error(),
		})
		return
	}

	if err := s.engine.Register(def); err != nil {
		var dup *aggregation.DuplicateDefinitionError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, httperr.ErrorResponse{
				ErrorType: httperr.HttpDuplicateError,
				Message:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidDefinition,
			Message:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "registered", "name": def.Name})
}

// ListDefinitionsHandler handles GET /v1/definitions.
func (s *Service) ListDefinitionsHandler(c *gin.Context) {
	defs := s.engine.Definitions()
	out := make([]definitionDTO, 0, len(defs))
	for _, def := range defs {
		out = append(out, fromDefinition(def))
	}
	c.JSON(http.StatusOK, gin.H{"definitions": out})
}

// GetDefinitionHandler handles GET /v1/definitions/:name.
func (s *Service) GetDefinitionHandler(c *gin.Context) {
	def, err := s.engine.Definition(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, fromDefinition(def))
}

// UnregisterDefinitionHandler handles DELETE /v1/definitions/:name.
// Open buffers under the name are flushed before the definition goes away.
func (s *Service) UnregisterDefinitionHandler(c *gin.Context) {
	name := c.Param("name")
	if err := s.engine.Unregister(name); err != nil {
		var unknown *aggregation.UnknownDefinitionError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unregistered", "name": name})
}

// StatsHandler handles GET /v1/stats.
func (s *Service) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

type forceCloseRequest struct {
	Aggregation  string `json:"aggregation"`
	PartitionKey string `json:"partition_key"`
}

// ForceCloseHandler handles POST /v1/force-close: a manual window flush,
// used for testing and administrative draining.
func (s *Service) ForceCloseHandler(c *gin.Context) {
	var req forceCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Aggregation == "" || req.PartitionKey == "" {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "aggregation and partition_key are required",
		})
		return
	}

	if err := s.engine.ForceClose(req.Aggregation, req.PartitionKey); err != nil {
		var unknown *aggregation.UnknownDefinitionError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}
