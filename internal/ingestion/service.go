package ingestion

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weir-lab/project-weir/internal/engine"
)

// Service is the HTTP event-source adapter: it decodes inbound JSON into
// event records, derives the partition key, stamps the receive timestamp,
// and hands the record to the engine. Ingest is fire-and-forget from the
// client's perspective: the handler answers 202 once the record is
// accepted.
type Service struct {
	engine           *engine.Engine
	partitionField   string
	maxBodySizeBytes int
	now              func() time.Time
}

func NewService(eng *engine.Engine, partitionField string, maxBodySizeMB int) *Service {
	if eng == nil {
		panic("ingestion: engine must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		engine:           eng,
		partitionField:   partitionField,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		now:              time.Now,
	}
}

// RegisterRoutes registers the ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
}
