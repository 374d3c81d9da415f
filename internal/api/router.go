package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/watchtower/internal/api/handlers"
	"github.com/your-org/watchtower/internal/api/ws"
	"github.com/your-org/watchtower/internal/auth"
	"github.com/your-org/watchtower/internal/queue"
	"github.com/your-org/watchtower/internal/storage"
)

type RouterConfig struct {
	APIKey        string
	DB            *storage.PostgresStore
	MinIO         *storage.MinIOStore
	Producer      *queue.Producer
	Jobs          *queue.JobTracker
	Hub           *ws.Hub
	RefCacheTTL   time.Duration
	MaxImageBytes int64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	handlers.RegisterFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket live feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Detection intake and jobs
	intakeH := handlers.NewIntakeHandler(cfg.DB, cfg.MinIO, cfg.Producer, cfg.Jobs, cfg.RefCacheTTL, cfg.MaxImageBytes)
	v1.POST("/detections", intakeH.SubmitDetection)
	v1.POST("/events", intakeH.SubmitEvent)

	jobH := handlers.NewJobHandler(cfg.Jobs)
	v1.GET("/detections/jobs/:job_id", jobH.Status)

	// Detection projections
	detH := handlers.NewDetectionHandler(cfg.DB)
	v1.GET("/detections", detH.List)
	v1.GET("/summary/branches", detH.Summary)

	// Event log projections
	eventH := handlers.NewEventHandler(cfg.DB, cfg.MinIO)
	v1.GET("/events", eventH.List)
	v1.GET("/events/:id/image", eventH.Image)

	// Persons
	personH := handlers.NewPersonHandler(cfg.DB)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:re_id", personH.Get)
	v1.PATCH("/persons/:re_id", personH.Update)

	// Branches
	branchH := handlers.NewBranchHandler(cfg.DB)
	v1.POST("/branches", branchH.Create)
	v1.GET("/branches", branchH.List)
	v1.GET("/branches/:id", branchH.Get)
	v1.PATCH("/branches/:id", branchH.Update)
	v1.DELETE("/branches/:id", branchH.Delete)

	// Devices
	deviceH := handlers.NewDeviceHandler(cfg.DB)
	v1.POST("/devices", deviceH.Create)
	v1.GET("/devices", deviceH.List)
	v1.GET("/devices/:id", deviceH.Get)
	v1.PATCH("/devices/:id", deviceH.Update)
	v1.DELETE("/devices/:id", deviceH.Delete)

	return r
}
