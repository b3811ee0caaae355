package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pondflow/internal/handler"
	"pondflow/pkg/rbac"
)

// Pinger is a readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handlers struct {
	Auth          *handler.AuthHandler
	Consultations *handler.ConsultationHandler
	Designs       *handler.DesignHandler
	Requests      *handler.DesignRequestHandler
	Projects      *handler.ProjectHandler
	Payments      *handler.PaymentHandler
	Admin         *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires every route. readiness maps a dependency name to its
// check; Admin may be nil when the outbox is not running.
func NewRouter(h Handlers, resolver Resolver, readiness map[string]Pinger, log *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), RequestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyHandler(readiness))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", h.Auth.Register)
	r.POST("/login", h.Auth.Login)
	r.GET("/payments/callback", h.Payments.Callback)

	// Protected
	api := r.Group("/")
	api.Use(AuthMiddleware(resolver))
	{
		api.POST("/consultations", RequirePermission(rbac.PermissionConsultationCreate), h.Consultations.Create)
		api.GET("/consultations/:id", h.Consultations.Get)
		api.PATCH("/consultations/:id", RequirePermission(rbac.PermissionConsultationEdit), h.Consultations.UpdateFields)
		api.PATCH("/consultations/:id/status", RequirePermission(rbac.PermissionConsultationTransition), h.Consultations.UpdateStatus)
		api.POST("/consultations/:id/cancel", RequirePermission(rbac.PermissionConsultationEdit), h.Consultations.Cancel)
		api.POST("/consultations/:id/design-request", RequirePermission(rbac.PermissionDesignRequestCreate), h.Requests.Create)

		api.POST("/designs", RequirePermission(rbac.PermissionDesignCreate), h.Designs.Create)
		api.GET("/designs/:id", h.Designs.Get)
		api.POST("/designs/:id/review", RequirePermission(rbac.PermissionDesignReview), h.Designs.Review)
		api.POST("/designs/:id/resubmit", RequirePermission(rbac.PermissionDesignCreate), h.Designs.Resubmit)
		api.DELETE("/designs/:id", RequirePermission(rbac.PermissionDesignArchive), h.Designs.Archive)

		api.GET("/design-requests/:id", h.Requests.Get)
		api.POST("/design-requests/:id/designer", RequirePermission(rbac.PermissionDesignRequestAssign), h.Requests.AssignDesigner)
		api.POST("/design-requests/:id/design", RequirePermission(rbac.PermissionDesignRequestProduce), h.Requests.LinkDesign)
		api.POST("/design-requests/:id/submit", RequirePermission(rbac.PermissionDesignRequestProduce), h.Requests.Submit)
		api.POST("/design-requests/:id/review", RequirePermission(rbac.PermissionDesignRequestReview), h.Requests.ConsultantReview)
		api.POST("/design-requests/:id/approval", RequirePermission(rbac.PermissionDesignRequestApprove), h.Requests.CustomerApproval)
		api.POST("/design-requests/:id/cancel", RequirePermission(rbac.PermissionDesignRequestCancel), h.Requests.Cancel)

		api.POST("/projects", RequirePermission(rbac.PermissionProjectCreate), h.Projects.Create)
		api.GET("/projects/:id", h.Projects.Get)
		api.PATCH("/projects/:id/status", RequirePermission(rbac.PermissionProjectTransition), h.Projects.UpdateStatus)
		api.POST("/projects/:id/technically-complete", RequirePermission(rbac.PermissionProjectTechComplete), h.Projects.MarkTechnicallyCompleted)
		api.POST("/projects/:id/complete", RequirePermission(rbac.PermissionProjectComplete), h.Projects.Complete)
		api.POST("/projects/:id/cancel", RequirePermission(rbac.PermissionProjectCancel), h.Projects.Cancel)
		api.POST("/projects/:id/constructor", RequirePermission(rbac.PermissionProjectAssign), h.Projects.AssignConstructor)
		api.PUT("/projects/:id/pricing", RequirePermission(rbac.PermissionProjectPricing), h.Projects.UpdatePricing)
		api.GET("/projects/:id/tasks", h.Projects.ListTasks)
		api.POST("/projects/:id/progress", RequirePermission(rbac.PermissionProjectProgress), h.Projects.RecomputeProgress)
		api.PATCH("/tasks/:id", RequirePermission(rbac.PermissionTaskUpdate), h.Projects.UpdateTask)

		api.POST("/projects/:id/payments", RequirePermission(rbac.PermissionPaymentRequest), h.Payments.RequestURL)
		api.POST("/projects/:id/payments/manual", RequirePermission(rbac.PermissionPaymentRecord), h.Payments.RecordManual)

		if h.Admin != nil {
			admin := api.Group("/admin", RequirePermission(rbac.PermissionOutboxReplay))
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func readyHandler(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func (r *Router) Run(addr string) error {
	return r.Engine.Run(addr)
}
