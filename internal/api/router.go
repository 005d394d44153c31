package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/everkeep/internal/auth"
	"github.com/charlesng35/everkeep/internal/handlers"
	"github.com/charlesng35/everkeep/internal/middleware"
	"github.com/charlesng35/everkeep/internal/services"
)

// Dependencies bundles the constructed services the router wires into handlers.
type Dependencies struct {
	DB           *gorm.DB
	JWT          *iauth.JWTService
	Sessions     *iauth.SessionService
	Credentials  *iauth.CredentialsService
	Users        *services.UserService
	Invitations  *services.InvitationService
	Continuation *services.ContinuationSigner
	Executors    *services.ExecutorService
	Verification *services.VerificationService
	Estate       *services.EstateService
	Gate         *services.AccessGate
	Audit        *services.AuditService

	MaxUploadBytes int64
	MetricsEnabled bool
}

// NewRouter builds the Gin engine, wires middleware, and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	for name, missing := range map[string]bool{
		"database":     deps.DB == nil,
		"jwt":          deps.JWT == nil,
		"sessions":     deps.Sessions == nil,
		"credentials":  deps.Credentials == nil,
		"users":        deps.Users == nil,
		"invitations":  deps.Invitations == nil,
		"continuation": deps.Continuation == nil,
		"executors":    deps.Executors == nil,
		"verification": deps.Verification == nil,
		"estate":       deps.Estate == nil,
		"gate":         deps.Gate == nil,
		"audit":        deps.Audit == nil,
	} {
		if missing {
			return nil, fmt.Errorf("router: %s dependency must be provided", name)
		}
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	r.GET("/health", handlers.Health(deps.DB))
	if deps.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Credentials, deps.Sessions, deps.Users, deps.Invitations, deps.Continuation)
	invitationHandler := handlers.NewInvitationHandler(deps.Invitations, deps.Users, deps.Sessions, deps.Continuation)
	executorHandler := handlers.NewExecutorHandler(deps.Executors, deps.Invitations)
	executorshipHandler := handlers.NewExecutorshipHandler(deps.Users, deps.Executors, deps.Verification, deps.Estate, deps.Gate, deps.MaxUploadBytes)
	estateHandler := handlers.NewEstateHandler(deps.Estate)
	auditHandler := handlers.NewAuditHandler(deps.Audit)

	api := r.Group("/api")
	authenticated := r.Group("/api")
	authenticated.Use(middleware.Auth(deps.JWT))

	registerAuthRoutes(api, authenticated, authHandler)
	registerInvitationRoutes(api, authenticated, invitationHandler)
	registerExecutorRoutes(authenticated, executorHandler, executorshipHandler)
	registerEstateRoutes(authenticated, estateHandler)

	authenticated.GET("/audit", auditHandler.List)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
