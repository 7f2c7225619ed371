package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessons-api/internal/middleware"
	"github.com/noah-isme/lessons-api/internal/models"
)

// Routes groups the handlers mounted by RegisterRoutes.
type Routes struct {
	APIPrefix      string
	Tokens         middleware.TokenValidator
	Auth           *AuthHandler
	Lessons        *LessonHandler
	Metrics        *MetricsHandler
	MetricsEnabled bool
}

// RegisterRoutes mounts every endpoint on r. Lesson routes answer with and
// without a trailing slash so clients of either style work without redirects.
func RegisterRoutes(r *gin.Engine, routes Routes) {
	r.RedirectTrailingSlash = false

	if routes.Metrics != nil {
		r.GET("/health", routes.Metrics.Health)
		r.GET("/ready", routes.Metrics.Ready)
		if routes.MetricsEnabled {
			r.GET("/metrics", routes.Metrics.Prometheus)
		}
	}

	api := r.Group(strings.TrimSuffix(routes.APIPrefix, "/"))

	if routes.Auth != nil {
		api.POST("/auth/login", routes.Auth.Login)
		api.GET("/auth/me", middleware.JWT(routes.Tokens), routes.Auth.Me)
	}

	if routes.Lessons == nil {
		return
	}
	optional := middleware.OptionalJWT(routes.Tokens)
	required := middleware.JWT(routes.Tokens)
	creators := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)

	both(api, "GET", "/lessons", optional, routes.Lessons.List)
	both(api, "POST", "/lessons", required, creators, routes.Lessons.Create)
	both(api, "GET", "/lessons/export", optional, routes.Lessons.Export)
	both(api, "GET", "/lessons/:id", routes.Lessons.Get)
	both(api, "POST", "/lessons/:id/start", routes.Lessons.Start)
	both(api, "POST", "/lessons/:id/complete", routes.Lessons.Complete)
	both(api, "POST", "/lessons/:id/cancel", routes.Lessons.Cancel)
}

func both(g *gin.RouterGroup, method, path string, handlers ...gin.HandlerFunc) {
	g.Handle(method, path, handlers...)
	g.Handle(method, path+"/", handlers...)
}
