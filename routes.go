package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/controllers"
	"github.com/princinho/todoapi/middleware"
)

func setupRouter(app *application) *gin.Engine {
	r := gin.New()

	allowedOrigins := map[string]bool{}
	for _, origin := range app.cfg.AllowedOrigins {
		allowedOrigins[origin] = true
	}
	app.log.Debug("cors.origins", "allowed", app.cfg.AllowedOrigins)

	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestLogger(app.log, app.metrics))
	r.Use(gin.Recovery())

	r.GET("/", controllers.Root(app.cfg))
	r.GET("/health", controllers.Health(app.cfg, app.db))
	r.GET("/ping", controllers.Ping())
	r.GET("/metrics", gin.WrapH(app.metrics.Handler()))

	requireAuth := middleware.AuthMiddleware(app.sessions)

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", controllers.Register(app.sessions))
		auth.POST("/login", controllers.Login(app.sessions))
		auth.POST("/refresh", controllers.Refresh(app.sessions))
		auth.POST("/logout", requireAuth, controllers.Logout(app.sessions))
		auth.GET("/me", requireAuth, controllers.GetMe(app.sessions))
		auth.PUT("/me", requireAuth, controllers.UpdateMe(app.sessions))
	}

	labels := r.Group("/api/labels")
	labels.Use(requireAuth)
	{
		labels.POST("", controllers.AddLabel(app.labels))
		labels.GET("", controllers.GetLabels(app.labels))
		labels.GET("/:id", controllers.GetLabel(app.labels))
		labels.PUT("/:id", controllers.UpdateLabel(app.labels))
		labels.DELETE("/:id", controllers.DeleteLabel(app.labels))
	}

	tasks := r.Group("/api/tasks")
	tasks.Use(requireAuth)
	{
		tasks.POST("", controllers.AddTask(app.tasks))
		tasks.GET("", controllers.GetTasks(app.tasks))
		tasks.GET("/:id", controllers.GetTask(app.tasks))
		tasks.PUT("/:id", controllers.UpdateTask(app.tasks))
		tasks.PATCH("/:id/complete", controllers.ToggleTask(app.tasks))
		tasks.DELETE("/:id", controllers.DeleteTask(app.tasks))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})

	return r
}
