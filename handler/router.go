package handler

import (
	"net/http"

	"github.com/alimoorreza/segbuilder-v1/middleware"
	"github.com/gin-gonic/gin"
)

// BuildInfo 版本信息，由 main 在编译时注入
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

// Handlers 路由需要的全部 handler
type Handlers struct {
	Projects    *ProjectHandler
	Uploads     *UploadHandler
	Annotations *AnnotationHandler
}

// NewRouter 注册中间件与 API 路由
func NewRouter(h Handlers, info BuildInfo) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": info.Version,
		})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, info)
	})

	projects := r.Group("/api/v1/users/:user/projects")
	{
		projects.GET("", h.Projects.List)
		projects.POST("", h.Projects.Create)

		projects.GET("/:project/classes", h.Projects.Classes)
		projects.POST("/:project/classes", h.Projects.AddClass)
		projects.PUT("/:project/classes", h.Projects.ImportClasses)
		projects.GET("/:project/classes/export", h.Projects.ExportClasses)

		projects.GET("/:project/images", h.Uploads.ListImages)
		projects.POST("/:project/images", h.Uploads.Upload)
		projects.POST("/:project/download", h.Uploads.Download)

		ann := projects.Group("/:project/images/:image/annotation")
		ann.GET("", h.Annotations.Load)
		ann.POST("/masks", h.Annotations.DrawMask)
		ann.POST("/front", h.Annotations.BringToFront)
		ann.POST("/delete", h.Annotations.Delete)
		ann.PUT("/label", h.Annotations.Relabel)
		ann.GET("/contours", h.Annotations.Contours)
		ann.GET("/preview", h.Annotations.Preview)
		ann.POST("/render", h.Annotations.Render)
		ann.POST("/save", h.Annotations.Save)
		ann.DELETE("/draft", h.Annotations.Discard)
	}

	return r
}
