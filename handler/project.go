package handler

import (
	"io"
	"net/http"

	"github.com/alimoorreza/segbuilder-v1/service"
	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projects *service.ProjectService
}

func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// List 列出用户的项目
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.ListProjects(c.Request.Context(), c.Param("user"))
	if err != nil {
		fail(c, "查询项目失败", err)
		return
	}
	ok(c, "查询成功", projects)
}

type createProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create 新建项目
func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请提供项目名称", err)
		return
	}
	if err := h.projects.CreateProject(c.Request.Context(), c.Param("user"), req.Name); err != nil {
		fail(c, "创建项目失败", err)
		return
	}
	ok(c, "创建成功", gin.H{"name": req.Name})
}

// Classes 返回项目的类别表
func (h *ProjectHandler) Classes(c *gin.Context) {
	classes, err := h.projects.Classes(c.Request.Context(), c.Param("user"), c.Param("project"))
	if err != nil {
		fail(c, "查询类别失败", err)
		return
	}
	ok(c, "查询成功", classes)
}

type addClassRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color" binding:"required"`
}

// AddClass 添加或更新一个类别
func (h *ProjectHandler) AddClass(c *gin.Context) {
	var req addClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请提供类别名称和颜色", err)
		return
	}
	if err := h.projects.AddClass(c.Request.Context(), c.Param("user"), c.Param("project"), req.Name, req.Color); err != nil {
		fail(c, "添加类别失败", err)
		return
	}
	ok(c, "添加成功", nil)
}

// ImportClasses 用请求体中的 JSON 类别表替换当前类别表
func (h *ProjectHandler) ImportClasses(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "读取请求失败", err)
		return
	}
	if err := h.projects.ImportClasses(c.Request.Context(), c.Param("user"), c.Param("project"), data); err != nil {
		fail(c, "导入类别失败", err)
		return
	}
	ok(c, "导入成功", nil)
}

// ExportClasses 下载类别表 JSON
func (h *ProjectHandler) ExportClasses(c *gin.Context) {
	project := c.Param("project")
	data, err := h.projects.ExportClasses(c.Request.Context(), c.Param("user"), project)
	if err != nil {
		fail(c, "导出类别失败", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+project+`_color_scheme.json"`)
	c.Data(http.StatusOK, "application/json", data)
}
