package handler

import (
	"net/http"
	"strconv"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/service"
	"github.com/gin-gonic/gin"
)

type AnnotationHandler struct {
	annotations *service.AnnotationService
}

func NewAnnotationHandler(annotations *service.AnnotationService) *AnnotationHandler {
	return &AnnotationHandler{annotations: annotations}
}

func imageRef(c *gin.Context) (service.ImageRef, bool) {
	ref, err := service.NewImageRef(c.Param("user"), c.Param("project"), c.Param("image"))
	if err != nil {
		badRequest(c, "图片路径无效", err)
		return service.ImageRef{}, false
	}
	return ref, true
}

// entryRequest 指定一个条目：source 为 archive 或 draft。
// action_id 由客户端为每次用户操作生成，重复提交同一 ID 只生效一次。
type entryRequest struct {
	Source string `json:"source" form:"source" binding:"required"`
	Index  *int   `json:"index" form:"index" binding:"required"`
	Label  string `json:"label" form:"label"`
	Action string `json:"action_id" form:"action_id"`
}

func bindEntry(c *gin.Context, query bool) (entryRequest, model.Source, bool) {
	var req entryRequest
	var err error
	if query {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		badRequest(c, "请指定条目", err)
		return req, "", false
	}
	src, err := model.ParseSource(req.Source)
	if err != nil {
		badRequest(c, "条目来源无效", err)
		return req, "", false
	}
	return req, src, true
}

// Load 返回图片的标注状态
func (h *AnnotationHandler) Load(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	state, err := h.annotations.State(c.Request.Context(), ref)
	if err != nil {
		fail(c, "加载标注失败", err)
		return
	}
	ok(c, "加载成功", state)
}

type drawMaskRequest struct {
	Polygons []model.Polygon `json:"polygons" binding:"required"`
	Label    string          `json:"label"`
	Action   string          `json:"action_id"`
}

// DrawMask 将绘制的闭合路径转换为新掩码
func (h *AnnotationHandler) DrawMask(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	var req drawMaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请提供绘制路径", err)
		return
	}
	layer, err := h.annotations.DrawMask(c.Request.Context(), ref, req.Polygons, req.Label, req.Action)
	if err != nil {
		fail(c, "生成掩码失败", err)
		return
	}
	ok(c, "掩码已添加", layer)
}

// BringToFront 将条目移到最前
func (h *AnnotationHandler) BringToFront(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	req, src, valid := bindEntry(c, false)
	if !valid {
		return
	}
	moved, err := h.annotations.BringToFront(c.Request.Context(), ref, src, *req.Index, req.Action)
	if err != nil {
		fail(c, "移动条目失败", err)
		return
	}
	ok(c, "操作成功", gin.H{"moved": moved})
}

// Delete 标记条目删除
func (h *AnnotationHandler) Delete(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	req, src, valid := bindEntry(c, false)
	if !valid {
		return
	}
	if err := h.annotations.Delete(c.Request.Context(), ref, src, *req.Index); err != nil {
		fail(c, "删除条目失败", err)
		return
	}
	ok(c, "已删除", nil)
}

// Relabel 修改条目的类别
func (h *AnnotationHandler) Relabel(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	req, src, valid := bindEntry(c, false)
	if !valid {
		return
	}
	if req.Label == "" {
		badRequest(c, "请指定类别", nil)
		return
	}
	if err := h.annotations.Relabel(c.Request.Context(), ref, src, *req.Index, req.Label); err != nil {
		fail(c, "修改类别失败", err)
		return
	}
	ok(c, "已修改", nil)
}

// Contours 返回条目的轮廓，用于重新编辑
func (h *AnnotationHandler) Contours(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	req, src, valid := bindEntry(c, true)
	if !valid {
		return
	}
	contours, err := h.annotations.Contours(c.Request.Context(), ref, src, *req.Index)
	if err != nil {
		fail(c, "提取轮廓失败", err)
		return
	}
	ok(c, "查询成功", contours)
}

// Preview 返回条目缩略图
func (h *AnnotationHandler) Preview(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	req, src, valid := bindEntry(c, true)
	if !valid {
		return
	}
	data, contentType, err := h.annotations.Preview(c.Request.Context(), ref, src, *req.Index)
	if err != nil {
		fail(c, "生成缩略图失败", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Entry-Index", strconv.Itoa(*req.Index))
	c.Data(http.StatusOK, contentType, data)
}

// Render 合成当前可见状态
func (h *AnnotationHandler) Render(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	result, err := h.annotations.Render(c.Request.Context(), ref)
	if err != nil {
		fail(c, "渲染失败", err)
		return
	}
	msg := "渲染成功"
	if result.Fallback {
		msg = "渲染失败，显示原图"
	}
	ok(c, msg, result)
}

// Save 将草稿合并进存档
func (h *AnnotationHandler) Save(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	result, err := h.annotations.Save(c.Request.Context(), ref)
	if err != nil {
		fail(c, "保存失败", err)
		return
	}
	ok(c, "保存成功", result)
}

// Discard 丢弃未保存的修改
func (h *AnnotationHandler) Discard(c *gin.Context) {
	ref, valid := imageRef(c)
	if !valid {
		return
	}
	if err := h.annotations.Discard(c.Request.Context(), ref); err != nil {
		fail(c, "丢弃草稿失败", err)
		return
	}
	ok(c, "已丢弃", nil)
}
