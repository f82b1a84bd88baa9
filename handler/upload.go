package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/service"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UploadHandler struct {
	cfg   *config.Config
	files *service.FileService
}

func NewUploadHandler(cfg *config.Config, files *service.FileService) *UploadHandler {
	return &UploadHandler{
		cfg:   cfg,
		files: files,
	}
}

// Upload 上传图片或 .sgbdi 存档，每个文件单独返回处理结果
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "请上传文件", err)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		badRequest(c, "请上传文件", nil)
		return
	}

	user, project := c.Param("user"), c.Param("project")
	results := make([]model.UploadedFile, 0, len(headers))
	succeeded := 0
	for _, fh := range headers {
		// 先按声明的大小拒绝，避免读入过大的文件
		if fh.Size > h.cfg.Upload.MaxSize {
			results = append(results, model.UploadedFile{
				Name:    fh.Filename,
				Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
			})
			continue
		}

		data, err := readFormFile(fh)
		if err != nil {
			utils.Logger.Error("failed to read uploaded file",
				zap.String("file", fh.Filename), zap.Error(err))
			results = append(results, model.UploadedFile{Name: fh.Filename, Message: "读取文件失败"})
			continue
		}

		r := h.files.Upload(c.Request.Context(), user, project, fh.Filename, data)
		if r.Success {
			succeeded++
		}
		results = append(results, r)
	}

	ok(c, fmt.Sprintf("已上传 %d/%d 个文件", succeeded, len(headers)), results)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ListImages 列出项目中的图片
func (h *UploadHandler) ListImages(c *gin.Context) {
	images, err := h.files.ListImages(c.Request.Context(), c.Param("user"), c.Param("project"))
	if err != nil {
		fail(c, "查询图片失败", err)
		return
	}
	ok(c, "查询成功", images)
}

type downloadRequest struct {
	Files []string `json:"files" binding:"required"`
}

// Download 将选中的图片及其存档、分割图打包下载
func (h *UploadHandler) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请选择要下载的文件", err)
		return
	}

	project := c.Param("project")
	data, err := h.files.Export(c.Request.Context(), c.Param("user"), project, req.Files)
	if err != nil {
		fail(c, "打包下载失败", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+project+`.zip"`)
	c.Data(http.StatusOK, "application/zip", data)
}
