package handler

import (
	"errors"
	"net/http"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/service"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := model.ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// fail 将服务层错误映射为 HTTP 状态码
func fail(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrLegacyArchive):
		status = http.StatusUnprocessableEntity
		message = "存档为旧版格式，无法读取"
	case errors.Is(err, service.ErrArchiveCorrupted):
		status = http.StatusUnprocessableEntity
		message = "存档已损坏"
	case errors.Is(err, service.ErrStaleDraft):
		status = http.StatusConflict
		message = "存档已被修改，请重新加载"
	case errors.Is(err, service.ErrLockTimeout):
		status = http.StatusConflict
		message = "图片正在被其他请求保存，请稍后重试"
	case errors.Is(err, service.ErrQueueFull):
		status = http.StatusServiceUnavailable
		message = "服务繁忙，请稍后重试"
	}

	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}
