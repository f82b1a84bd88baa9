package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"go.uber.org/zap"
)

// FileService 处理项目文件的上传、列举与打包下载
type FileService struct {
	blobs           BlobStore
	locker          Locker
	drafts          DraftStore
	codec           *ArchiveCodec
	maxSize         int64
	allowedSuffixes []string
}

func NewFileService(cfg *config.UploadConfig, blobs BlobStore, drafts DraftStore, locker Locker) *FileService {
	return &FileService{
		blobs:           blobs,
		locker:          locker,
		drafts:          drafts,
		codec:           NewArchiveCodec(),
		maxSize:         cfg.MaxSize,
		allowedSuffixes: cfg.AllowedSuffixes,
	}
}

// Upload 保存一个上传文件：.jpg/.png 为图片，.sgbdi 为掩码存档
func (s *FileService) Upload(ctx context.Context, user, project, name string, data []byte) model.UploadedFile {
	result := model.UploadedFile{Name: name}

	ref, err := NewImageRef(user, project, name)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		result.Message = fmt.Sprintf("文件大小超过限制 (%d MB)", s.maxSize/(1024*1024))
		return result
	}

	suffix := strings.ToLower(path.Ext(name))
	if !slices.Contains(s.allowedSuffixes, suffix) {
		result.Message = "不支持的文件类型，仅支持 .jpg/.png 图片或 .sgbdi 存档"
		return result
	}

	var dst string
	switch suffix {
	case ArchiveSuffix:
		if _, _, err := s.codec.Decode(data); err != nil {
			utils.Logger.Warn("rejected archive upload",
				zap.String("file", name), zap.Error(err))
			result.Message = "存档无法解析: " + err.Error()
			return result
		}
		dst = ref.ArchivePath()
	default:
		if _, err := DecodeImage(data); err != nil {
			utils.Logger.Warn("rejected image upload",
				zap.String("file", name), zap.Error(err))
			result.Message = "图片无法解码"
			return result
		}
		dst = ProjectImagesPrefix(user, project) + "/" + name
	}

	replaced, err := s.blobs.Exists(ctx, dst)
	if err != nil {
		utils.Logger.Warn("failed to check existing file",
			zap.String("path", dst), zap.Error(err))
	}

	if suffix == ArchiveSuffix {
		err = s.replaceArchive(ctx, ref, data)
	} else {
		err = s.blobs.Write(ctx, dst, data)
	}
	if err != nil {
		utils.Logger.Error("failed to save file",
			zap.String("path", dst), zap.Error(err))
		result.Message = "保存文件失败"
		if errors.Is(err, ErrLockTimeout) {
			result.Message = "图片正在被编辑，请稍后重试"
		}
		return result
	}

	utils.Logger.Info("file uploaded",
		zap.String("path", dst),
		zap.Int("size", len(data)),
		zap.Bool("replaced", replaced))

	result.Path = dst
	result.Success = true
	result.Message = "上传成功"
	return result
}

// replaceArchive 在图片锁内替换存档并丢弃基于旧存档的草稿
func (s *FileService) replaceArchive(ctx context.Context, ref ImageRef, data []byte) error {
	unlock, err := s.locker.Lock(ctx, ref.Key())
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.blobs.Write(ctx, ref.ArchivePath(), data); err != nil {
		return err
	}
	if err := s.drafts.DeleteDraft(ctx, ref.Key()); err != nil {
		utils.Logger.Warn("archive replaced but draft could not be cleared",
			zap.String("image", ref.Key()),
			zap.Error(err))
	}
	return nil
}

// ListImages 返回项目下的图片文件名
func (s *FileService) ListImages(ctx context.Context, user, project string) ([]string, error) {
	return s.blobs.List(ctx, ProjectImagesPrefix(user, project))
}

// Export 将选中图片及其存档、分割图打包为 zip：
// {project}/images/..., {project}/sgbdi/..., {project}/masks/...
func (s *FileService) Export(ctx context.Context, user, project string, files []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	add := func(src, dst string) error {
		data, err := s.blobs.Load(ctx, src)
		if err != nil {
			if errors.Is(err, ErrBlobNotFound) {
				utils.Logger.Debug("skipping missing file", zap.String("path", src))
				return nil
			}
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     dst,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	for _, f := range files {
		f = strings.TrimSpace(f)
		ref, err := NewImageRef(user, project, f)
		if err != nil {
			return nil, err
		}
		base := ref.Basename()
		if err := add(ref.ImagePath(), project+"/images/"+f); err != nil {
			return nil, err
		}
		if err := add(ref.ArchivePath(), project+"/sgbdi/"+base+ArchiveSuffix); err != nil {
			return nil, err
		}
		if err := add(ref.SegmentedPath(), project+"/masks/"+base+".png"); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
