package service

import (
	"fmt"
	"strings"
)

const (
	imagesDir          = "images"
	archivesDir        = "image_masks"
	segmentedImagesDir = "segmented_images"

	ArchiveSuffix = ".sgbdi"
)

// ImageRef 唯一标识一张图片：(用户, 项目, 文件名)
type ImageRef struct {
	User     string
	Project  string
	Filename string
}

func NewImageRef(user, project, filename string) (ImageRef, error) {
	ref := ImageRef{User: user, Project: project, Filename: filename}
	for name, v := range map[string]string{"user": user, "project": project, "image": filename} {
		if err := checkPathComponent(name, v); err != nil {
			return ImageRef{}, err
		}
	}
	return ref, nil
}

func checkPathComponent(name, v string) error {
	if v == "" || v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		return fmt.Errorf("%w: invalid %s %q", ErrInvalidInput, name, v)
	}
	return nil
}

// Basename 去掉 .jpg / .png / .sgbdi 后缀
func Basename(filename string) string {
	if len(filename) > 4 {
		if suffix := filename[len(filename)-4:]; suffix == ".jpg" || suffix == ".png" {
			return filename[:len(filename)-4]
		}
	}
	if base, found := strings.CutSuffix(filename, ArchiveSuffix); found && base != "" {
		return base
	}
	return filename
}

func (r ImageRef) Basename() string {
	return Basename(r.Filename)
}

// ImagePath images/{user}/{project}/{filename}
func (r ImageRef) ImagePath() string {
	return ProjectImagesPrefix(r.User, r.Project) + "/" + r.Filename
}

// ArchivePath image_masks/{user}/{project}/{basename}.sgbdi
func (r ImageRef) ArchivePath() string {
	return archivesDir + "/" + r.User + "/" + r.Project + "/" + r.Basename() + ArchiveSuffix
}

// SegmentedPath segmented_images/{user}/{project}/{basename}.png
func (r ImageRef) SegmentedPath() string {
	return segmentedImagesDir + "/" + r.User + "/" + r.Project + "/" + r.Basename() + ".png"
}

// Key 草稿与锁使用的键；同名的图片与存档共用一个键
func (r ImageRef) Key() string {
	return r.User + "/" + r.Project + "/" + r.Basename()
}

func ProjectImagesPrefix(user, project string) string {
	return imagesDir + "/" + user + "/" + project
}
