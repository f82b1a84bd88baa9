package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

const (
	tableProjects       = "projects"
	tableProjectClasses = "project-classes"
	fieldProjects       = "projects"
	fieldClasses        = "classes"
)

// ProjectService 管理用户的项目列表以及每个项目的类别/颜色表
type ProjectService struct {
	records RecordStore
}

func NewProjectService(records RecordStore) *ProjectService {
	return &ProjectService{records: records}
}

func classesKey(user, project string) string {
	return user + "-" + project
}

// ListProjects 返回用户的项目名，无记录时为空
func (s *ProjectService) ListProjects(ctx context.Context, user string) ([]string, error) {
	projects := []string{}
	if err := s.readField(ctx, tableProjects, user, fieldProjects, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject 新建项目并写入默认类别 unlabeled -> (0,0,0)
func (s *ProjectService) CreateProject(ctx context.Context, user, name string) error {
	if err := checkPathComponent("user", user); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := checkPathComponent("project", name); err != nil {
		return err
	}

	projects, err := s.ListProjects(ctx, user)
	if err != nil {
		return err
	}
	if slices.Contains(projects, name) {
		return fmt.Errorf("%w: project %q already exists", ErrInvalidInput, name)
	}

	if err := s.records.UpdateField(ctx, tableProjectClasses, classesKey(user, name), fieldClasses, model.DefaultClasses()); err != nil {
		return fmt.Errorf("failed to seed classes: %w", err)
	}
	if err := s.records.UpdateField(ctx, tableProjects, user, fieldProjects, append(projects, name)); err != nil {
		return fmt.Errorf("failed to update project list: %w", err)
	}

	utils.Logger.Info("project created",
		zap.String("user", user),
		zap.String("project", name))
	return nil
}

// Classes 返回项目的类别列表（保持存储顺序）
func (s *ProjectService) Classes(ctx context.Context, user, project string) ([]model.ClassEntry, error) {
	classes := []model.ClassEntry{}
	if err := s.readField(ctx, tableProjectClasses, classesKey(user, project), fieldClasses, &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

// LabelOptions 可选的类别名
func (s *ProjectService) LabelOptions(ctx context.Context, user, project string) ([]string, error) {
	classes, err := s.Classes(ctx, user, project)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.Name)
	}
	return names, nil
}

// LabelColors 类别名到颜色的映射，格式不正确的记录被跳过
func (s *ProjectService) LabelColors(ctx context.Context, user, project string) (model.Palette, error) {
	classes, err := s.Classes(ctx, user, project)
	if err != nil {
		return nil, err
	}
	palette := make(model.Palette, len(classes))
	for _, c := range classes {
		rgb, err := c.RGB()
		if err != nil {
			utils.Logger.Warn("ignoring invalid class record",
				zap.String("user", user),
				zap.String("project", project),
				zap.Error(err))
			continue
		}
		palette[c.Name] = rgb
	}
	return palette, nil
}

// AddClass 添加类别，颜色为 #rrggbb；同名类别更新颜色
func (s *ProjectService) AddClass(ctx context.Context, user, project, name, hexColor string) error {
	name = strings.TrimSpace(name)
	if err := checkClassName(name); err != nil {
		return err
	}
	c, err := colorful.Hex(hexColor)
	if err != nil {
		return fmt.Errorf("%w: invalid color %q", ErrInvalidInput, hexColor)
	}
	r, g, b := c.RGB255()
	entry := model.NewClassEntry(name, model.RGB{R: r, G: g, B: b})

	classes, err := s.Classes(ctx, user, project)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(classes, func(e model.ClassEntry) bool { return e.Name == name })
	if idx >= 0 {
		classes[idx] = entry
	} else {
		classes = append(classes, entry)
	}

	return s.records.UpdateField(ctx, tableProjectClasses, classesKey(user, project), fieldClasses, classes)
}

// ImportClasses 用上传的 JSON 类别表替换当前的类别表
func (s *ProjectService) ImportClasses(ctx context.Context, user, project string, data []byte) error {
	var classes []model.ClassEntry
	if err := json.Unmarshal(data, &classes); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if err := checkClassName(c.Name); err != nil {
			return err
		}
		if _, err := c.RGB(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate class %q", ErrInvalidInput, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	if classes == nil {
		classes = []model.ClassEntry{}
	}

	raw, err := json.Marshal(classes)
	if err != nil {
		return err
	}
	return s.records.Put(ctx, tableProjectClasses, classesKey(user, project), Record{
		fieldClasses: raw,
	})
}

// checkClassName 类别名不能为空，也不能与删除标记冲突
func checkClassName(name string) error {
	if strings.TrimSpace(name) == "" || name == model.DeleteLabel {
		return fmt.Errorf("%w: invalid class name %q", ErrInvalidInput, name)
	}
	return nil
}

// ExportClasses 导出类别表 JSON，格式与 ImportClasses 相同
func (s *ProjectService) ExportClasses(ctx context.Context, user, project string) ([]byte, error) {
	classes, err := s.Classes(ctx, user, project)
	if err != nil {
		return nil, err
	}
	return json.Marshal(classes)
}

func (s *ProjectService) readField(ctx context.Context, table, key, field string, out interface{}) error {
	rec, ok, err := s.records.Get(ctx, table, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	raw, ok := rec[field]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed %s record %q: %w", table, key, err)
	}
	return nil
}
