package model

import (
	"errors"
	"fmt"
)

var ErrInvalidClass = errors.New("invalid class record")

// ClassEntry 项目中的一个类别及其显示颜色。
// 存储格式与旧版数据库一致：{"name": "...", "color": [r, g, b]}
type ClassEntry struct {
	Name  string `json:"name"`
	Color []int  `json:"color"`
}

// RGB 校验并转换颜色
func (c ClassEntry) RGB() (RGB, error) {
	if c.Name == "" {
		return RGB{}, fmt.Errorf("%w: empty name", ErrInvalidClass)
	}
	if len(c.Color) != 3 {
		return RGB{}, fmt.Errorf("%w: %q has %d color components", ErrInvalidClass, c.Name, len(c.Color))
	}
	for _, v := range c.Color {
		if v < 0 || v > 255 {
			return RGB{}, fmt.Errorf("%w: %q color component %d out of range", ErrInvalidClass, c.Name, v)
		}
	}
	return RGB{R: uint8(c.Color[0]), G: uint8(c.Color[1]), B: uint8(c.Color[2])}, nil
}

func NewClassEntry(name string, c RGB) ClassEntry {
	return ClassEntry{Name: name, Color: []int{int(c.R), int(c.G), int(c.B)}}
}

// DefaultClasses 新项目创建时写入的类别
func DefaultClasses() []ClassEntry {
	return []ClassEntry{NewClassEntry(DefaultClass, RGB{})}
}

// Palette 类别名到颜色的映射
type Palette map[string]RGB

func (p Palette) Lookup(name string) (RGB, bool) {
	c, ok := p[name]
	return c, ok
}
