package model

import "fmt"

// Mask 与源图同尺寸的二值掩码，true 表示像素属于该区域
type Mask struct {
	Width  int
	Height int
	Pix    []bool // 行优先，len == Width*Height
}

func NewMask(width, height int) Mask {
	return Mask{
		Width:  width,
		Height: height,
		Pix:    make([]bool, width*height),
	}
}

func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

func (m Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = v
}

// Count 返回为 true 的像素数
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

func (m Mask) Empty() bool {
	for _, v := range m.Pix {
		if v {
			return false
		}
	}
	return true
}

func (m Mask) Clone() Mask {
	pix := make([]bool, len(m.Pix))
	copy(pix, m.Pix)
	return Mask{Width: m.Width, Height: m.Height, Pix: pix}
}

func (m Mask) Equal(o Mask) bool {
	if m.Width != o.Width || m.Height != o.Height || len(m.Pix) != len(o.Pix) {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// Validate 检查像素切片与尺寸是否一致
func (m Mask) Validate() error {
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("invalid mask size %dx%d", m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height {
		return fmt.Errorf("mask has %d pixels, want %d", len(m.Pix), m.Width*m.Height)
	}
	return nil
}

// Pack 按行优先、高位在前打包为位图
func (m Mask) Pack() []byte {
	bits := make([]byte, (len(m.Pix)+7)/8)
	for i, v := range m.Pix {
		if v {
			bits[i/8] |= 0x80 >> (i % 8)
		}
	}
	return bits
}

// UnpackMask 是 Pack 的逆操作
func UnpackMask(width, height int, bits []byte) (Mask, error) {
	if width < 0 || height < 0 {
		return Mask{}, fmt.Errorf("invalid mask size %dx%d", width, height)
	}
	n := width * height
	if len(bits) != (n+7)/8 {
		return Mask{}, fmt.Errorf("mask bitmap has %d bytes, want %d", len(bits), (n+7)/8)
	}
	m := NewMask(width, height)
	for i := 0; i < n; i++ {
		m.Pix[i] = bits[i/8]&(0x80>>(i%8)) != 0
	}
	return m, nil
}

// Point 多边形顶点，浮点坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon 闭合多边形，最后一个顶点隐式连接第一个
type Polygon []Point
