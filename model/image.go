package model

import "fmt"

// RGB 类别颜色
type RGB struct {
	R uint8
	G uint8
	B uint8
}

func (c RGB) IsZero() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// Image 8 位三通道图像，像素按 BGR 交错存储（与 OpenCV 一致）
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

func NewImage(width, height int) Image {
	return Image{
		Width:    width,
		Height:   height,
		Channels: 3,
		Pix:      make([]byte, width*height*3),
	}
}

// At 返回 (x, y) 处的 RGB 颜色
func (img Image) At(x, y int) RGB {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return RGB{}
	}
	i := (y*img.Width + x) * img.Channels
	return RGB{R: img.Pix[i+2], G: img.Pix[i+1], B: img.Pix[i]}
}

func (img Image) Set(x, y int, c RGB) {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return
	}
	i := (y*img.Width + x) * img.Channels
	img.Pix[i] = c.B
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.R
}

func (img Image) Empty() bool {
	return img.Width == 0 || img.Height == 0
}

func (img Image) Equal(o Image) bool {
	if img.Width != o.Width || img.Height != o.Height || img.Channels != o.Channels {
		return false
	}
	if len(img.Pix) != len(o.Pix) {
		return false
	}
	for i := range img.Pix {
		if img.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

func (img Image) Validate() error {
	if img.Channels != 3 {
		return fmt.Errorf("unsupported channel count %d", img.Channels)
	}
	if len(img.Pix) != img.Width*img.Height*img.Channels {
		return fmt.Errorf("image has %d bytes, want %d", len(img.Pix), img.Width*img.Height*img.Channels)
	}
	return nil
}
