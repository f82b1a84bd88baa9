package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/HugoSmits86/nativewebp"
	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/model"
	"golang.org/x/image/draw"
)

const (
	checkerLight = 150
	checkerDark  = 50
)

// PreviewRenderer 生成掩码卡片缩略图：掩码内显示原图，掩码外显示棋盘格
type PreviewRenderer struct {
	width       int
	format      string
	checkerSize int
}

func NewPreviewRenderer(cfg *config.RenderConfig) *PreviewRenderer {
	checker := cfg.CheckerSize
	if checker <= 0 {
		checker = 50
	}
	return &PreviewRenderer{
		width:       cfg.PreviewWidth,
		format:      cfg.PreviewFormat,
		checkerSize: checker,
	}
}

// ContentType 缩略图的 MIME 类型
func (p *PreviewRenderer) ContentType() string {
	if p.format == "webp" {
		return "image/webp"
	}
	return "image/png"
}

// Render 生成并编码缩略图
func (p *PreviewRenderer) Render(src model.Image, mask model.Mask) ([]byte, error) {
	if src.Width != mask.Width || src.Height != mask.Height {
		return nil, fmt.Errorf("%w: image %dx%d, mask %dx%d", ErrInvalidInput,
			src.Width, src.Height, mask.Width, mask.Height)
	}

	img := p.apply(src, mask)

	var out image.Image = img
	if p.width > 0 && img.Bounds().Dx() > p.width {
		h := img.Bounds().Dy() * p.width / img.Bounds().Dx()
		scaled := image.NewRGBA(image.Rect(0, 0, p.width, max(1, h)))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	var err error
	if p.format == "webp" {
		err = nativewebp.Encode(&buf, out, nil)
	} else {
		err = png.Encode(&buf, out)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PreviewRenderer) apply(src model.Image, mask model.Mask) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			if mask.At(x, y) {
				c := src.At(x, y)
				img.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
				continue
			}
			v := uint8(checkerDark)
			if (y/p.checkerSize)%2 == (x/p.checkerSize)%2 {
				v = checkerLight
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}
