package service

import (
	"encoding/base64"
	"fmt"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	// 合成图的混合权重，保持与已有渲染结果一致
	compositeBackgroundWeight = 0.95
	compositeMaskWeight       = 0.05
)

// Rendering 一次合成的结果
type Rendering struct {
	Flattened      model.Image
	Composite      model.Image
	MissingClasses []string
}

// Compositor 按 z 序将带标签的掩码绘制为彩色分割图
type Compositor struct{}

func NewCompositor() *Compositor {
	return &Compositor{}
}

// Render 由后向前绘制存档条目，再绘制草稿条目（草稿整体位于存档之前），
// 下标小的掩码覆盖下标大的掩码。找不到颜色的类别被跳过并记录在结果中。
func (c *Compositor) Render(src model.Image, archive, draft []model.Entry, palette model.Palette) (*Rendering, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: source image: %v", ErrInvalidInput, err)
	}

	acc := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), src.Height, src.Width, gocv.MatTypeCV8UC3)
	defer acc.Close()

	missing := make(map[string]struct{})
	var missingNames []string

	paint := func(layer string, entries []model.Entry) {
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.Deleted() {
				continue
			}

			rgb, ok := palette.Lookup(e.Label)
			if !ok {
				utils.Logger.Warn("class color not found, mask skipped",
					zap.String("layer", layer),
					zap.Int("index", i),
					zap.String("class", e.Label))
				if _, seen := missing[e.Label]; !seen {
					missing[e.Label] = struct{}{}
					missingNames = append(missingNames, e.Label)
				}
				continue
			}

			if e.Mask.Width != src.Width || e.Mask.Height != src.Height {
				utils.Logger.Warn("mask size does not match image, mask skipped",
					zap.String("layer", layer),
					zap.Int("index", i),
					zap.Int("mask_width", e.Mask.Width),
					zap.Int("mask_height", e.Mask.Height))
				continue
			}

			if err := paintMask(&acc, e.Mask, rgb); err != nil {
				utils.Logger.Warn("failed to paint mask",
					zap.String("layer", layer),
					zap.Int("index", i),
					zap.Error(err))
			}
		}
	}

	paint("archive", archive)
	paint("draft", draft)

	flattened := matToImage(acc)
	composite, err := c.Composite(src, flattened)
	if err != nil {
		return nil, err
	}

	return &Rendering{
		Flattened:      flattened,
		Composite:      composite,
		MissingClasses: missingNames,
	}, nil
}

// Composite 将灰度原图与分割图叠加：
// 逐通道取分割图非零值、否则取灰度值，再与分割图按 0.95/0.05 加权混合
func (c *Compositor) Composite(src, flattened model.Image) (model.Image, error) {
	if src.Width != flattened.Width || src.Height != flattened.Height {
		return model.Image{}, fmt.Errorf("%w: image %dx%d, mask image %dx%d", ErrInvalidInput,
			src.Width, src.Height, flattened.Width, flattened.Height)
	}

	srcMat, err := imageToMat(src)
	if err != nil {
		return model.Image{}, err
	}
	defer srcMat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(srcMat, &gray, gocv.ColorBGRToGray)

	grayBGR := gocv.NewMat()
	defer grayBGR.Close()
	gocv.CvtColor(gray, &grayBGR, gocv.ColorGrayToBGR)

	bg := grayBGR.ToBytes()
	for i, v := range flattened.Pix {
		if v > 0 {
			bg[i] = v
		}
	}

	bgMat, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC3, bg)
	if err != nil {
		return model.Image{}, err
	}
	defer bgMat.Close()

	flatMat, err := imageToMat(flattened)
	if err != nil {
		return model.Image{}, err
	}
	defer flatMat.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.AddWeighted(bgMat, compositeBackgroundWeight, flatMat, compositeMaskWeight, 0, &out)

	return matToImage(out), nil
}

func paintMask(acc *gocv.Mat, mask model.Mask, c model.RGB) error {
	maskMat, err := MaskToMat(mask)
	if err != nil {
		return err
	}
	defer maskMat.Close()

	colored := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		mask.Height, mask.Width, gocv.MatTypeCV8UC3)
	defer colored.Close()

	colored.CopyToWithMask(acc, maskMat)
	return nil
}

// DecodeImage 解码 JPEG/PNG 为 BGR 图像（按 EXIF 方向旋转）
func DecodeImage(data []byte) (model.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return model.Image{}, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return model.Image{}, fmt.Errorf("%w: unreadable image data", ErrInvalidInput)
	}
	return matToImage(mat), nil
}

// EncodePNG 编码为 PNG
func EncodePNG(img model.Image) ([]byte, error) {
	mat, err := imageToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// DataURI 生成 data:image/png;base64,... 形式的字符串
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func imageToMat(img model.Image) (gocv.Mat, error) {
	if err := img.Validate(); err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pix)
}

func matToImage(mat gocv.Mat) model.Image {
	return model.Image{
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: 3,
		Pix:      mat.ToBytes(),
	}
}
