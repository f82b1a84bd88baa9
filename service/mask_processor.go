package service

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// MaskProcessor 负责多边形与二值掩码之间的相互转换
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// Rasterize 将闭合多边形栅格化为 height x width 的掩码。
// 每个多边形单独用 fillPoly 填充（含边界像素，自相交时按奇偶规则），
// 结果取并集；顶点数少于 3 的多边形被跳过。
func (mp *MaskProcessor) Rasterize(polygons []model.Polygon, height, width int) (model.Mask, error) {
	if height <= 0 || width <= 0 {
		return model.Mask{}, fmt.Errorf("%w: raster size %dx%d", ErrInvalidInput, width, height)
	}

	acc := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8U)
	defer acc.Close()

	for i, poly := range polygons {
		if len(poly) < 3 {
			utils.Logger.Warn("skipping malformed polygon",
				zap.Int("polygon", i),
				zap.Int("points", len(poly)))
			continue
		}

		pts := make([]image.Point, len(poly))
		for j, p := range poly {
			pts[j] = image.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
		}

		pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
		gocv.FillPoly(&acc, pv, white)
		pv.Close()
	}

	return MatToMask(acc), nil
}

// Contours 提取掩码中各连通区域的外轮廓
func (mp *MaskProcessor) Contours(mask model.Mask) ([][]model.ContourPoint, error) {
	if mask.Empty() {
		return nil, nil
	}

	mat, err := MaskToMat(mask)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	result := make([][]model.ContourPoint, 0, contours.Size())
	for _, pts := range contours.ToPoints() {
		poly := make([]model.ContourPoint, len(pts))
		for i, p := range pts {
			poly[i] = model.ContourPoint{X: p.X, Y: p.Y}
		}
		result = append(result, poly)
	}

	return result, nil
}

// ContoursToPolygons 将整数轮廓转换为可再次栅格化的多边形
func ContoursToPolygons(contours [][]model.ContourPoint) []model.Polygon {
	polys := make([]model.Polygon, len(contours))
	for i, c := range contours {
		poly := make(model.Polygon, len(c))
		for j, p := range c {
			poly[j] = model.Point{X: float64(p.X), Y: float64(p.Y)}
		}
		polys[i] = poly
	}
	return polys
}

// BoundingBox 计算掩码所有区域的外接矩形
func (mp *MaskProcessor) BoundingBox(mask model.Mask) model.BBox {
	if mask.Empty() {
		return model.BBox{}
	}

	mat, err := MaskToMat(mask)
	if err != nil {
		return model.BBox{}
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return model.BBox{}
	}

	var union image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		r := gocv.BoundingRect(contours.At(i))
		if i == 0 {
			union = r
		} else {
			union = union.Union(r)
		}
	}

	return model.BBox{
		X:      union.Min.X,
		Y:      union.Min.Y,
		Width:  union.Dx(),
		Height: union.Dy(),
	}
}

// MaskToMat 转为 0/255 的单通道 Mat，调用方负责 Close
func MaskToMat(mask model.Mask) (gocv.Mat, error) {
	if err := mask.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	data := make([]byte, len(mask.Pix))
	for i, v := range mask.Pix {
		if v {
			data[i] = 255
		}
	}
	return gocv.NewMatFromBytes(mask.Height, mask.Width, gocv.MatTypeCV8U, data)
}

// MatToMask 非零像素视为 true
func MatToMask(mat gocv.Mat) model.Mask {
	mask := model.NewMask(mat.Cols(), mat.Rows())
	for i, v := range mat.ToBytes() {
		mask.Pix[i] = v != 0
	}
	return mask
}
