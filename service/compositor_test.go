package service

import (
	"slices"
	"strings"
	"testing"

	"github.com/alimoorreza/segbuilder-v1/model"
)

var (
	red  = model.RGB{R: 255}
	blue = model.RGB{B: 255}
)

func testPalette() model.Palette {
	return model.Palette{"red": red, "blue": blue, model.DefaultClass: {}}
}

func TestRenderFrontEntryOccludes(t *testing.T) {
	src := solidImage(10, 10, model.RGB{R: 100, G: 100, B: 100})
	front := squareMask(10, 10, 0, 0, 5, 5)
	back := squareMask(10, 10, 3, 3, 9, 9)

	archive := []model.Entry{
		{Mask: front, Label: "red"},
		{Mask: back, Label: "blue"},
	}

	r, err := NewCompositor().Render(src, archive, nil, testPalette())
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Flattened.At(4, 4); got != red {
		t.Errorf("overlap pixel = %+v, want red", got)
	}
	if got := r.Flattened.At(8, 8); got != blue {
		t.Errorf("back-only pixel = %+v, want blue", got)
	}
	if got := r.Flattened.At(9, 0); !got.IsZero() {
		t.Errorf("uncovered pixel = %+v, want zero", got)
	}
}

func TestRenderDraftOverArchive(t *testing.T) {
	src := solidImage(6, 6, model.RGB{})
	m := squareMask(6, 6, 0, 0, 5, 5)

	r, err := NewCompositor().Render(src,
		[]model.Entry{{Mask: m, Label: "red"}},
		[]model.Entry{{Mask: m, Label: "blue"}},
		testPalette())
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Flattened.At(2, 2); got != blue {
		t.Errorf("pixel = %+v, want blue from draft", got)
	}
}

func TestRenderSkipsMissingAndDeleted(t *testing.T) {
	src := solidImage(6, 6, model.RGB{})
	m := squareMask(6, 6, 0, 0, 2, 2)

	r, err := NewCompositor().Render(src, []model.Entry{
		{Mask: m, Label: "ghost"},
		{Mask: squareMask(6, 6, 3, 3, 5, 5), Label: model.DeleteLabel},
		{Mask: m, Label: "ghost"},
	}, nil, testPalette())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(r.MissingClasses, []string{"ghost"}) {
		t.Errorf("MissingClasses = %v, want [ghost]", r.MissingClasses)
	}
	for _, v := range r.Flattened.Pix {
		if v != 0 {
			t.Fatal("nothing should be painted")
		}
	}
}

func TestRenderSkipsWrongSizedMask(t *testing.T) {
	src := solidImage(6, 6, model.RGB{})
	r, err := NewCompositor().Render(src, []model.Entry{
		{Mask: squareMask(4, 4, 0, 0, 3, 3), Label: "red"},
	}, nil, testPalette())
	if err != nil {
		t.Fatal(err)
	}
	if !r.Flattened.At(0, 0).IsZero() {
		t.Error("mismatched mask should not be painted")
	}
}

func TestCompositeBlend(t *testing.T) {
	src := solidImage(4, 4, model.RGB{R: 100, G: 100, B: 100})
	m := squareMask(4, 4, 0, 0, 1, 1)

	r, err := NewCompositor().Render(src, []model.Entry{{Mask: m, Label: "red"}}, nil, testPalette())
	if err != nil {
		t.Fatal(err)
	}

	// 未覆盖区域：0.95 * 灰度
	if got := r.Composite.At(3, 3); got != (model.RGB{R: 95, G: 95, B: 95}) {
		t.Errorf("background pixel = %+v, want 95 gray", got)
	}
	// 覆盖区域：红色通道取掩码颜色，其他通道取灰度
	if got := r.Composite.At(0, 0); got != (model.RGB{R: 255, G: 95, B: 95}) {
		t.Errorf("masked pixel = %+v, want {255 95 95}", got)
	}
}

func TestCompositeSizeMismatch(t *testing.T) {
	_, err := NewCompositor().Composite(model.NewImage(4, 4), model.NewImage(2, 2))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEncodeDecodePNG(t *testing.T) {
	img := solidImage(3, 2, model.RGB{R: 10, G: 20, B: 30})
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeImage(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(img) {
		t.Error("PNG round trip changed pixels")
	}
	if uri := DataURI(data); !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("DataURI() = %q", uri[:20])
	}
}

func TestDecodeImageGarbage(t *testing.T) {
	if _, err := DecodeImage([]byte("not an image")); err == nil {
		t.Error("expected error")
	}
}
