package service

import (
	"bytes"
	"compress/gzip"
	"errors"
	"slices"
	"testing"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/vmihailenco/msgpack/v5"
)

func gzipBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestArchiveRoundTrip(t *testing.T) {
	codec := NewArchiveCodec()
	masks := []model.Mask{squareMask(7, 5, 0, 0, 2, 2), squareMask(7, 5, 3, 1, 6, 4)}
	a := mustArchive(t, masks, []string{"cat", "dog"})
	img := solidImage(7, 5, model.RGB{R: 1, G: 2, B: 3})

	data, err := codec.Encode(a, img)
	if err != nil {
		t.Fatal(err)
	}

	got, gotImg, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.Labels(), []string{"cat", "dog"}) {
		t.Errorf("labels = %v", got.Labels())
	}
	for i, m := range got.Masks() {
		if !m.Equal(masks[i]) {
			t.Errorf("mask %d changed", i)
		}
	}
	if !gotImg.Equal(img) {
		t.Error("image changed")
	}
}

func TestArchiveEmptyRoundTrip(t *testing.T) {
	codec := NewArchiveCodec()
	data, err := codec.Encode(mustArchive(t, nil, nil), model.Image{})
	if err != nil {
		t.Fatal(err)
	}
	a, _, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 0 {
		t.Errorf("Len() = %d, want 0", a.Len())
	}
}

func TestDecodeCorruptArchive(t *testing.T) {
	codec := NewArchiveCodec()
	tests := []struct {
		name string
		data []byte
	}{
		{"not gzip", []byte("hello")},
		{"empty gzip", gzipBytes(t, nil)},
		{"garbage payload", gzipBytes(t, []byte{0xc1, 0xc1, 0xc1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := codec.Decode(tt.data)
			if !errors.Is(err, ErrArchiveCorrupted) {
				t.Errorf("error = %v, want ErrArchiveCorrupted", err)
			}
		})
	}
}

func TestDecodeLabelMismatch(t *testing.T) {
	payload, err := msgpack.Marshal(&wireArchive{
		Version: archiveFormatVersion,
		Masks:   []wireMaskRecord{{Segmentation: wireMask{Width: 1, Height: 1, Bits: []byte{0x80}}}},
		Labels:  []string{"a", "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = NewArchiveCodec().Decode(gzipBytes(t, payload))
	if !errors.Is(err, ErrArchiveCorrupted) {
		t.Errorf("error = %v, want ErrArchiveCorrupted", err)
	}
}

func TestDecodeUnknownVersion(t *testing.T) {
	payload, err := msgpack.Marshal(&wireArchive{Version: 99})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = NewArchiveCodec().Decode(gzipBytes(t, payload))
	if !errors.Is(err, ErrArchiveCorrupted) {
		t.Errorf("error = %v, want ErrArchiveCorrupted", err)
	}
}

func TestDecodeLegacyPickle(t *testing.T) {
	// PROTO 4 + EMPTY_DICT + STOP
	_, _, err := NewArchiveCodec().Decode(gzipBytes(t, []byte{0x80, 0x04, '}', '.'}))
	if !errors.Is(err, ErrLegacyArchive) {
		t.Errorf("error = %v, want ErrLegacyArchive", err)
	}
}

func TestDraftRoundTrip(t *testing.T) {
	codec := NewArchiveCodec()
	d := &model.Draft{
		ArchiveChecksum: "0cc175b9c0f1b6a831c399e269772661",
		ArchiveLabels:   []string{"cat", model.DeleteLabel},
		LastAction:      "click-7",
		Batch: model.EditBatch{
			Masks:  []model.Mask{squareMask(4, 4, 0, 0, 1, 1), squareMask(4, 4, 2, 2, 3, 3)},
			Labels: []string{"dog"},
		},
	}

	data, err := codec.EncodeDraft(d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.DecodeDraft(data)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.ArchiveLabels, d.ArchiveLabels) {
		t.Errorf("archive labels = %v", got.ArchiveLabels)
	}
	if got.ArchiveChecksum != d.ArchiveChecksum || got.LastAction != d.LastAction {
		t.Errorf("checksum = %q, action = %q", got.ArchiveChecksum, got.LastAction)
	}
	// 编码时补齐标签
	if !slices.Equal(got.Batch.Labels, []string{"dog", "dog"}) {
		t.Errorf("batch labels = %v, want [dog dog]", got.Batch.Labels)
	}
	if !got.Batch.Masks[1].Equal(d.Batch.Masks[1]) {
		t.Error("batch mask changed")
	}
}
