package service

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/vmihailenco/msgpack/v5"
)

// 存档格式版本；版本 1 为旧版 gzip + Python pickle
const archiveFormatVersion = 2

// pickle 协议 2 及以上以 PROTO 操作码开头
const pickleProtoOpcode = 0x80

type wireMask struct {
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Bits   []byte `msgpack:"bits"`
}

type wireMaskRecord struct {
	Segmentation wireMask `msgpack:"segmentation"`
}

type wireImage struct {
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Channels int    `msgpack:"channels"`
	Pix      []byte `msgpack:"pix"`
}

type wireArchive struct {
	Version int              `msgpack:"version"`
	Image   wireImage        `msgpack:"image"`
	Masks   []wireMaskRecord `msgpack:"masks"`
	Labels  []string         `msgpack:"labels"`
}

type wireDraft struct {
	Version         int              `msgpack:"version"`
	ArchiveChecksum string           `msgpack:"archive_checksum"`
	ArchiveLabels   []string         `msgpack:"archive_labels"`
	Masks           []wireMaskRecord `msgpack:"masks"`
	Labels          []string         `msgpack:"labels"`
	LastAction      string           `msgpack:"last_action,omitempty"`
}

// ArchiveCodec 负责 .sgbdi 存档与草稿的序列化：
// 外层 gzip，内层 MessagePack，字段为 image / masks[].segmentation / labels
type ArchiveCodec struct {
	level int
}

func NewArchiveCodec() *ArchiveCodec {
	return &ArchiveCodec{level: gzip.DefaultCompression}
}

// Encode 序列化存档及源图副本
func (c *ArchiveCodec) Encode(a *model.Archive, img model.Image) ([]byte, error) {
	w := wireArchive{
		Version: archiveFormatVersion,
		Image: wireImage{
			Width:    img.Width,
			Height:   img.Height,
			Channels: img.Channels,
			Pix:      img.Pix,
		},
		Labels: a.Labels(),
	}

	masks, err := encodeMasks(a.Masks())
	if err != nil {
		return nil, err
	}
	w.Masks = masks

	return c.compress(&w)
}

// Decode 反序列化存档，掩码还原为 model.Mask
func (c *ArchiveCodec) Decode(data []byte) (*model.Archive, model.Image, error) {
	var w wireArchive
	if err := c.decompress(data, &w); err != nil {
		return nil, model.Image{}, err
	}
	if w.Version != archiveFormatVersion {
		return nil, model.Image{}, fmt.Errorf("%w: unsupported version %d", ErrArchiveCorrupted, w.Version)
	}

	img := model.Image{
		Width:    w.Image.Width,
		Height:   w.Image.Height,
		Channels: w.Image.Channels,
		Pix:      w.Image.Pix,
	}
	if !img.Empty() {
		if err := img.Validate(); err != nil {
			return nil, model.Image{}, fmt.Errorf("%w: %v", ErrArchiveCorrupted, err)
		}
	}

	masks, err := decodeMasks(w.Masks)
	if err != nil {
		return nil, model.Image{}, err
	}

	if w.Labels == nil {
		w.Labels = []string{}
	}
	a, err := model.NewArchive(masks, w.Labels)
	if err != nil {
		return nil, model.Image{}, fmt.Errorf("%w: %v", ErrArchiveCorrupted, err)
	}

	return a, img, nil
}

// EncodeDraft 序列化会话草稿
func (c *ArchiveCodec) EncodeDraft(d *model.Draft) ([]byte, error) {
	masks, err := encodeMasks(d.Batch.Masks)
	if err != nil {
		return nil, err
	}
	w := wireDraft{
		Version:         archiveFormatVersion,
		ArchiveChecksum: d.ArchiveChecksum,
		ArchiveLabels:   d.ArchiveLabels,
		Masks:           masks,
		Labels:          d.Batch.EffectiveLabels(),
		LastAction:      d.LastAction,
	}
	return c.compress(&w)
}

func (c *ArchiveCodec) DecodeDraft(data []byte) (*model.Draft, error) {
	var w wireDraft
	if err := c.decompress(data, &w); err != nil {
		return nil, err
	}
	masks, err := decodeMasks(w.Masks)
	if err != nil {
		return nil, err
	}
	if len(w.Labels) != len(masks) {
		return nil, fmt.Errorf("%w: draft has %d masks, %d labels", ErrArchiveCorrupted, len(masks), len(w.Labels))
	}
	return &model.Draft{
		ArchiveChecksum: w.ArchiveChecksum,
		ArchiveLabels:   w.ArchiveLabels,
		Batch:           model.EditBatch{Masks: masks, Labels: w.Labels},
		LastAction:      w.LastAction,
	}, nil
}

func (c *ArchiveCodec) compress(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}

	enc := msgpack.NewEncoder(zw)
	if err := enc.Encode(v); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to encode archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *ArchiveCodec) decompress(data []byte, v interface{}) error {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveCorrupted, err)
	}
	defer zr.Close()

	br := bufio.NewReader(zr)
	head, err := br.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty payload", ErrArchiveCorrupted)
		}
		return fmt.Errorf("%w: %v", ErrArchiveCorrupted, err)
	}
	if head[0] == pickleProtoOpcode {
		return ErrLegacyArchive
	}

	if err := msgpack.NewDecoder(br).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveCorrupted, err)
	}
	return nil
}

func encodeMasks(masks []model.Mask) ([]wireMaskRecord, error) {
	out := make([]wireMaskRecord, len(masks))
	for i, m := range masks {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("mask %d: %w", i, err)
		}
		out[i] = wireMaskRecord{Segmentation: wireMask{Width: m.Width, Height: m.Height, Bits: m.Pack()}}
	}
	return out, nil
}

func decodeMasks(records []wireMaskRecord) ([]model.Mask, error) {
	out := make([]model.Mask, len(records))
	for i, r := range records {
		m, err := model.UnpackMask(r.Segmentation.Width, r.Segmentation.Height, r.Segmentation.Bits)
		if err != nil {
			return nil, fmt.Errorf("%w: mask %d: %v", ErrArchiveCorrupted, i, err)
		}
		out[i] = m
	}
	return out, nil
}
