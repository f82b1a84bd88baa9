package model

import (
	"errors"
	"fmt"
)

const (
	// DeleteLabel 标记条目在合并时被删除
	DeleteLabel = "DELETE"
	// DefaultClass 新项目默认的类别
	DefaultClass = "unlabeled"
)

var (
	ErrLabelMismatch = errors.New("mask and label counts differ")
	ErrIndexRange    = errors.New("entry index out of range")
)

// Entry 带标签的掩码
type Entry struct {
	Mask  Mask
	Label string
}

func (e Entry) Deleted() bool {
	return e.Label == DeleteLabel
}

// Archive 单张图片的持久化掩码列表。
// 下标即 z 序：0 为最前（最后绘制、位于顶层），下标越大越靠后。
type Archive struct {
	entries []Entry
}

// NewArchive 由平行的掩码和标签列表构造，长度必须一致
func NewArchive(masks []Mask, labels []string) (*Archive, error) {
	if len(masks) != len(labels) {
		return nil, fmt.Errorf("%w: %d masks, %d labels", ErrLabelMismatch, len(masks), len(labels))
	}
	entries := make([]Entry, len(masks))
	for i := range masks {
		entries[i] = Entry{Mask: masks[i], Label: labels[i]}
	}
	return &Archive{entries: entries}, nil
}

func (a *Archive) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

func (a *Archive) Entry(i int) (Entry, error) {
	if i < 0 || i >= a.Len() {
		return Entry{}, fmt.Errorf("%w: %d", ErrIndexRange, i)
	}
	return a.entries[i], nil
}

// Entries 按 z 序（从前到后）返回条目副本
func (a *Archive) Entries() []Entry {
	out := make([]Entry, a.Len())
	if a != nil {
		copy(out, a.entries)
	}
	return out
}

func (a *Archive) Masks() []Mask {
	out := make([]Mask, a.Len())
	for i := range out {
		out[i] = a.entries[i].Mask
	}
	return out
}

func (a *Archive) Labels() []string {
	out := make([]string, a.Len())
	for i := range out {
		out[i] = a.entries[i].Label
	}
	return out
}

// FillLabels 让标签数与掩码数一致：不足时复制最后一个标签，
// 没有任何标签时使用 fallback，多余的标签被截断
func FillLabels(labels []string, n int, fallback string) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(labels):
			out[i] = labels[i]
		case len(labels) > 0:
			out[i] = labels[len(labels)-1]
		default:
			out[i] = fallback
		}
	}
	return out
}

// EditBatch 本次会话中新绘制或修改、尚未合并的掩码，下标 0 在最前
type EditBatch struct {
	Masks  []Mask
	Labels []string
}

func (b *EditBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Masks)
}

// EffectiveLabels 返回补齐后的标签列表
func (b *EditBatch) EffectiveLabels() []string {
	if b == nil {
		return nil
	}
	return FillLabels(b.Labels, len(b.Masks), DefaultClass)
}

// Prepend 将掩码放到最前
func (b *EditBatch) Prepend(m Mask, label string) {
	labels := b.EffectiveLabels()
	b.Masks = append([]Mask{m}, b.Masks...)
	b.Labels = append([]string{label}, labels...)
}

// MoveToFront 将第 i 个条目移到最前，其余相对顺序不变
func (b *EditBatch) MoveToFront(i int) error {
	if i < 0 || i >= b.Len() {
		return fmt.Errorf("%w: %d", ErrIndexRange, i)
	}
	labels := b.EffectiveLabels()
	m, l := b.Masks[i], labels[i]
	copy(b.Masks[1:i+1], b.Masks[:i])
	copy(labels[1:i+1], labels[:i])
	b.Masks[0], labels[0] = m, l
	b.Labels = labels
	return nil
}
