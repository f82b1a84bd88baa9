package model

import (
	"errors"
	"fmt"
)

// Source 指明条目位于持久化存档还是当前草稿
type Source string

const (
	SourceArchive Source = "archive"
	SourceDraft   Source = "draft"
)

var ErrUnknownSource = errors.New("unknown entry source")

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceArchive, SourceDraft:
		return Source(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Draft 一次编辑会话的状态：存档条目的当前标签（可能被重新指定或标记 DELETE）
// 以及尚未合并的 EditBatch。
// ArchiveChecksum 是草稿创建时存档内容的摘要，存档不存在时为空；
// 存档被替换后摘要不再匹配，草稿即失效。
// LastAction 为最近一次已应用的客户端操作 ID。
type Draft struct {
	ArchiveChecksum string
	ArchiveLabels   []string
	Batch           EditBatch
	LastAction      string
}

// NewDraft 以存档当前的标签初始化草稿
func NewDraft(a *Archive, checksum string) *Draft {
	return &Draft{ArchiveChecksum: checksum, ArchiveLabels: a.Labels()}
}

// BasedOn 判断草稿是否基于给定摘要的存档
func (d *Draft) BasedOn(checksum string) bool {
	return d.ArchiveChecksum == checksum
}

// Applied 判断带 ID 的操作是否已经应用过；ID 为空时总是返回 false
func (d *Draft) Applied(action string) bool {
	return action != "" && action == d.LastAction
}

// Record 记录已应用的操作 ID
func (d *Draft) Record(action string) {
	if action != "" {
		d.LastAction = action
	}
}

// Entry 返回指定来源和下标处的条目
func (d *Draft) Entry(a *Archive, src Source, i int) (Entry, error) {
	switch src {
	case SourceArchive:
		e, err := a.Entry(i)
		if err != nil {
			return Entry{}, err
		}
		if i < len(d.ArchiveLabels) {
			e.Label = d.ArchiveLabels[i]
		}
		return e, nil
	case SourceDraft:
		if i < 0 || i >= d.Batch.Len() {
			return Entry{}, fmt.Errorf("%w: %d", ErrIndexRange, i)
		}
		return Entry{Mask: d.Batch.Masks[i], Label: d.Batch.EffectiveLabels()[i]}, nil
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownSource, src)
}

// SetLabel 修改标签；label 为 DeleteLabel 即删除
func (d *Draft) SetLabel(src Source, i int, label string) error {
	switch src {
	case SourceArchive:
		if i < 0 || i >= len(d.ArchiveLabels) {
			return fmt.Errorf("%w: %d", ErrIndexRange, i)
		}
		d.ArchiveLabels[i] = label
		return nil
	case SourceDraft:
		if i < 0 || i >= d.Batch.Len() {
			return fmt.Errorf("%w: %d", ErrIndexRange, i)
		}
		labels := d.Batch.EffectiveLabels()
		labels[i] = label
		d.Batch.Labels = labels
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownSource, src)
}

// BringToFront 将条目移到最前，返回值表示是否发生了变化。
// 存档条目被复制到草稿最前并在存档中标记 DELETE，合并后效果等同移动；
// 已标记删除的条目不再处理，因此对存档条目重复提交不会产生重复条目。
// 草稿条目按下标移动，移动后下标指向的已是另一条目，
// 所以对同一 (draft, i) 重复调用会移动不同的掩码；需要去重的调用方应使用 Applied/Record。
func (d *Draft) BringToFront(a *Archive, src Source, i int) (bool, error) {
	switch src {
	case SourceArchive:
		if len(d.ArchiveLabels) != a.Len() {
			return false, fmt.Errorf("%w: draft has %d labels, archive %d entries", ErrLabelMismatch, len(d.ArchiveLabels), a.Len())
		}
		e, err := d.Entry(a, src, i)
		if err != nil {
			return false, err
		}
		if e.Deleted() {
			return false, nil
		}
		d.Batch.Prepend(e.Mask, e.Label)
		d.ArchiveLabels[i] = DeleteLabel
		return true, nil
	case SourceDraft:
		e, err := d.Entry(a, src, i)
		if err != nil {
			return false, err
		}
		if e.Deleted() || i == 0 {
			return false, nil
		}
		return true, d.Batch.MoveToFront(i)
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownSource, src)
}
