package service

import (
	"fmt"

	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"go.uber.org/zap"
)

// Reconcile 合并存档与编辑批次，生成下一版存档。
// 新条目在前（z 序靠前），旧条目在后，标签为 DELETE 的条目被丢弃。
// 旧条目的掩码与标签数量不一致视为存档损坏。
func Reconcile(oldMasks []model.Mask, oldLabels []string, newMasks []model.Mask, newLabels []string) ([]model.Mask, []string, error) {
	if len(oldMasks) != len(oldLabels) {
		utils.Logger.Error("archive mask/label count mismatch",
			zap.Int("masks", len(oldMasks)),
			zap.Int("labels", len(oldLabels)))
		return nil, nil, fmt.Errorf("%w: %d masks, %d labels", model.ErrLabelMismatch, len(oldMasks), len(oldLabels))
	}

	newLabels = model.FillLabels(newLabels, len(newMasks), model.DefaultClass)

	total := len(newMasks) + len(oldMasks)
	masks := make([]model.Mask, 0, total)
	labels := make([]string, 0, total)

	keep := func(m model.Mask, label string) {
		if label == model.DeleteLabel {
			return
		}
		masks = append(masks, m)
		labels = append(labels, label)
	}

	for i := range newMasks {
		keep(newMasks[i], newLabels[i])
	}
	for i := range oldMasks {
		keep(oldMasks[i], oldLabels[i])
	}

	return masks, labels, nil
}

// ReconcileArchive 以存档条目的当前标签（可为空，表示沿用存档中的标签）
// 和编辑批次生成新存档
func ReconcileArchive(old *model.Archive, oldLabels []string, batch *model.EditBatch) (*model.Archive, error) {
	if oldLabels == nil {
		oldLabels = old.Labels()
	}

	var newMasks []model.Mask
	var newLabels []string
	if batch != nil {
		newMasks = batch.Masks
		newLabels = batch.Labels
	}

	masks, labels, err := Reconcile(old.Masks(), oldLabels, newMasks, newLabels)
	if err != nil {
		return nil, err
	}
	return model.NewArchive(masks, labels)
}
