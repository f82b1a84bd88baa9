package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"go.uber.org/zap"
)

// AnnotationService 负责单张图片的标注会话：绘制、排序、删除、渲染与保存
type AnnotationService struct {
	blobs        BlobStore
	drafts       DraftStore
	locker       Locker
	projects     *ProjectService
	codec        *ArchiveCodec
	processor    *MaskProcessor
	compositor   *Compositor
	preview      *PreviewRenderer
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewAnnotationService(cfg *config.RenderConfig, blobs BlobStore, drafts DraftStore, locker Locker, projects *ProjectService) *AnnotationService {
	return &AnnotationService{
		blobs:        blobs,
		drafts:       drafts,
		locker:       locker,
		projects:     projects,
		codec:        NewArchiveCodec(),
		processor:    NewMaskProcessor(),
		compositor:   NewCompositor(),
		preview:      NewPreviewRenderer(cfg),
		semaphore:    make(chan struct{}, max(1, cfg.MaxConcurrent)),
		queueTimeout: time.Duration(cfg.QueueTimeout) * time.Second,
	}
}

// session 一次请求中加载的存档与草稿
type session struct {
	archive *model.Archive
	draft   *model.Draft
}

// acquire 限制同时进行的渲染数量
func (s *AnnotationService) acquire(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	select {
	case s.semaphore <- struct{}{}:
		return func() { <-s.semaphore }, nil
	case <-ctx.Done():
		return nil, ErrQueueFull
	}
}

func (s *AnnotationService) withLock(ctx context.Context, ref ImageRef, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, ref.Key())
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// LoadImage 读取并解码原图
func (s *AnnotationService) LoadImage(ctx context.Context, ref ImageRef) (model.Image, error) {
	data, err := s.blobs.Load(ctx, ref.ImagePath())
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return model.Image{}, fmt.Errorf("%w: image %s", ErrNotFound, ref.Filename)
		}
		return model.Image{}, fmt.Errorf("failed to load image: %w", err)
	}
	return DecodeImage(data)
}

// LoadArchive 读取图片的掩码存档，不存在时返回空存档
func (s *AnnotationService) LoadArchive(ctx context.Context, ref ImageRef) (*model.Archive, error) {
	archive, _, err := s.loadArchive(ctx, ref)
	return archive, err
}

// loadArchive 同时返回存档字节的摘要，存档不存在时摘要为空
func (s *AnnotationService) loadArchive(ctx context.Context, ref ImageRef) (*model.Archive, string, error) {
	data, err := s.blobs.Load(ctx, ref.ArchivePath())
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			archive, err := model.NewArchive(nil, nil)
			return archive, "", err
		}
		return nil, "", fmt.Errorf("failed to load archive: %w", err)
	}

	archive, _, err := s.codec.Decode(data)
	if err != nil {
		utils.Logger.Error("failed to decode archive",
			zap.String("path", ref.ArchivePath()),
			zap.Error(err))
		return nil, "", err
	}
	return archive, utils.BytesMD5(data), nil
}

func (s *AnnotationService) loadSession(ctx context.Context, ref ImageRef) (*session, error) {
	archive, checksum, err := s.loadArchive(ctx, ref)
	if err != nil {
		return nil, err
	}

	draft, err := s.drafts.GetDraft(ctx, ref.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if draft == nil {
		draft = model.NewDraft(archive, checksum)
	} else if !draft.BasedOn(checksum) || len(draft.ArchiveLabels) != archive.Len() {
		// 存档已被替换或已保存过这份草稿，以存档为准
		utils.Logger.Warn("draft belongs to a replaced archive, discarding",
			zap.String("image", ref.Key()),
			zap.String("draft_archive", draft.ArchiveChecksum),
			zap.String("archive", checksum),
			zap.Int("draft_entries", draft.Batch.Len()))
		draft = model.NewDraft(archive, checksum)
	}

	return &session{archive: archive, draft: draft}, nil
}

// mutate 在图片锁内修改草稿并写回
func (s *AnnotationService) mutate(ctx context.Context, ref ImageRef, fn func(sess *session) (bool, error)) error {
	return s.withLock(ctx, ref, func() error {
		sess, err := s.loadSession(ctx, ref)
		if err != nil {
			return err
		}
		changed, err := fn(sess)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.drafts.SetDraft(ctx, ref.Key(), sess.draft)
	})
}

func (s *AnnotationService) checkLabel(ctx context.Context, ref ImageRef, label string) error {
	options, err := s.projects.LabelOptions(ctx, ref.User, ref.Project)
	if err != nil {
		return err
	}
	if !slices.Contains(options, label) {
		return fmt.Errorf("%w: unknown class %q", ErrInvalidInput, label)
	}
	return nil
}

// DrawMask 将闭合路径栅格化为新掩码并放到草稿最前，
// label 为空时使用项目的第一个类别。
// action 非空时，同一 action 的重复提交不会再次添加掩码。
func (s *AnnotationService) DrawMask(ctx context.Context, ref ImageRef, polygons []model.Polygon, label, action string) (*model.Layer, error) {
	img, err := s.LoadImage(ctx, ref)
	if err != nil {
		return nil, err
	}

	if label == "" {
		options, err := s.projects.LabelOptions(ctx, ref.User, ref.Project)
		if err != nil {
			return nil, err
		}
		label = model.DefaultClass
		if len(options) > 0 {
			label = options[0]
		}
	} else if err := s.checkLabel(ctx, ref, label); err != nil {
		return nil, err
	}

	mask, err := s.processor.Rasterize(polygons, img.Height, img.Width)
	if err != nil {
		return nil, err
	}
	if mask.Empty() {
		utils.Logger.Warn("drawn mask is empty",
			zap.String("image", ref.Key()),
			zap.Int("polygons", len(polygons)))
	}

	err = s.mutate(ctx, ref, func(sess *session) (bool, error) {
		if sess.draft.Applied(action) {
			return false, nil
		}
		sess.draft.Batch.Prepend(mask, label)
		sess.draft.Record(action)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return &model.Layer{
		Source:      model.SourceDraft,
		Index:       0,
		Label:       label,
		BoundingBox: s.processor.BoundingBox(mask),
		Area:        mask.Count(),
	}, nil
}

// BringToFront 将条目移到最前。
// 草稿条目按下标移动，action 非空时同一 action 只生效一次。
func (s *AnnotationService) BringToFront(ctx context.Context, ref ImageRef, src model.Source, index int, action string) (bool, error) {
	var moved bool
	err := s.mutate(ctx, ref, func(sess *session) (bool, error) {
		if sess.draft.Applied(action) {
			return false, nil
		}
		changed, err := sess.draft.BringToFront(sess.archive, src, index)
		if err != nil {
			return false, wrapEntryErr(err)
		}
		if !changed {
			return false, nil
		}
		sess.draft.Record(action)
		moved = true
		return true, nil
	})
	return moved, err
}

// Delete 将条目标记为 DELETE，保存时被移除
func (s *AnnotationService) Delete(ctx context.Context, ref ImageRef, src model.Source, index int) error {
	return s.mutate(ctx, ref, func(sess *session) (bool, error) {
		if err := sess.draft.SetLabel(src, index, model.DeleteLabel); err != nil {
			return false, wrapEntryErr(err)
		}
		return true, nil
	})
}

// Relabel 为条目指定新的类别
func (s *AnnotationService) Relabel(ctx context.Context, ref ImageRef, src model.Source, index int, label string) error {
	if label != model.DeleteLabel {
		if err := s.checkLabel(ctx, ref, label); err != nil {
			return err
		}
	}
	return s.mutate(ctx, ref, func(sess *session) (bool, error) {
		if err := sess.draft.SetLabel(src, index, label); err != nil {
			return false, wrapEntryErr(err)
		}
		return true, nil
	})
}

// Discard 丢弃草稿
func (s *AnnotationService) Discard(ctx context.Context, ref ImageRef) error {
	return s.drafts.DeleteDraft(ctx, ref.Key())
}

func (s *AnnotationService) entry(ctx context.Context, ref ImageRef, src model.Source, index int) (model.Entry, error) {
	sess, err := s.loadSession(ctx, ref)
	if err != nil {
		return model.Entry{}, err
	}
	e, err := sess.draft.Entry(sess.archive, src, index)
	if err != nil {
		return model.Entry{}, wrapEntryErr(err)
	}
	return e, nil
}

// Contours 返回条目的外轮廓，用于重新编辑
func (s *AnnotationService) Contours(ctx context.Context, ref ImageRef, src model.Source, index int) ([][]model.ContourPoint, error) {
	e, err := s.entry(ctx, ref, src, index)
	if err != nil {
		return nil, err
	}
	return s.processor.Contours(e.Mask)
}

// Preview 生成条目的缩略图
func (s *AnnotationService) Preview(ctx context.Context, ref ImageRef, src model.Source, index int) ([]byte, string, error) {
	e, err := s.entry(ctx, ref, src, index)
	if err != nil {
		return nil, "", err
	}
	img, err := s.LoadImage(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	data, err := s.preview.Render(img, e.Mask)
	if err != nil {
		return nil, "", err
	}
	return data, s.preview.ContentType(), nil
}

// State 返回图片的标注状态及已保存分割图的合成结果
func (s *AnnotationService) State(ctx context.Context, ref ImageRef) (*model.AnnotationState, error) {
	img, err := s.LoadImage(ctx, ref)
	if err != nil {
		return nil, err
	}
	sess, err := s.loadSession(ctx, ref)
	if err != nil {
		return nil, err
	}
	options, err := s.projects.LabelOptions(ctx, ref.User, ref.Project)
	if err != nil {
		return nil, err
	}

	state := &model.AnnotationState{
		Image:        ref.Filename,
		Width:        img.Width,
		Height:       img.Height,
		LabelOptions: options,
		Layers:       s.layers(model.SourceArchive, sess.archive.Masks(), sess.draft.ArchiveLabels),
		DraftLayers:  s.layers(model.SourceDraft, sess.draft.Batch.Masks, sess.draft.Batch.EffectiveLabels()),
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	composite, mask, err := s.storedComposite(ctx, ref, img)
	if err != nil {
		utils.Logger.Warn("failed to render stored segmentation, showing original image",
			zap.String("image", ref.Key()),
			zap.Error(err))
		composite, err = s.originalURI(img)
		if err != nil {
			return nil, err
		}
		mask = ""
	}
	state.CompositeImage = composite
	state.MaskImage = mask

	return state, nil
}

func (s *AnnotationService) layers(src model.Source, masks []model.Mask, labels []string) []model.Layer {
	layers := make([]model.Layer, 0, len(masks))
	for i, m := range masks {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		if label == model.DeleteLabel {
			continue
		}
		layers = append(layers, model.Layer{
			Source:      src,
			Index:       i,
			Label:       label,
			BoundingBox: s.processor.BoundingBox(m),
			Area:        m.Count(),
		})
	}
	return layers
}

// storedComposite 用已保存的分割图生成合成图，未保存过时返回原图
func (s *AnnotationService) storedComposite(ctx context.Context, ref ImageRef, img model.Image) (string, string, error) {
	data, err := s.blobs.Load(ctx, ref.SegmentedPath())
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			uri, err := s.originalURI(img)
			return uri, "", err
		}
		return "", "", err
	}

	segmented, err := DecodeImage(data)
	if err != nil {
		return "", "", err
	}
	composite, err := s.compositor.Composite(img, segmented)
	if err != nil {
		return "", "", err
	}
	compositePNG, err := EncodePNG(composite)
	if err != nil {
		return "", "", err
	}
	return DataURI(compositePNG), DataURI(data), nil
}

func (s *AnnotationService) originalURI(img model.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return DataURI(data), nil
}

// Render 合成存档与草稿的当前可见状态。
// 渲染失败时返回不带掩码的原图，并设置 Fallback。
func (s *AnnotationService) Render(ctx context.Context, ref ImageRef) (*model.RenderResult, error) {
	img, err := s.LoadImage(ctx, ref)
	if err != nil {
		return nil, err
	}
	sess, err := s.loadSession(ctx, ref)
	if err != nil {
		return nil, err
	}
	palette, err := s.projects.LabelColors(ctx, ref.User, ref.Project)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result, err := s.render(img, sess, palette)
	if err != nil {
		utils.Logger.Error("failed to render composite, showing original image",
			zap.String("image", ref.Key()),
			zap.Error(err))
		uri, uerr := s.originalURI(img)
		if uerr != nil {
			return nil, uerr
		}
		return &model.RenderResult{CompositeImage: uri, Fallback: true}, nil
	}

	utils.Logger.Info("composite rendered",
		zap.String("image", ref.Key()),
		zap.Int("archive_entries", sess.archive.Len()),
		zap.Int("draft_entries", sess.draft.Batch.Len()),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

func (s *AnnotationService) render(img model.Image, sess *session, palette model.Palette) (*model.RenderResult, error) {
	archive := sess.archive.Entries()
	for i := range archive {
		archive[i].Label = sess.draft.ArchiveLabels[i]
	}
	draft := make([]model.Entry, sess.draft.Batch.Len())
	labels := sess.draft.Batch.EffectiveLabels()
	for i, m := range sess.draft.Batch.Masks {
		draft[i] = model.Entry{Mask: m, Label: labels[i]}
	}

	rendering, err := s.compositor.Render(img, archive, draft, palette)
	if err != nil {
		return nil, err
	}
	compositePNG, err := EncodePNG(rendering.Composite)
	if err != nil {
		return nil, err
	}
	maskPNG, err := EncodePNG(rendering.Flattened)
	if err != nil {
		return nil, err
	}

	return &model.RenderResult{
		CompositeImage: DataURI(compositePNG),
		MaskImage:      DataURI(maskPNG),
		MissingClasses: rendering.MissingClasses,
	}, nil
}

// Save 在图片锁内完成一次读-改-写：读取存档、合并草稿、写入分割图和新存档、清除草稿。
// 存档最后写入；写入失败时恢复旧的分割图，之前保存的存档和草稿保持不变，可以直接重试。
func (s *AnnotationService) Save(ctx context.Context, ref ImageRef) (*model.SaveResult, error) {
	img, err := s.LoadImage(ctx, ref)
	if err != nil {
		return nil, err
	}
	palette, err := s.projects.LabelColors(ctx, ref.User, ref.Project)
	if err != nil {
		return nil, err
	}

	// 排队发生在加锁之前，锁只覆盖读-改-写本身
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *model.SaveResult
	err = s.withLock(ctx, ref, func() error {
		archive, checksum, err := s.loadArchive(ctx, ref)
		if err != nil {
			return err
		}
		draft, err := s.drafts.GetDraft(ctx, ref.Key())
		if err != nil {
			return fmt.Errorf("failed to load draft: %w", err)
		}
		if draft == nil {
			draft = model.NewDraft(archive, checksum)
		} else if !draft.BasedOn(checksum) {
			// 草稿对应的存档已被替换，丢弃它，客户端重新加载后即可继续
			if err := s.drafts.DeleteDraft(ctx, ref.Key()); err != nil {
				utils.Logger.Warn("failed to discard stale draft",
					zap.String("image", ref.Key()),
					zap.Error(err))
			}
			return fmt.Errorf("%w: archive changed since the draft was created", ErrStaleDraft)
		}

		next, err := ReconcileArchive(archive, draft.ArchiveLabels, &draft.Batch)
		if err != nil {
			if errors.Is(err, model.ErrLabelMismatch) {
				return fmt.Errorf("%w: %v", ErrStaleDraft, err)
			}
			return err
		}

		// 先完成所有计算，再写存储
		encoded, err := s.codec.Encode(next, img)
		if err != nil {
			return fmt.Errorf("failed to encode archive: %w", err)
		}
		rendering, err := s.compositor.Render(img, next.Entries(), nil, palette)
		if err != nil {
			return fmt.Errorf("failed to render segmented image: %w", err)
		}
		segmented, err := EncodePNG(rendering.Flattened)
		if err != nil {
			return err
		}

		previous, err := s.blobs.Load(ctx, ref.SegmentedPath())
		if err != nil && !errors.Is(err, ErrBlobNotFound) {
			return fmt.Errorf("failed to read segmented image: %w", err)
		}
		if err := s.blobs.Write(ctx, ref.SegmentedPath(), segmented); err != nil {
			return fmt.Errorf("failed to write segmented image: %w", err)
		}
		if err := s.blobs.Write(ctx, ref.ArchivePath(), encoded); err != nil {
			s.restoreSegmented(ctx, ref, previous)
			return fmt.Errorf("failed to write archive: %w", err)
		}

		// 草稿没能清除也无妨：它的摘要已与新存档不符，下次读取时会被丢弃
		if err := s.drafts.DeleteDraft(ctx, ref.Key()); err != nil {
			utils.Logger.Error("archive saved but draft could not be cleared",
				zap.String("image", ref.Key()),
				zap.Error(err))
		}

		utils.Logger.Info("archive saved",
			zap.String("image", ref.Key()),
			zap.Int("old_entries", archive.Len()),
			zap.Int("new_entries", draft.Batch.Len()),
			zap.Int("entries", next.Len()),
			zap.Int("bytes", len(encoded)))

		result = &model.SaveResult{
			Image:    ref.Filename,
			Entries:  next.Len(),
			Checksum: utils.BytesMD5(encoded),
			SavedAt:  time.Now().Unix(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// restoreSegmented 存档写入失败后还原分割图；previous 为空表示原先没有分割图
func (s *AnnotationService) restoreSegmented(ctx context.Context, ref ImageRef, previous []byte) {
	var err error
	if previous == nil {
		err = s.blobs.Delete(ctx, ref.SegmentedPath())
	} else {
		err = s.blobs.Write(ctx, ref.SegmentedPath(), previous)
	}
	if err != nil {
		utils.Logger.Error("failed to restore segmented image",
			zap.String("image", ref.Key()),
			zap.Error(err))
	}
}

func wrapEntryErr(err error) error {
	switch {
	case errors.Is(err, model.ErrIndexRange), errors.Is(err, model.ErrUnknownSource):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, model.ErrLabelMismatch):
		return fmt.Errorf("%w: %v", ErrStaleDraft, err)
	}
	return err
}
