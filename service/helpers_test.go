package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/model"
)

func newTestRedis(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc := NewRedisService(&config.RedisConfig{
		Addr: mr.Addr(),
		TTL:  time.Hour,
	}, &config.LockConfig{
		TTL:           5 * time.Second,
		Wait:          200 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
	})
	t.Cleanup(func() { svc.Close() })
	return svc, mr
}

func newTestBlobs(t *testing.T) *FileBlobStore {
	t.Helper()
	blobs, err := NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return blobs
}

var errStorageDown = errors.New("storage unavailable")

// failingBlobStore 对 failPath 的写入返回 errStorageDown，其余操作交给内部存储
type failingBlobStore struct {
	BlobStore
	failPath string
}

func (s *failingBlobStore) Write(ctx context.Context, path string, data []byte) error {
	if path == s.failPath {
		return fmt.Errorf("write %s: %w", path, errStorageDown)
	}
	return s.BlobStore.Write(ctx, path, data)
}

// squareMask 返回 [x0,x1]x[y0,y1] 闭区间为 true 的掩码
func squareMask(w, h, x0, y0, x1, y1 int) model.Mask {
	m := model.NewMask(w, h)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			m.Set(x, y, true)
		}
	}
	return m
}

func square(x0, y0, x1, y1 float64) model.Polygon {
	return model.Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func solidImage(w, h int, c model.RGB) model.Image {
	img := model.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func mustArchive(t *testing.T, masks []model.Mask, labels []string) *model.Archive {
	t.Helper()
	a, err := model.NewArchive(masks, labels)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
