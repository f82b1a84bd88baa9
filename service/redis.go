package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Record 一条键值记录，每个字段保存为一段 JSON
type Record map[string]json.RawMessage

// RecordStore 小型 JSON 记录的键值存储
type RecordStore interface {
	Get(ctx context.Context, table, key string) (Record, bool, error)
	Put(ctx context.Context, table, key string, record Record) error
	UpdateField(ctx context.Context, table, key, field string, value interface{}) error
	Delete(ctx context.Context, table, key string) error
}

// DraftStore 保存会话中尚未合并的草稿
type DraftStore interface {
	GetDraft(ctx context.Context, key string) (*model.Draft, error)
	SetDraft(ctx context.Context, key string, d *model.Draft) error
	DeleteDraft(ctx context.Context, key string) error
}

// Locker 以图片为粒度的互斥
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

var (
	_ RecordStore = (*RedisService)(nil)
	_ DraftStore  = (*RedisService)(nil)
	_ Locker      = (*RedisService)(nil)
)

// 仅当锁仍由当前持有者持有时才删除
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisService struct {
	client    *redis.Client
	ttl       time.Duration
	codec     *ArchiveCodec
	lockTTL   time.Duration
	lockWait  time.Duration
	lockRetry time.Duration
}

func NewRedisService(cfg *config.RedisConfig, lock *config.LockConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client:    client,
		ttl:       cfg.TTL,
		codec:     NewArchiveCodec(),
		lockTTL:   lock.TTL,
		lockWait:  lock.Wait,
		lockRetry: lock.RetryInterval,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func recordKey(table, key string) string {
	return "record:" + table + ":" + key
}

// Get 读取记录，不存在时 ok 为 false
func (s *RedisService) Get(ctx context.Context, table, key string) (Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, recordKey(table, key)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	rec := make(Record, len(fields))
	for k, v := range fields {
		rec[k] = json.RawMessage(v)
	}
	return rec, true, nil
}

// Put 整体替换记录
func (s *RedisService) Put(ctx context.Context, table, key string, record Record) error {
	k := recordKey(table, key)
	values := make(map[string]interface{}, len(record))
	for field, raw := range record {
		if !json.Valid(raw) {
			return fmt.Errorf("%w: field %q is not valid json", ErrInvalidInput, field)
		}
		values[field] = string(raw)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(values) > 0 {
			pipe.HSet(ctx, k, values)
		}
		return nil
	})
	return err
}

// UpdateField 更新单个字段，记录不存在时创建
func (s *RedisService) UpdateField(ctx context.Context, table, key, field string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, recordKey(table, key), field, string(data)).Err()
}

func (s *RedisService) Delete(ctx context.Context, table, key string) error {
	return s.client.Del(ctx, recordKey(table, key)).Err()
}

func draftKey(key string) string {
	return "draft:" + key
}

// GetDraft 从缓存获取草稿，不存在时返回 nil
func (s *RedisService) GetDraft(ctx context.Context, key string) (*model.Draft, error) {
	data, err := s.client.Get(ctx, draftKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	d, err := s.codec.DecodeDraft(data)
	if err != nil {
		utils.Logger.Error("failed to decode draft",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return d, nil
}

// SetDraft 保存草稿并刷新过期时间
func (s *RedisService) SetDraft(ctx context.Context, key string, d *model.Draft) error {
	data, err := s.codec.EncodeDraft(d)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, draftKey(key), data, s.ttl).Err()
}

func (s *RedisService) DeleteDraft(ctx context.Context, key string) error {
	return s.client.Del(ctx, draftKey(key)).Err()
}

// Lock 获取图片锁，在 lockWait 内按 lockRetry 间隔重试
func (s *RedisService) Lock(ctx context.Context, key string) (func(), error) {
	k := "lock:" + key
	token := utils.GenerateToken()

	ctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	for {
		ok, err := s.client.SetNX(ctx, k, token, s.lockTTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if ok {
			return func() {
				// 使用独立的 context，保证请求结束后仍能释放
				rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer rcancel()
				if err := unlockScript.Run(rctx, s.client, []string{k}, token).Err(); err != nil {
					utils.Logger.Warn("failed to release image lock",
						zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-time.After(s.lockRetry):
		}
	}
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
