package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"objloader/pkg/cache"
	"objloader/pkg/core"
	"objloader/pkg/types"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

const keyPrefix = "obj:"

// Config 配置嵌入式 KV 缓存
type Config struct {
	Dir      string // 数据目录
	InMemory bool   // 纯内存模式 (测试用)，忽略 Dir
	Logger   *slog.Logger
}

// Store 是基于 badger 的本地持久缓存
// value 是 zstd 压缩后的节点 body，key 为 "obj:<id>"
// 同一个进程内可以反复 Open / Close
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu sync.RWMutex
	db *badgerdb.DB

	enc *zstd.Encoder
	dec *zstd.Decoder
}

var (
	_ cache.Backend = (*Store)(nil)
	_ cache.Hinter  = (*Store)(nil)
)

// New 创建并立即打开 Store
func New(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger cache: dir is required")
	}

	// EncodeAll / DecodeAll 可以并发调用，整个 Store 共用一对编解码器
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{cfg: cfg, logger: logger, enc: enc, dec: dec}
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open 打开底层数据库；已经打开时什么也不做
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	opts := badgerdb.DefaultOptions(s.cfg.Dir).WithLogger(nil)
	if s.cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger at %q: %w", s.cfg.Dir, err)
	}
	s.db = db
	s.logger.Debug("badger cache opened", slog.String("dir", s.cfg.Dir), slog.Bool("in_memory", s.cfg.InMemory))
	return nil
}

// Close 关闭底层数据库，幂等；之后可以再次 Open
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) GetAll(ctx context.Context, ids []types.Hash) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, cache.ErrClosed
	}

	out := make([]*core.Item, len(ids))
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for i, id := range ids {
			n, err := s.getNode(txn, id)
			if err != nil {
				return err
			}
			if n != nil {
				it := core.NewItem(n)
				out[i] = &it
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutAll 一次调用对应一个 badger 事务
func (s *Store) PutAll(ctx context.Context, items []core.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cache.ValidateItems(items); err != nil {
		return err
	}

	// 1. 事务外先序列化 + 压缩
	values := make([][]byte, len(items))
	for i, it := range items {
		raw, err := it.Base.Bytes()
		if err != nil {
			return err
		}
		values[i] = s.enc.EncodeAll(raw, nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return cache.ErrClosed
	}

	// 2. 单事务写入，相同 id 覆盖为相同内容，天然幂等
	return s.db.Update(func(txn *badgerdb.Txn) error {
		for i, it := range items {
			if err := txn.Set(objectKey(it.BaseID), values[i]); err != nil {
				return fmt.Errorf("failed to set %s: %w", it.BaseID.Short(), err)
			}
		}
		return nil
	})
}

func (s *Store) Peek(id types.Hash) (*core.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, false
	}

	var n *core.Node
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		n, err = s.getNode(txn, id)
		return err
	})
	if err != nil {
		s.logger.Warn("badger peek failed", slog.String("id", id.Short()), slog.Any("error", err))
		return nil, false
	}
	return n, n != nil
}

// getNode 未命中时返回 (nil, nil)
func (s *Store) getNode(txn *badgerdb.Txn, id types.Hash) (*core.Node, error) {
	item, err := txn.Get(objectKey(id))
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", id.Short(), err)
	}

	var n *core.Node
	err = item.Value(func(val []byte) error {
		raw, err := s.dec.DecodeAll(val, nil)
		if err != nil {
			return fmt.Errorf("failed to decompress %s: %w", id.Short(), err)
		}
		n, err = core.DecodeNode(id, raw)
		return err
	})
	return n, err
}

func objectKey(id types.Hash) []byte {
	return []byte(keyPrefix + string(id))
}
