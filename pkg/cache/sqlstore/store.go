package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"objloader/pkg/cache"
	"objloader/pkg/core"
	"objloader/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// queryChunk 控制 IN (...) 的参数个数，避开 sqlite 的变量上限
const queryChunk = 500

// Store 是基于 GORM 的缓存后端 (sqlite / postgres)
type Store struct {
	conn   *gorm.DB
	closed atomic.Bool
}

var _ cache.Backend = (*Store)(nil)

// New 使用现有的 GORM 连接
// 这对于依赖注入、复用连接池或单元测试非常有用。
func New(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

// OpenStore 打开连接、迁移并返回 Store
func OpenStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// AutoMigrate 确保 objects 表存在
func (s *Store) AutoMigrate() error {
	return s.conn.AutoMigrate(&ObjectModel{})
}

func (s *Store) GetAll(ctx context.Context, ids []types.Hash) ([]*core.Item, error) {
	if s.closed.Load() {
		return nil, cache.ErrClosed
	}

	found := make(map[string]*core.Node, len(ids))
	for start := 0; start < len(ids); start += queryChunk {
		end := min(start+queryChunk, len(ids))
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, string(id))
		}

		var rows []ObjectModel
		err := s.conn.WithContext(ctx).
			Select("id", "data").
			Where("id IN ?", keys).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query objects: %w", err)
		}

		for _, row := range rows {
			n, err := core.DecodeNode(types.Hash(row.ID), row.Data)
			if err != nil {
				return nil, err
			}
			found[row.ID] = n
		}
	}

	out := make([]*core.Item, len(ids))
	for i, id := range ids {
		if n, ok := found[string(id)]; ok {
			it := core.NewItem(n)
			out[i] = &it
		}
	}
	return out, nil
}

// PutAll 幂等写入：主键冲突时什么都不做 (Do Nothing)
func (s *Store) PutAll(ctx context.Context, items []core.Item) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}
	if err := cache.ValidateItems(items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	// 1. 转换 Model
	models := make([]ObjectModel, 0, len(items))
	for _, it := range items {
		m, err := toModel(it.Base)
		if err != nil {
			return err
		}
		models = append(models, m)
	}

	// 2. 单事务写入
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}}, // 冲突列
			DoNothing: true,                          // 忽略
		}).CreateInBatches(models, 100).Error
		if err != nil {
			return fmt.Errorf("failed to persist objects: %w", err)
		}
		return nil
	})
}

// Count 返回表中的对象数
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.conn.WithContext(ctx).Model(&ObjectModel{}).Count(&count).Error
	return count, err
}

// Close 关闭底层连接池，幂等
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(n *core.Node) (ObjectModel, error) {
	data, err := n.Bytes()
	if err != nil {
		return ObjectModel{}, err
	}
	links, err := json.Marshal(n.Children())
	if err != nil {
		return ObjectModel{}, fmt.Errorf("failed to marshal links: %w", err)
	}
	return ObjectModel{
		ID:    string(n.ID()),
		Type:  string(n.Type()),
		Links: datatypes.JSON(links),
		Data:  data,
		Size:  len(data),
	}, nil
}
