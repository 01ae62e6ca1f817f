package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"objloader/pkg/core"
	"objloader/pkg/storage"
	"objloader/pkg/types"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /var/lib/objl/objects
}

var _ storage.Store = (*Adapter)(nil)

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回哈希对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: hash "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(id types.Hash) string {
	hash := string(id)
	return filepath.Join(s.rootPath, hash[:2], hash[2:])
}

func (s *Adapter) Put(ctx context.Context, n *core.Node) error {
	// ID 来自网络，只接受完整的 hex 哈希，避免拼出越界路径
	id := n.ID()
	if !id.IsValid() {
		return fmt.Errorf("%w: %q", storage.ErrInvalidID, id)
	}
	targetPath := s.layout(id)

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil // 已经存在，直接跳过 (CAS 的好处)
	}

	data, err := n.Bytes()
	if err != nil {
		return err
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 3. 原子写入 (Atomic Write)
	// 先写到一个临时文件，然后 Rename。
	// 这样保证要么文件不存在，要么文件是完整的。
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	tempFile.Close() // 必须先关闭才能 Rename

	// 4. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, id types.Hash) (io.ReadCloser, error) {
	if !id.IsValid() {
		return nil, storage.ErrNotFound
	}

	f, err := os.Open(s.layout(id))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, id types.Hash) (bool, error) {
	if !id.IsValid() {
		return false, nil
	}
	_, err := os.Stat(s.layout(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ExpandHash 在分片目录里按前缀查找
func (s *Adapter) ExpandHash(ctx context.Context, prefix string) (types.Hash, error) {
	if len(prefix) < storage.MinPrefixLen {
		return "", fmt.Errorf("hash prefix too short")
	}
	if len(prefix) == 64 {
		if ok, err := s.Has(ctx, types.Hash(prefix)); err != nil || !ok {
			return "", storage.ErrNotFound
		}
		return types.Hash(prefix), nil
	}

	entries, err := os.ReadDir(filepath.Join(s.rootPath, filepath.Base(prefix[:2])))
	if os.IsNotExist(err) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	var match types.Hash
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "temp-") || !strings.HasPrefix(name, prefix[2:]) {
			continue
		}
		if match != "" {
			return "", storage.ErrAmbiguousHash
		}
		match = types.Hash(prefix[:2] + name)
	}
	if match == "" {
		return "", storage.ErrNotFound
	}
	return match, nil
}
