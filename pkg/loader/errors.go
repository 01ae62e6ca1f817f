package loader

import (
	"errors"
	"fmt"

	"objloader/pkg/types"
)

var (
	ErrCanceled    = errors.New("load session canceled")
	ErrClosed      = errors.New("loader closed")
	ErrEmptyRootID = errors.New("root id is empty")
)

// PersistenceError 表示一批节点没能写进本地缓存
// 它只通过 OnError 上报，已交付的节点不受影响
type PersistenceError struct {
	IDs []types.Hash
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %d items: %v", len(e.IDs), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
