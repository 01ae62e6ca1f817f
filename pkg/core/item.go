package core

import (
	"errors"
	"fmt"

	"objloader/pkg/types"
)

var ErrIDMismatch = errors.New("item baseId does not match base.id")

// Item 是存储/传输单元：{baseId, base}
// baseId 必须等于 base.ID()，每次持久化前都会校验
type Item struct {
	BaseID types.Hash
	Base   *Node
}

func NewItem(n *Node) Item {
	return Item{BaseID: n.ID(), Base: n}
}

// Validate 校验 baseId === base.id
func (it Item) Validate() error {
	if it.Base == nil {
		return fmt.Errorf("%w: %s has no base", ErrIDMismatch, it.BaseID.Short())
	}
	if it.BaseID.IsZero() {
		return fmt.Errorf("%w: empty baseId", ErrIDMismatch)
	}
	if it.BaseID != it.Base.ID() {
		return fmt.Errorf("%w: %s != %s", ErrIDMismatch, it.BaseID.Short(), it.Base.ID().Short())
	}
	return nil
}
