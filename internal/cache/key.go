package cache

import (
	"fmt"

	"taskboard/internal/models"
)

type Op string

const (
	OpList   Op = "list"
	OpDetail Op = "detail"
)

const keyPrefix = "tasks"

// Key identifies one cached read. List keys carry the normalized filter,
// so two filters selecting the same rows share an entry.
type Key struct {
	Op     Op
	Filter string
	ID     uint
}

func ListKey(filter models.TaskFilter) Key {
	return Key{Op: OpList, Filter: filter.Key()}
}

func DetailKey(id uint) Key {
	return Key{Op: OpDetail, ID: id}
}

func (k Key) String() string {
	if k.Op == OpDetail {
		return fmt.Sprintf("%s:%s:%d", keyPrefix, k.Op, k.ID)
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, k.Op, k.Filter)
}

// ListPattern matches every list key.
func ListPattern() string {
	return fmt.Sprintf("%s:%s:*", keyPrefix, OpList)
}
