package client

import (
	"taskboard/internal/cache"
	"taskboard/internal/models"
)

// CacheKey names one cached read: the operation plus its normalized
// filter or record id. The server cache keys its entries the same way.
type CacheKey = cache.Key

func ListKey(filter models.TaskFilter) CacheKey {
	return cache.ListKey(filter)
}

func DetailKey(id uint) CacheKey {
	return cache.DetailKey(id)
}
