// Package cache 提供进程内的带过期时间的 LRU 缓存，用于缓存主题列表、标签目录等读多写少的数据。
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultMaxSize 默认最大条目数
const DefaultMaxSize = 512

// minTTL 为单个条目允许的最短过期时间
var minTTL = time.Second

// TTLCache 是并发安全的 LRU 缓存，每个条目拥有独立的过期时间。
// 读取不会延长过期时间；过期条目在读取时视为不存在，并由 PurgeExpired 统一清理。
type TTLCache struct {
	items *ttlcache.Cache[string, interface{}]
}

// New 创建一个 TTLCache，maxSize <= 0 时使用 DefaultMaxSize。
func New(maxSize int) *TTLCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &TTLCache{
		items: ttlcache.New[string, interface{}](
			ttlcache.WithCapacity[string, interface{}](uint64(maxSize)),
			ttlcache.WithDisableTouchOnHit[string, interface{}](),
		),
	}
}

// Get 返回未过期的缓存值，并将其标记为最近使用。
func (c *TTLCache) Get(key string) (interface{}, bool) {
	item := c.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

// Set 写入缓存，ttl 小于最短过期时间时按最短过期时间处理。超出容量时淘汰最久未使用的条目。
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl < minTTL {
		ttl = minTTL
	}
	c.items.Set(key, value, ttl)
}

// Delete 删除一个条目。
func (c *TTLCache) Delete(key string) {
	c.items.Delete(key)
}

// Clear 清空缓存
func (c *TTLCache) Clear() {
	c.items.DeleteAll()
}

// Len 返回当前条目数
func (c *TTLCache) Len() int {
	return c.items.Len()
}

// PurgeExpired 清理全部过期条目，由定时任务周期性调用。
func (c *TTLCache) PurgeExpired() {
	c.items.DeleteExpired()
}
