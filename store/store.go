package store

// 注意：此包只包含实现，接口定义在 core 包。
// 使用 core.Store 接口，key 不存在时返回 core.ErrStoreNotFound。
//
// 示例：
//   var cache core.Store = NewMemoryStore(10000)
//   shared, err := NewRedisStore("localhost:6379", 0)
