package dataset

import (
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultCacheSize = 4

// Loader 数据集加载入口,默认数据集经过 LRU 缓存
type Loader struct {
	defaultPath string
	cache       *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	ds      *Dataset
	modTime time.Time
	size    int64
}

// NewLoader 创建加载器
func NewLoader(defaultPath string, cacheSize int) *Loader {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Loader{defaultPath: defaultPath, cache: cache}
}

// DefaultPath 默认数据集路径
func (l *Loader) DefaultPath() string { return l.defaultPath }

// Default 加载默认数据集,文件未变化时命中缓存
func (l *Loader) Default() (*Dataset, error) {
	info, err := os.Stat(l.defaultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDefaultDatasetMissing
		}
		return nil, fmt.Errorf("stat default dataset: %w", err)
	}

	if entry, ok := l.cache.Get(l.defaultPath); ok &&
		entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.ds, nil
	}

	ds, err := LoadFile(l.defaultPath)
	if err != nil {
		return nil, err
	}
	l.cache.Add(l.defaultPath, cacheEntry{ds: ds, modTime: info.ModTime(), size: info.Size()})
	zap.L().Info("default dataset loaded",
		zap.String("path", l.defaultPath),
		zap.Int("rows", ds.Len()),
		zap.Int("dropped", ds.Dropped))
	return ds, nil
}
