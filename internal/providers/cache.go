package providers

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// CachedHost wraps a Host with an LRU cache over GetFileContent. File
// contents at a fixed ref are immutable, so cache entries never need
// invalidation; refinement cycles in one conversation hit the same paths
// repeatedly.
type CachedHost struct {
	Host
	contents *lru.Cache[string, string]
}

// NewCachedHost wraps host. size is the maximum number of cached files.
func NewCachedHost(host Host, size int) (*CachedHost, error) {
	if size < 1 {
		size = 128
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &CachedHost{Host: host, contents: cache}, nil
}

func (c *CachedHost) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	key := path + "@" + ref
	if content, ok := c.contents.Get(key); ok {
		log.Debug().Str("path", path).Str("ref", ref).Msg("file content cache hit")
		return content, nil
	}

	content, err := c.Host.GetFileContent(ctx, path, ref)
	if err != nil {
		return "", err
	}
	c.contents.Add(key, content)
	return content, nil
}
