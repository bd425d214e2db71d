package threadstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/changesmith/internal/conversation"
)

// CachedStore fronts another store with an LRU read cache. The engine
// already serializes access per key, so a simple write-through cache with
// delete-on-delete is enough. The cache keeps private clones and hands out
// clones: a conversation returned to one caller is never the value a later
// Put rewrites, which is what the Store contract requires for concurrent
// API reads.
type CachedStore struct {
	inner conversation.Store
	cache *lru.Cache[string, *conversation.Conversation]
}

// NewCachedStore wraps inner with an LRU of the given size.
func NewCachedStore(inner conversation.Store, size int) (*CachedStore, error) {
	if size < 1 {
		size = 256
	}
	cache, err := lru.New[string, *conversation.Conversation](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	if conv, ok := s.cache.Get(id); ok {
		return conv.Clone(), nil
	}
	conv, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, conv)
	return conv.Clone(), nil
}

func (s *CachedStore) Put(ctx context.Context, conv *conversation.Conversation) error {
	if err := s.inner.Put(ctx, conv); err != nil {
		return err
	}
	s.cache.Add(conv.ID, conv.Clone())
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	s.cache.Remove(id)
	return s.inner.Delete(ctx, id)
}

func (s *CachedStore) List(ctx context.Context) ([]*conversation.Conversation, error) {
	return s.inner.List(ctx)
}
