package stores

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/classware/access"
	"github.com/dgraph-io/ristretto"
)

var errCatalogReadOnly = errors.New("catalog store is read-only")

// CachedCatalogStore wraps a CatalogStore with a ristretto read-through cache.
// Catalog rows are reference data; grants are never cached so revocations
// stay immediate.
type CachedCatalogStore struct {
	inner access.CatalogStore
	cache *ristretto.Cache
	ttl   time.Duration
}

type CachedCatalogOption func(*CachedCatalogStore)

func WithCatalogTTL(ttl time.Duration) CachedCatalogOption {
	return func(s *CachedCatalogStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewCachedCatalogStore(inner access.CatalogStore, numCounters, maxCost, bufferItems int64, opts ...CachedCatalogOption) (*CachedCatalogStore, error) {
	if numCounters <= 0 {
		numCounters = 1e5
	}
	if maxCost <= 0 {
		maxCost = 1 << 24
	}
	if bufferItems <= 0 {
		bufferItems = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	s := &CachedCatalogStore{inner: inner, cache: cache, ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewCachedCatalogStoreFromConfig builds the cache from declarative engine
// settings; zero values fall back to the defaults above.
func NewCachedCatalogStoreFromConfig(inner access.CatalogStore, ec access.EngineConfig) (*CachedCatalogStore, error) {
	var opts []CachedCatalogOption
	if ec.CatalogCacheTTLMs > 0 {
		opts = append(opts, WithCatalogTTL(time.Duration(ec.CatalogCacheTTLMs)*time.Millisecond))
	}
	return NewCachedCatalogStore(inner, ec.CatalogCacheNumCounters, ec.CatalogCacheMaxCost, ec.CatalogCacheBuffer, opts...)
}

func (s *CachedCatalogStore) Close() {
	s.cache.Close()
}

// Writes pass through to the inner store when it accepts them. Direct entry
// keys are invalidated here; derived list keys age out via TTL.

func (s *CachedCatalogStore) PutSubject(ctx context.Context, sub *access.Subject) error {
	w, ok := s.inner.(access.CatalogWriter)
	if !ok {
		return errCatalogReadOnly
	}
	if err := w.PutSubject(ctx, sub); err != nil {
		return err
	}
	s.cache.Del("subject:" + sub.ID)
	s.cache.Del("platform-subjects:" + sub.PlatformID)
	return nil
}

func (s *CachedCatalogStore) PutTopic(ctx context.Context, t *access.Topic) error {
	w, ok := s.inner.(access.CatalogWriter)
	if !ok {
		return errCatalogReadOnly
	}
	if err := w.PutTopic(ctx, t); err != nil {
		return err
	}
	s.cache.Del("subject-topics:" + t.SubjectID)
	return nil
}

func (s *CachedCatalogStore) PutVideo(ctx context.Context, v *access.Video) error {
	w, ok := s.inner.(access.CatalogWriter)
	if !ok {
		return errCatalogReadOnly
	}
	if err := w.PutVideo(ctx, v); err != nil {
		return err
	}
	s.cache.Del("video:" + v.ID)
	s.cache.Del("subject-videos:" + v.SubjectID)
	return nil
}

func (s *CachedCatalogStore) PutMaterial(ctx context.Context, m *access.Material) error {
	w, ok := s.inner.(access.CatalogWriter)
	if !ok {
		return errCatalogReadOnly
	}
	if err := w.PutMaterial(ctx, m); err != nil {
		return err
	}
	s.cache.Del("subject-materials:" + m.SubjectID)
	return nil
}

func (s *CachedCatalogStore) PutAssessment(ctx context.Context, a *access.Assessment) error {
	w, ok := s.inner.(access.CatalogWriter)
	if !ok {
		return errCatalogReadOnly
	}
	if err := w.PutAssessment(ctx, a); err != nil {
		return err
	}
	s.cache.Del("subject-assessments:" + a.SubjectID)
	return nil
}

func (s *CachedCatalogStore) GetSubject(ctx context.Context, id string) (*access.Subject, error) {
	key := "subject:" + id
	if v, ok := s.cache.Get(key); ok {
		if sub, ok2 := v.(*access.Subject); ok2 {
			return sub, nil
		}
	}
	sub, err := s.inner.GetSubject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(key, sub, 1, s.ttl)
	return sub, nil
}

func (s *CachedCatalogStore) GetVideo(ctx context.Context, id string) (*access.Video, error) {
	key := "video:" + id
	if v, ok := s.cache.Get(key); ok {
		if vid, ok2 := v.(*access.Video); ok2 {
			return vid, nil
		}
	}
	vid, err := s.inner.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(key, vid, 1, s.ttl)
	return vid, nil
}

func (s *CachedCatalogStore) SubjectIDsByPlatform(ctx context.Context, platformID string) ([]string, error) {
	return s.cachedIDList(ctx, "platform-subjects:"+platformID, func() ([]string, error) {
		return s.inner.SubjectIDsByPlatform(ctx, platformID)
	})
}

func (s *CachedCatalogStore) TopicIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	return s.cachedIDList(ctx, "subject-topics:"+subjectID, func() ([]string, error) {
		return s.inner.TopicIDsBySubject(ctx, subjectID)
	})
}

func (s *CachedCatalogStore) VideoIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	return s.cachedIDList(ctx, "subject-videos:"+subjectID, func() ([]string, error) {
		return s.inner.VideoIDsBySubject(ctx, subjectID)
	})
}

func (s *CachedCatalogStore) MaterialIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	return s.cachedIDList(ctx, "subject-materials:"+subjectID, func() ([]string, error) {
		return s.inner.MaterialIDsBySubject(ctx, subjectID)
	})
}

func (s *CachedCatalogStore) AssessmentIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	return s.cachedIDList(ctx, "subject-assessments:"+subjectID, func() ([]string, error) {
		return s.inner.AssessmentIDsBySubject(ctx, subjectID)
	})
}

func (s *CachedCatalogStore) PublishedVideoIDsBySubjects(ctx context.Context, subjectIDs []string) ([]string, error) {
	return s.cachedIDList(ctx, "published-videos:"+strings.Join(subjectIDs, ","), func() ([]string, error) {
		return s.inner.PublishedVideoIDsBySubjects(ctx, subjectIDs)
	})
}

func (s *CachedCatalogStore) cachedIDList(ctx context.Context, key string, load func() ([]string, error)) ([]string, error) {
	if v, ok := s.cache.Get(key); ok {
		if ids, ok2 := v.([]string); ok2 {
			return ids, nil
		}
	}
	ids, err := load()
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(key, ids, int64(len(ids))+1, s.ttl)
	return ids, nil
}
