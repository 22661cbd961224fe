package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/classware/access"
)

// MemoryUserStore implements roster lookups in-memory for testing/demo
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*access.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*access.User)}
}

func (s *MemoryUserStore) PutUser(ctx context.Context, u *access.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryUserStore) GetUser(ctx context.Context, id string) (*access.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", access.ErrUserNotFound, id)
	}
	dup := *u
	return &dup, nil
}

// MemoryCatalogStore implements content containment lookups in-memory
type MemoryCatalogStore struct {
	mu          sync.RWMutex
	subjects    map[string]*access.Subject
	topics      map[string]*access.Topic
	videos      map[string]*access.Video
	materials   map[string]*access.Material
	assessments map[string]*access.Assessment
}

func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{
		subjects:    make(map[string]*access.Subject),
		topics:      make(map[string]*access.Topic),
		videos:      make(map[string]*access.Video),
		materials:   make(map[string]*access.Material),
		assessments: make(map[string]*access.Assessment),
	}
}

func (s *MemoryCatalogStore) PutSubject(ctx context.Context, sub *access.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[sub.ID] = sub
	return nil
}

func (s *MemoryCatalogStore) PutTopic(ctx context.Context, t *access.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[t.ID] = t
	return nil
}

func (s *MemoryCatalogStore) PutVideo(ctx context.Context, v *access.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
	return nil
}

func (s *MemoryCatalogStore) PutMaterial(ctx context.Context, m *access.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.ID] = m
	return nil
}

func (s *MemoryCatalogStore) PutAssessment(ctx context.Context, a *access.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.ID] = a
	return nil
}

func (s *MemoryCatalogStore) GetSubject(ctx context.Context, id string) (*access.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", id, access.ErrNotFound)
	}
	dup := *sub
	return &dup, nil
}

func (s *MemoryCatalogStore) GetVideo(ctx context.Context, id string) (*access.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, fmt.Errorf("video %s: %w", id, access.ErrNotFound)
	}
	dup := *v
	return &dup, nil
}

func (s *MemoryCatalogStore) SubjectIDsByPlatform(ctx context.Context, platformID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, sub := range s.subjects {
		if platformID == "" || sub.PlatformID == platformID {
			out = append(out, sub.ID)
		}
	}
	return out, nil
}

func (s *MemoryCatalogStore) TopicIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, t := range s.topics {
		if t.SubjectID == subjectID {
			out = append(out, t.ID)
		}
	}
	return out, nil
}

func (s *MemoryCatalogStore) VideoIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, v := range s.videos {
		if v.SubjectID == subjectID {
			out = append(out, v.ID)
		}
	}
	return out, nil
}

func (s *MemoryCatalogStore) MaterialIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, m := range s.materials {
		if m.SubjectID == subjectID {
			out = append(out, m.ID)
		}
	}
	return out, nil
}

func (s *MemoryCatalogStore) AssessmentIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, a := range s.assessments {
		if a.SubjectID == subjectID {
			out = append(out, a.ID)
		}
	}
	return out, nil
}

func (s *MemoryCatalogStore) PublishedVideoIDsBySubjects(ctx context.Context, subjectIDs []string) ([]string, error) {
	want := make(map[string]bool, len(subjectIDs))
	for _, id := range subjectIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, v := range s.videos {
		if v.Published && want[v.SubjectID] {
			out = append(out, v.ID)
		}
	}
	return out, nil
}

// MemoryLibraryGrantStore implements tier-1 grant persistence in-memory
type MemoryLibraryGrantStore struct {
	mu     sync.RWMutex
	grants map[string]*access.LibraryGrant
}

func NewMemoryLibraryGrantStore() *MemoryLibraryGrantStore {
	return &MemoryLibraryGrantStore{grants: make(map[string]*access.LibraryGrant)}
}

func (s *MemoryLibraryGrantStore) CreateLibraryGrant(ctx context.Context, g *access.LibraryGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	s.grants[g.ID] = cloneLibraryGrant(g)
	return nil
}

func (s *MemoryLibraryGrantStore) DeactivateLibraryGrant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return fmt.Errorf("library grant not found: %s", id)
	}
	g.Active = false
	return nil
}

func (s *MemoryLibraryGrantStore) FindLibraryGrant(ctx context.Context, schoolID string, scope access.Scope, resourceID string, now time.Time) (*access.LibraryGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grants {
		if g.SchoolID != schoolID || g.Scope != scope {
			continue
		}
		if !g.Active || g.IsExpired(now) {
			continue
		}
		if scope != access.ScopeAll && g.ResourceID() != resourceID {
			continue
		}
		return cloneLibraryGrant(g), nil
	}
	return nil, nil
}

func (s *MemoryLibraryGrantStore) ListLibraryGrants(ctx context.Context, schoolID string, scopes []access.Scope, now time.Time) ([]*access.LibraryGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.LibraryGrant, 0)
	for _, g := range s.grants {
		if g.SchoolID != schoolID || !scopeInList(g.Scope, scopes) {
			continue
		}
		if !g.Active || g.IsExpired(now) {
			continue
		}
		out = append(out, cloneLibraryGrant(g))
	}
	return out, nil
}

func (s *MemoryLibraryGrantStore) ListLibraryExclusions(ctx context.Context, schoolID string, scope access.Scope) ([]*access.LibraryGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.LibraryGrant, 0)
	for _, g := range s.grants {
		if g.SchoolID != schoolID || g.Scope != scope {
			continue
		}
		if g.Active || g.ResourceID() == "" {
			continue
		}
		out = append(out, cloneLibraryGrant(g))
	}
	return out, nil
}

// MemorySchoolGrantStore implements tier-2 grant persistence in-memory
type MemorySchoolGrantStore struct {
	mu     sync.RWMutex
	grants map[string]*access.SchoolGrant
}

func NewMemorySchoolGrantStore() *MemorySchoolGrantStore {
	return &MemorySchoolGrantStore{grants: make(map[string]*access.SchoolGrant)}
}

func (s *MemorySchoolGrantStore) CreateSchoolGrant(ctx context.Context, g *access.SchoolGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	s.grants[g.ID] = cloneSchoolGrant(g)
	return nil
}

func (s *MemorySchoolGrantStore) DeactivateSchoolGrant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return fmt.Errorf("school grant not found: %s", id)
	}
	g.Active = false
	return nil
}

func (s *MemorySchoolGrantStore) GetSchoolGrant(ctx context.Context, id string) (*access.SchoolGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return nil, fmt.Errorf("school grant not found: %s", id)
	}
	return cloneSchoolGrant(g), nil
}

func (s *MemorySchoolGrantStore) FindSchoolGrant(ctx context.Context, libraryGrantID string, user *access.User, now time.Time) (*access.SchoolGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grants {
		if g.LibraryGrantID != libraryGrantID {
			continue
		}
		if !g.Active || g.IsExpired(now) {
			continue
		}
		if g.MatchesUser(user) {
			return cloneSchoolGrant(g), nil
		}
	}
	return nil, nil
}

func (s *MemorySchoolGrantStore) ListSchoolGrantsForUser(ctx context.Context, schoolID string, user *access.User, now time.Time) ([]*access.SchoolGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.SchoolGrant, 0)
	for _, g := range s.grants {
		if g.SchoolID != schoolID {
			continue
		}
		if !g.Active || g.IsExpired(now) {
			continue
		}
		if g.MatchesUser(user) {
			out = append(out, cloneSchoolGrant(g))
		}
	}
	return out, nil
}

// MemoryTeacherGrantStore implements tier-3 positive grants in-memory
type MemoryTeacherGrantStore struct {
	mu     sync.RWMutex
	grants map[string]*access.TeacherGrant
}

func NewMemoryTeacherGrantStore() *MemoryTeacherGrantStore {
	return &MemoryTeacherGrantStore{grants: make(map[string]*access.TeacherGrant)}
}

func (s *MemoryTeacherGrantStore) CreateTeacherGrant(ctx context.Context, g *access.TeacherGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	dup := *g
	s.grants[g.ID] = &dup
	return nil
}

func (s *MemoryTeacherGrantStore) ListTeacherGrants(ctx context.Context, schoolID, schoolGrantID string) ([]*access.TeacherGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.TeacherGrant, 0)
	for _, g := range s.grants {
		if g.SchoolID != schoolID || g.SchoolGrantID != schoolGrantID {
			continue
		}
		if !g.Active {
			continue
		}
		dup := *g
		out = append(out, &dup)
	}
	return out, nil
}

// MemoryExclusionStore implements exclusion persistence in-memory
type MemoryExclusionStore struct {
	mu       sync.RWMutex
	teacher  map[string]*access.TeacherExclusion
	subjects map[string]*access.SchoolSubjectExclusion
}

func NewMemoryExclusionStore() *MemoryExclusionStore {
	return &MemoryExclusionStore{
		teacher:  make(map[string]*access.TeacherExclusion),
		subjects: make(map[string]*access.SchoolSubjectExclusion),
	}
}

func (s *MemoryExclusionStore) CreateTeacherExclusion(ctx context.Context, x *access.TeacherExclusion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if x.CreatedAt.IsZero() {
		x.CreatedAt = time.Now()
	}
	dup := *x
	s.teacher[x.ID] = &dup
	return nil
}

func (s *MemoryExclusionStore) CreateSubjectExclusion(ctx context.Context, x *access.SchoolSubjectExclusion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if x.CreatedAt.IsZero() {
		x.CreatedAt = time.Now()
	}
	dup := *x
	s.subjects[x.ID] = &dup
	return nil
}

func (s *MemoryExclusionStore) ListTeacherExclusions(ctx context.Context, schoolID string, rt access.ResourceType) ([]*access.TeacherExclusion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.TeacherExclusion, 0)
	for _, x := range s.teacher {
		if x.SchoolID != schoolID || x.ResourceType != rt {
			continue
		}
		dup := *x
		out = append(out, &dup)
	}
	return out, nil
}

func (s *MemoryExclusionStore) ExcludedSubjectIDs(ctx context.Context, schoolID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, x := range s.subjects {
		if x.SchoolID == schoolID {
			out = append(out, x.SubjectID)
		}
	}
	return out, nil
}

// MemoryAuditStore implements in-memory audit logging
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*access.AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*access.AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogDecision(ctx context.Context, entry *access.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) GetAccessLog(ctx context.Context, filter access.AuditFilter) ([]*access.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*access.AuditEntry, 0)
	for _, entry := range s.entries {
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.ResourceID != "" && entry.ResourceID != filter.ResourceID {
			continue
		}
		if filter.HasAccess != nil && entry.HasAccess != *filter.HasAccess {
			continue
		}
		if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
			continue
		}
		result = append(result, entry)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}
