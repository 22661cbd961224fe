package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	phlog "github.com/oarkflow/log"

	"github.com/classware/access/logger"
)

// ============================================================================
// RESOLUTION ENGINE
// ============================================================================

// Engine resolves the three-tier grant cascade. It holds only store handles
// and has no mutable state: construct once at startup or per request, both are
// safe for arbitrary concurrent use. Decisions are never cached, so a grant
// change is visible on the next call.
type Engine struct {
	users      UserStore
	catalog    CatalogStore
	library    LibraryGrantStore
	school     SchoolGrantStore
	teacher    TeacherGrantStore
	exclusions ExclusionStore

	auditStore  AuditStore
	auditCh     chan AuditEntry
	auditBuf    int
	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc
	now         func() time.Time
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine) error

// WithClock overrides the engine's time source; expiry comparisons use it.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now == nil {
			return fmt.Errorf("clock function is nil")
		}
		e.now = now
		return nil
	}
}

// WithAuditStore enables asynchronous decision auditing. Entries are queued on
// a bounded channel and dropped when it is full; auditing never blocks or
// fails a resolution.
func WithAuditStore(s AuditStore) EngineOption {
	return func(e *Engine) error {
		e.auditStore = s
		return nil
	}
}

// WithAuditBuffer sizes the audit queue; only meaningful with WithAuditStore.
func WithAuditBuffer(n int) EngineOption {
	return func(e *Engine) error {
		e.auditBuf = n
		return nil
	}
}

func NewEngine(
	users UserStore,
	catalog CatalogStore,
	library LibraryGrantStore,
	school SchoolGrantStore,
	teacher TeacherGrantStore,
	exclusions ExclusionStore,
	opts ...EngineOption,
) (*Engine, error) {
	e := &Engine{
		users:      users,
		catalog:    catalog,
		library:    library,
		school:     school,
		teacher:    teacher,
		exclusions: exclusions,
		logger:     logger.NewNullLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.auditStore != nil {
		if e.auditBuf <= 0 {
			e.auditBuf = 1024
		}
		e.auditCh = make(chan AuditEntry, e.auditBuf)
		go func() {
			bg := context.Background()
			for entry := range e.auditCh {
				_ = e.auditStore.LogDecision(bg, &entry)
			}
		}()
	}
	return e, nil
}

// ============================================================================
// GATE PIPELINE
// ============================================================================

type gateKind uint8

const (
	gateContinue gateKind = iota
	gateAllow
	gateDeny
)

// gateOutcome is the tagged result of one tier: deny short-circuits, allow
// terminates the pipeline positively, continue hands over to the next gate.
type gateOutcome struct {
	kind   gateKind
	level  AccessLevel
	reason string
	step   string
}

// checkState is threaded through the gates of one resolution.
type checkState struct {
	user         *User
	resourceType ResourceType
	resourceID   string
	now          time.Time

	libraryGrant *LibraryGrant
	schoolGrant  *SchoolGrant // nil when tier 2 fell back to tier 1
	levels       []AccessLevel
	path         []string
}

// CheckAccess resolves whether the user may see a single resource, walking the
// library, school, and teacher gates in order. Any unexpected failure degrades
// to a deny; this method never returns an error or panics to the caller.
func (e *Engine) CheckAccess(ctx context.Context, userID string, rt ResourceType, resourceID string) *CheckResult {
	res, err := e.checkAccess(ctx, userID, rt, resourceID)
	if err != nil {
		e.logger.Error("access check failed", "user", userID, "resource_type", string(rt), "resource", resourceID, "error", err.Error())
		res = &CheckResult{HasAccess: false, Reason: ReasonError}
	}
	e.auditDecision(userID, rt, resourceID, res)
	return res
}

func (e *Engine) checkAccess(ctx context.Context, userID string, rt ResourceType, resourceID string) (*CheckResult, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return &CheckResult{HasAccess: false, Reason: ReasonUserNotFound}, nil
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return &CheckResult{HasAccess: false, Reason: ReasonUserNotFound}, nil
	}

	st := &checkState{
		user:         user,
		resourceType: rt,
		resourceID:   resourceID,
		now:          e.now(),
	}

	gates := []func(ctx context.Context, st *checkState) (gateOutcome, error){
		e.libraryGate,
		e.schoolGate,
		e.teacherGate,
	}
	for _, gate := range gates {
		out, err := gate(ctx, st)
		if err != nil {
			return nil, err
		}
		if out.step != "" {
			st.path = append(st.path, out.step)
		}
		if out.level != "" {
			st.levels = append(st.levels, out.level)
		}
		switch out.kind {
		case gateDeny:
			return &CheckResult{HasAccess: false, Reason: out.reason, GrantPath: st.path}, nil
		case gateAllow:
			return &CheckResult{HasAccess: true, Level: MostRestrictive(st.levels...), GrantPath: st.path}, nil
		}
	}
	return &CheckResult{HasAccess: true, Level: MostRestrictive(st.levels...), GrantPath: st.path}, nil
}

// libraryGate finds the winning tier-1 grant. Candidates are tried in fixed
// priority: school-wide (all) first, then the exact resource, then (for
// videos) the parent subject and parent topic, since a grant on a container
// implies access to its children.
func (e *Engine) libraryGate(ctx context.Context, st *checkState) (gateOutcome, error) {
	type candidate struct {
		scope      Scope
		resourceID string
	}
	candidates := []candidate{
		{ScopeAll, ""},
		{ScopeFor(st.resourceType), st.resourceID},
	}
	if st.resourceType == ResourceVideo {
		video, err := e.catalog.GetVideo(ctx, st.resourceID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return gateOutcome{}, fmt.Errorf("load video %s: %w", st.resourceID, err)
		}
		if video != nil {
			if video.SubjectID != "" {
				candidates = append(candidates, candidate{ScopeSubject, video.SubjectID})
			}
			if video.TopicID != "" {
				candidates = append(candidates, candidate{ScopeTopic, video.TopicID})
			}
		}
	}

	for _, c := range candidates {
		grant, err := e.library.FindLibraryGrant(ctx, st.user.SchoolID, c.scope, c.resourceID, st.now)
		if err != nil {
			return gateOutcome{}, fmt.Errorf("find library grant school=%s scope=%s: %w", st.user.SchoolID, c.scope, err)
		}
		if grant != nil {
			st.libraryGrant = grant
			return gateOutcome{kind: gateContinue, level: grant.Level, step: PathLibraryGranted}, nil
		}
	}
	return gateOutcome{kind: gateDeny, reason: ReasonLibraryDenied}, nil
}

// schoolGate adopts a matching tier-2 grant's level, or falls back to the
// tier-1 level when no row targets the user (permissive fallback: absence of a
// school-level restriction means the whole school inherits the library grant).
// This gate never denies once tier 1 passed; the fallback-vs-defer question is
// pinned by tests.
func (e *Engine) schoolGate(ctx context.Context, st *checkState) (gateOutcome, error) {
	grant, err := e.school.FindSchoolGrant(ctx, st.libraryGrant.ID, st.user, st.now)
	if err != nil {
		return gateOutcome{}, fmt.Errorf("find school grant lib=%s: %w", st.libraryGrant.ID, err)
	}
	if grant == nil {
		return gateOutcome{kind: gateContinue, level: st.libraryGrant.Level, step: PathSchoolGranted}, nil
	}
	st.schoolGrant = grant
	return gateOutcome{kind: gateContinue, level: grant.Level, step: PathSchoolGranted}, nil
}

// teacherGate applies tier-3 restrictions. Only students are gated, and only
// when a concrete tier-2 row existed. Zero rows under the school grant means
// no restrictions were set; once any row exists the student must match one.
func (e *Engine) teacherGate(ctx context.Context, st *checkState) (gateOutcome, error) {
	if st.user.Role != RoleStudent || st.schoolGrant == nil {
		return gateOutcome{kind: gateAllow}, nil
	}
	rows, err := e.teacher.ListTeacherGrants(ctx, st.user.SchoolID, st.schoolGrant.ID)
	if err != nil {
		return gateOutcome{}, fmt.Errorf("list teacher grants school_grant=%s: %w", st.schoolGrant.ID, err)
	}
	if len(rows) == 0 {
		return gateOutcome{kind: gateAllow, step: PathNoTeacherRestrictions}, nil
	}
	for _, row := range rows {
		if row.MatchesStudent(st.user) {
			return gateOutcome{kind: gateAllow, step: PathTeacherGranted}, nil
		}
	}
	return gateOutcome{kind: gateDeny, reason: ReasonTeacherDenied}, nil
}

func (e *Engine) auditDecision(userID string, rt ResourceType, resourceID string, res *CheckResult) {
	traceID := ""
	if e.traceIDFunc != nil {
		traceID = e.traceIDFunc()
	}
	phlog.Info().
		Str("user", userID).
		Str("resource_type", string(rt)).
		Str("resource", resourceID).
		Bool("has_access", res.HasAccess).
		Str("level", string(res.Level)).
		Str("reason", res.Reason).
		Str("trace_id", traceID).
		Msg("access decision")

	if e.auditCh == nil {
		return
	}
	now := e.now()
	entry := AuditEntry{
		ID:           fmt.Sprintf("%d", now.UnixNano()),
		Timestamp:    now,
		UserID:       userID,
		ResourceType: rt,
		ResourceID:   resourceID,
		HasAccess:    res.HasAccess,
		Level:        res.Level,
		Reason:       res.Reason,
		GrantPath:    append([]string(nil), res.GrantPath...),
		TraceID:      traceID,
	}
	select {
	case e.auditCh <- entry:
	default:
		// drop rather than block resolution
	}
}

// ============================================================================
// GRANT MANAGEMENT
// ============================================================================

// GrantLibraryAccess validates and persists a tier-1 grant.
func (e *Engine) GrantLibraryAccess(ctx context.Context, g *LibraryGrant) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if g.Level == "" {
		g.Level = LevelFull
	}
	g.Active = true
	return e.library.CreateLibraryGrant(ctx, g)
}

// RevokeLibraryAccess soft-deletes a tier-1 grant. The row stays behind as an
// explicit exclusion marker when it was scoped to a concrete resource.
func (e *Engine) RevokeLibraryAccess(ctx context.Context, id string) error {
	return e.library.DeactivateLibraryGrant(ctx, id)
}

// GrantSchoolAccess validates a tier-2 grant against its parent: the school
// grant must not name a different resource than the parent covers. Scope
// narrowing is enforced here at creation time only, never at query time.
func (e *Engine) GrantSchoolAccess(ctx context.Context, g *SchoolGrant, parent *LibraryGrant) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("school grant %s: parent library grant is required", g.ID)
	}
	if g.LibraryGrantID != parent.ID {
		return fmt.Errorf("school grant %s: parent pointer mismatch", g.ID)
	}
	if parent.Scope != ScopeAll {
		pairs := []struct{ child, par string }{
			{g.SubjectID, parent.SubjectID},
			{g.TopicID, parent.TopicID},
			{g.VideoID, parent.VideoID},
			{g.MaterialID, parent.MaterialID},
			{g.AssessmentID, parent.AssessmentID},
		}
		for _, p := range pairs {
			if p.child != "" && p.par != "" && p.child != p.par {
				return fmt.Errorf("school grant %s: broader than parent %s (scope %s)", g.ID, parent.ID, parent.Scope)
			}
			if p.child != "" && p.par == "" {
				return fmt.Errorf("school grant %s: names a resource outside parent scope %s", g.ID, parent.Scope)
			}
		}
	}
	if g.Level == "" {
		g.Level = parent.Level
	}
	g.SchoolID = parent.SchoolID
	g.Active = true
	return e.school.CreateSchoolGrant(ctx, g)
}

// RevokeSchoolAccess soft-deletes a tier-2 grant.
func (e *Engine) RevokeSchoolAccess(ctx context.Context, id string) error {
	return e.school.DeactivateSchoolGrant(ctx, id)
}

// GrantTeacherAccess persists a tier-3 positive grant.
func (e *Engine) GrantTeacherAccess(ctx context.Context, g *TeacherGrant) error {
	if g.ID == "" {
		return fmt.Errorf("teacher grant ID is required")
	}
	if g.SchoolGrantID == "" {
		return fmt.Errorf("teacher grant %s: school grant ID is required", g.ID)
	}
	if g.StudentID == "" && g.ClassID == "" {
		return fmt.Errorf("teacher grant %s: student or class target is required", g.ID)
	}
	g.Active = true
	return e.teacher.CreateTeacherGrant(ctx, g)
}

// ExcludeResource records a teacher-level unconditional hide.
func (e *Engine) ExcludeResource(ctx context.Context, x *TeacherExclusion) error {
	if x.ID == "" {
		return fmt.Errorf("teacher exclusion ID is required")
	}
	if x.ResourceType == "" || x.ResourceID == "" {
		return fmt.Errorf("teacher exclusion %s: resource type and ID are required", x.ID)
	}
	return e.exclusions.CreateTeacherExclusion(ctx, x)
}

// ExcludeSubject records a school-owner subject "turn off".
func (e *Engine) ExcludeSubject(ctx context.Context, x *SchoolSubjectExclusion) error {
	if x.ID == "" {
		return fmt.Errorf("subject exclusion ID is required")
	}
	if x.SubjectID == "" {
		return fmt.Errorf("subject exclusion %s: subject ID is required", x.ID)
	}
	return e.exclusions.CreateSubjectExclusion(ctx, x)
}

// AccessLog exposes the audit trail when an audit store is configured.
func (e *Engine) AccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	if e.auditStore == nil {
		return nil, fmt.Errorf("no audit store configured")
	}
	return e.auditStore.GetAccessLog(ctx, filter)
}
