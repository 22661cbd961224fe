package access_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/classware/access"
	"github.com/classware/access/stores"
)

type testEnv struct {
	engine     *access.Engine
	users      *stores.MemoryUserStore
	catalog    *stores.MemoryCatalogStore
	library    *stores.MemoryLibraryGrantStore
	school     *stores.MemorySchoolGrantStore
	teacher    *stores.MemoryTeacherGrantStore
	exclusions *stores.MemoryExclusionStore
}

func newTestEnv(t *testing.T, opts ...access.EngineOption) *testEnv {
	t.Helper()
	env := &testEnv{
		users:      stores.NewMemoryUserStore(),
		catalog:    stores.NewMemoryCatalogStore(),
		library:    stores.NewMemoryLibraryGrantStore(),
		school:     stores.NewMemorySchoolGrantStore(),
		teacher:    stores.NewMemoryTeacherGrantStore(),
		exclusions: stores.NewMemoryExclusionStore(),
	}
	engine, err := access.NewEngine(env.users, env.catalog, env.library, env.school, env.teacher, env.exclusions, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	env.engine = engine
	return env
}

func (env *testEnv) addUser(t *testing.T, u *access.User) {
	t.Helper()
	if err := env.users.PutUser(context.Background(), u); err != nil {
		t.Fatalf("put user: %v", err)
	}
}

func (env *testEnv) grantLibrary(t *testing.T, g *access.LibraryGrant) {
	t.Helper()
	if err := env.engine.GrantLibraryAccess(context.Background(), g); err != nil {
		t.Fatalf("grant library access: %v", err)
	}
}

func (env *testEnv) grantSchool(t *testing.T, g *access.SchoolGrant, parent *access.LibraryGrant) {
	t.Helper()
	if err := env.engine.GrantSchoolAccess(context.Background(), g, parent); err != nil {
		t.Fatalf("grant school access: %v", err)
	}
}

func TestCheckAccessLibraryDenied(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, &access.User{ID: "s-1", SchoolID: "school-1", Role: access.RoleStudent})

	res := env.engine.CheckAccess(context.Background(), "s-1", access.ResourceSubject, "math")
	if res.HasAccess {
		t.Fatalf("expected deny, got %+v", res)
	}
	if res.Reason != access.ReasonLibraryDenied {
		t.Fatalf("expected reason %s, got %s", access.ReasonLibraryDenied, res.Reason)
	}
}

func TestCheckAccessUserNotFound(t *testing.T) {
	env := newTestEnv(t)

	res := env.engine.CheckAccess(context.Background(), "ghost", access.ResourceSubject, "math")
	if res.HasAccess || res.Reason != access.ReasonUserNotFound {
		t.Fatalf("expected user_not_found deny, got %+v", res)
	}
}

func TestCheckAccessAllScopeGrant(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	env.grantLibrary(t, access.NewLibraryGrantBuilder().
		ID("lib-all").School("school-1").Platform("platform-1").Build())

	res := env.engine.CheckAccess(context.Background(), "t-1", access.ResourceSubject, "math")
	if !res.HasAccess {
		t.Fatalf("expected allow, got %+v", res)
	}
	if res.Level != access.LevelFull {
		t.Fatalf("expected full level, got %s", res.Level)
	}
	wantPath := []string{access.PathLibraryGranted, access.PathSchoolGranted}
	if len(res.GrantPath) != len(wantPath) || res.GrantPath[0] != wantPath[0] || res.GrantPath[1] != wantPath[1] {
		t.Fatalf("expected path %v, got %v", wantPath, res.GrantPath)
	}
}

// A school that configured no tier-2 rows inherits the library grant for every
// user. Deferring to a deny here instead would be a behavior change callers
// depend on, so this test pins the permissive reading.
func TestCheckAccessNoSchoolRowInheritsLibraryGrant(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, &access.User{ID: "s-1", SchoolID: "school-1", Role: access.RoleStudent, ClassID: "c-1"})
	env.grantLibrary(t, access.NewLibraryGrantBuilder().
		ID("lib-math").School("school-1").Subject("math").Level(access.LevelReadOnly).Build())

	res := env.engine.CheckAccess(context.Background(), "s-1", access.ResourceSubject, "math")
	if !res.HasAccess {
		t.Fatalf("expected allow via fallback, got %+v", res)
	}
	if res.Level != access.LevelReadOnly {
		t.Fatalf("expected read_only inherited from tier 1, got %s", res.Level)
	}
}

func TestCheckAccessStudentNoTeacherRestrictions(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, &access.User{ID: "s-1", SchoolID: "school-1", Role: access.RoleStudent, ClassID: "c-1"})
	lib := access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build()
	env.grantLibrary(t, lib)
	env.grantSchool(t, access.NewSchoolGrantBuilder().ID("sch-1").Parent("lib-math").Class("c-1").Build(), lib)

	res := env.engine.CheckAccess(context.Background(), "s-1", access.ResourceSubject, "math")
	if !res.HasAccess {
		t.Fatalf("expected allow, got %+v", res)
	}
	last := res.GrantPath[len(res.GrantPath)-1]
	if last != access.PathNoTeacherRestrictions {
		t.Fatalf("expected final step %s, got %v", access.PathNoTeacherRestrictions, res.GrantPath)
	}
}

func TestCheckAccessTeacherDeniedAndGranted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, &access.User{ID: "s-1", SchoolID: "school-1", Role: access.RoleStudent, ClassID: "c-1"})
	env.addUser(t, &access.User{ID: "s-2", SchoolID: "school-1", Role: access.RoleStudent, ClassID: "c-2"})
	lib := access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build()
	env.grantLibrary(t, lib)
	env.grantSchool(t, access.NewSchoolGrantBuilder().ID("sch-1").Parent("lib-math").Role(access.RoleStudent).Build(), lib)

	// one positive row for class c-1 flips the default for everyone else
	if err := env.engine.GrantTeacherAccess(ctx, access.NewTeacherGrantBuilder().
		ID("tg-1").Parent("sch-1").School("school-1").Teacher("t-1").Class("c-1").Build()); err != nil {
		t.Fatalf("grant teacher access: %v", err)
	}

	res := env.engine.CheckAccess(ctx, "s-1", access.ResourceSubject, "math")
	if !res.HasAccess {
		t.Fatalf("expected allow for matched class, got %+v", res)
	}
	last := res.GrantPath[len(res.GrantPath)-1]
	if last != access.PathTeacherGranted {
		t.Fatalf("expected final step %s, got %v", access.PathTeacherGranted, res.GrantPath)
	}

	res = env.engine.CheckAccess(ctx, "s-2", access.ResourceSubject, "math")
	if res.HasAccess || res.Reason != access.ReasonTeacherDenied {
		t.Fatalf("expected teacher_denied for unmatched class, got %+v", res)
	}
}

func TestCheckAccessTeacherGateSkipsNonStudents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, &access.User{ID: "t-9", SchoolID: "school-1", Role: access.RoleTeacher, ClassID: "c-9"})
	lib := access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build()
	env.grantLibrary(t, lib)
	env.grantSchool(t, access.NewSchoolGrantBuilder().ID("sch-1").Parent("lib-math").Role(access.RoleTeacher).Build(), lib)
	if err := env.engine.GrantTeacherAccess(ctx, access.NewTeacherGrantBuilder().
		ID("tg-1").Parent("sch-1").School("school-1").Teacher("t-1").Class("c-1").Build()); err != nil {
		t.Fatalf("grant teacher access: %v", err)
	}

	res := env.engine.CheckAccess(ctx, "t-9", access.ResourceSubject, "math")
	if !res.HasAccess {
		t.Fatalf("teacher rows must not gate non-students, got %+v", res)
	}
}

func TestCheckAccessMostRestrictiveLevelWins(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	lib := access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Level(access.LevelFull).Build()
	env.grantLibrary(t, lib)
	env.grantSchool(t, access.NewSchoolGrantBuilder().
		ID("sch-1").Parent("lib-math").Role(access.RoleTeacher).Level(access.LevelLimited).Build(), lib)

	res := env.engine.CheckAccess(context.Background(), "t-1", access.ResourceSubject, "math")
	if !res.HasAccess {
		t.Fatalf("expected allow, got %+v", res)
	}
	if res.Level != access.LevelLimited {
		t.Fatalf("expected limited to win the merge, got %s", res.Level)
	}
}

func TestCheckAccessExpiryBoundaryIsExclusive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, access.WithClock(func() time.Time { return now }))
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	env.grantLibrary(t, access.NewLibraryGrantBuilder().
		ID("lib-math").School("school-1").Subject("math").ExpiresAt(now).Build())

	res := env.engine.CheckAccess(context.Background(), "t-1", access.ResourceSubject, "math")
	if res.HasAccess {
		t.Fatalf("grant expiring exactly now must already be expired, got %+v", res)
	}
	if res.Reason != access.ReasonLibraryDenied {
		t.Fatalf("expected library_denied, got %s", res.Reason)
	}
}

func TestCheckAccessVideoViaParentSubjectGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	if err := env.catalog.PutVideo(ctx, &access.Video{ID: "vid-1", SubjectID: "math", TopicID: "algebra", Published: true}); err != nil {
		t.Fatalf("put video: %v", err)
	}
	env.grantLibrary(t, access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build())

	res := env.engine.CheckAccess(ctx, "t-1", access.ResourceVideo, "vid-1")
	if !res.HasAccess {
		t.Fatalf("subject grant must cover contained video, got %+v", res)
	}
}

func TestCheckAccessIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	env.grantLibrary(t, access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build())

	first := env.engine.CheckAccess(context.Background(), "t-1", access.ResourceSubject, "math")
	second := env.engine.CheckAccess(context.Background(), "t-1", access.ResourceSubject, "math")
	if first.HasAccess != second.HasAccess || first.Level != second.Level || first.Reason != second.Reason {
		t.Fatalf("repeated checks disagreed: %+v vs %+v", first, second)
	}
}

func TestCheckAccessRevocationIsImmediate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	env.grantLibrary(t, access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build())

	if res := env.engine.CheckAccess(ctx, "t-1", access.ResourceSubject, "math"); !res.HasAccess {
		t.Fatalf("expected allow before revocation, got %+v", res)
	}
	if err := env.engine.RevokeLibraryAccess(ctx, "lib-math"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if res := env.engine.CheckAccess(ctx, "t-1", access.ResourceSubject, "math"); res.HasAccess {
		t.Fatalf("expected deny immediately after revocation, got %+v", res)
	}
}

type failingUserStore struct{}

func (failingUserStore) GetUser(ctx context.Context, id string) (*access.User, error) {
	return nil, errors.New("directory unavailable")
}

func TestCheckAccessFailsClosed(t *testing.T) {
	engine, err := access.NewEngine(
		failingUserStore{},
		stores.NewMemoryCatalogStore(),
		stores.NewMemoryLibraryGrantStore(),
		stores.NewMemorySchoolGrantStore(),
		stores.NewMemoryTeacherGrantStore(),
		stores.NewMemoryExclusionStore(),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res := engine.CheckAccess(context.Background(), "t-1", access.ResourceSubject, "math")
	if res.HasAccess {
		t.Fatalf("store failure must deny, got %+v", res)
	}
	if res.Reason != access.ReasonError {
		t.Fatalf("expected %q, got %q", access.ReasonError, res.Reason)
	}
}

func TestGrantSchoolAccessRejectsBroaderThanParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	parent := access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build()
	env.grantLibrary(t, parent)

	child := access.NewSchoolGrantBuilder().ID("sch-1").Parent("lib-math").Role(access.RoleTeacher).Subject("biology").Build()
	if err := env.engine.GrantSchoolAccess(ctx, child, parent); err == nil {
		t.Fatalf("expected narrowing violation error")
	}
}

func TestAccessLogRecordsDecisions(t *testing.T) {
	audit := stores.NewMemoryAuditStore()
	env := newTestEnv(t, access.WithAuditStore(audit))
	ctx := context.Background()
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	env.grantLibrary(t, access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build())

	env.engine.CheckAccess(ctx, "t-1", access.ResourceSubject, "math")

	// auditing is asynchronous; wait briefly for the entry to land
	deadline := time.Now().Add(2 * time.Second)
	for {
		logs, err := env.engine.AccessLog(ctx, access.AuditFilter{UserID: "t-1", Limit: 10})
		if err != nil {
			t.Fatalf("access log: %v", err)
		}
		if len(logs) > 0 {
			if !logs[0].HasAccess || logs[0].ResourceID != "math" {
				t.Fatalf("unexpected audit entry: %+v", logs[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entry never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForAuditEntry(t *testing.T, env *testEnv, filter access.AuditFilter) *access.AuditEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		logs, err := env.engine.AccessLog(context.Background(), filter)
		if err != nil {
			t.Fatalf("access log: %v", err)
		}
		if len(logs) > 0 {
			return logs[0]
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entry never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAuditEntryUsesClockAndTraceID(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	audit := stores.NewMemoryAuditStore()
	env := newTestEnv(t,
		access.WithAuditStore(audit),
		access.WithClock(func() time.Time { return fixed }),
		access.WithTraceIDFunc(func() string { return "trace-fixed-1" }),
	)
	ctx := context.Background()
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})
	env.grantLibrary(t, access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build())

	env.engine.CheckAccess(ctx, "t-1", access.ResourceSubject, "math")

	entry := waitForAuditEntry(t, env, access.AuditFilter{UserID: "t-1", Limit: 10})
	if entry.TraceID != "trace-fixed-1" {
		t.Fatalf("expected generated trace ID on the entry, got %q", entry.TraceID)
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamp from the injected clock, got %v", entry.Timestamp)
	}
	if entry.ID != fmt.Sprintf("%d", fixed.UnixNano()) {
		t.Fatalf("expected ID derived from the injected clock, got %q", entry.ID)
	}
}

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingLogger) record(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingLogger) Error(msg string, keyvals ...any) { r.record(msg) }
func (r *recordingLogger) Info(msg string, keyvals ...any)  { r.record(msg) }
func (r *recordingLogger) Debug(msg string, keyvals ...any) { r.record(msg) }

func (r *recordingLogger) saw(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func TestCheckAccessFailureReachesInstalledLogger(t *testing.T) {
	rec := &recordingLogger{}
	engine, err := access.NewEngine(
		failingUserStore{},
		stores.NewMemoryCatalogStore(),
		stores.NewMemoryLibraryGrantStore(),
		stores.NewMemorySchoolGrantStore(),
		stores.NewMemoryTeacherGrantStore(),
		stores.NewMemoryExclusionStore(),
		access.WithLogger(rec),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res := engine.CheckAccess(context.Background(), "t-1", access.ResourceSubject, "math")
	if res.HasAccess || res.Reason != access.ReasonError {
		t.Fatalf("expected fail-closed deny, got %+v", res)
	}
	if !rec.saw("access check failed") {
		t.Fatalf("expected failure to reach the installed logger, got %v", rec.msgs)
	}
}
