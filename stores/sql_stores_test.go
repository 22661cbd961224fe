package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/classware/access"
	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLLibraryGrantStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLLibraryGrantStore(db)
	ctx := context.Background()
	now := time.Now()

	grant := &access.LibraryGrant{
		ID:        "lib-1",
		SchoolID:  "school-1",
		Scope:     access.ScopeSubject,
		SubjectID: "subj-1",
		Level:     access.LevelReadOnly,
		Active:    true,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := store.CreateLibraryGrant(ctx, grant); err != nil {
		t.Fatalf("create library grant: %v", err)
	}

	got, err := store.FindLibraryGrant(ctx, "school-1", access.ScopeSubject, "subj-1", now)
	if err != nil {
		t.Fatalf("find library grant: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a grant, got nil")
	}
	if got.Level != access.LevelReadOnly || got.SubjectID != "subj-1" {
		t.Fatalf("unexpected grant: %+v", got)
	}

	// expired grants are invisible to Find
	if got, _ := store.FindLibraryGrant(ctx, "school-1", access.ScopeSubject, "subj-1", now.Add(48*time.Hour)); got != nil {
		t.Fatalf("expected nil after expiry, got %+v", got)
	}

	if err := store.DeactivateLibraryGrant(ctx, "lib-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got, _ := store.FindLibraryGrant(ctx, "school-1", access.ScopeSubject, "subj-1", now); got != nil {
		t.Fatalf("expected nil after deactivate, got %+v", got)
	}

	// the deactivated row now shows up as an exclusion marker
	excl, err := store.ListLibraryExclusions(ctx, "school-1", access.ScopeSubject)
	if err != nil {
		t.Fatalf("list exclusions: %v", err)
	}
	if len(excl) != 1 || excl[0].ID != "lib-1" {
		t.Fatalf("expected one exclusion marker, got %+v", excl)
	}
}

func TestSQLLibraryGrantStoreListManyScopes(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLLibraryGrantStore(db)
	ctx := context.Background()
	now := time.Now()

	seed := []*access.LibraryGrant{
		{ID: "lib-all", SchoolID: "school-1", Scope: access.ScopeAll, Active: true},
		{ID: "lib-subj", SchoolID: "school-1", Scope: access.ScopeSubject, SubjectID: "subj-1", Active: true},
		{ID: "lib-topic", SchoolID: "school-1", Scope: access.ScopeTopic, TopicID: "top-1", Active: true},
		{ID: "lib-vid", SchoolID: "school-1", Scope: access.ScopeVideo, VideoID: "vid-1", Active: true},
		{ID: "lib-mat", SchoolID: "school-1", Scope: access.ScopeMaterial, MaterialID: "mat-1", Active: true},
	}
	for _, g := range seed {
		g.Level = access.LevelFull
		if err := store.CreateLibraryGrant(ctx, g); err != nil {
			t.Fatalf("create %s: %v", g.ID, err)
		}
	}

	scopes := []access.Scope{access.ScopeSubject, access.ScopeTopic, access.ScopeVideo, access.ScopeMaterial}
	got, err := store.ListLibraryGrants(ctx, "school-1", scopes, now)
	if err != nil {
		t.Fatalf("list library grants: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 grants for 4 scopes, got %d", len(got))
	}
	for _, g := range got {
		if g.Scope == access.ScopeAll {
			t.Fatalf("all-scope grant must not match the scope filter: %+v", g)
		}
	}

	all, err := store.ListLibraryGrants(ctx, "school-1", nil, now)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 grants without a scope filter, got %d", len(all))
	}
}

func TestSQLSchoolGrantStoreTargetMatching(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLSchoolGrantStore(db)
	ctx := context.Background()
	now := time.Now()

	grant := &access.SchoolGrant{
		ID:             "sch-1",
		LibraryGrantID: "lib-1",
		SchoolID:       "school-1",
		RoleType:       access.RoleTeacher,
		Level:          access.LevelFull,
		Active:         true,
	}
	if err := store.CreateSchoolGrant(ctx, grant); err != nil {
		t.Fatalf("create school grant: %v", err)
	}

	teacher := &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher}
	got, err := store.FindSchoolGrant(ctx, "lib-1", teacher, now)
	if err != nil {
		t.Fatalf("find school grant: %v", err)
	}
	if got == nil || got.ID != "sch-1" {
		t.Fatalf("expected sch-1 for role target, got %+v", got)
	}

	student := &access.User{ID: "s-1", SchoolID: "school-1", Role: access.RoleStudent, ClassID: "c-1"}
	if got, _ := store.FindSchoolGrant(ctx, "lib-1", student, now); got != nil {
		t.Fatalf("expected nil for non-matching role, got %+v", got)
	}

	classGrant := &access.SchoolGrant{
		ID:             "sch-2",
		LibraryGrantID: "lib-1",
		SchoolID:       "school-1",
		ClassID:        "c-1",
		Level:          access.LevelLimited,
		Active:         true,
	}
	if err := store.CreateSchoolGrant(ctx, classGrant); err != nil {
		t.Fatalf("create class grant: %v", err)
	}
	got, err = store.FindSchoolGrant(ctx, "lib-1", student, now)
	if err != nil {
		t.Fatalf("find class grant: %v", err)
	}
	if got == nil || got.ID != "sch-2" {
		t.Fatalf("expected sch-2 for class target, got %+v", got)
	}

	list, err := store.ListSchoolGrantsForUser(ctx, "school-1", teacher, now)
	if err != nil {
		t.Fatalf("list school grants: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 grant for teacher, got %d", len(list))
	}
}

func TestSQLExclusionStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLExclusionStore(db)
	ctx := context.Background()

	x := &access.TeacherExclusion{
		ID:           "ex-1",
		SchoolID:     "school-1",
		TeacherID:    "t-1",
		ResourceType: access.ResourceVideo,
		ResourceID:   "vid-1",
		ClassID:      "c-1",
	}
	if err := store.CreateTeacherExclusion(ctx, x); err != nil {
		t.Fatalf("create teacher exclusion: %v", err)
	}

	got, err := store.ListTeacherExclusions(ctx, "school-1", access.ResourceVideo)
	if err != nil {
		t.Fatalf("list teacher exclusions: %v", err)
	}
	if len(got) != 1 || got[0].ResourceID != "vid-1" || got[0].ClassID != "c-1" {
		t.Fatalf("unexpected exclusions: %+v", got)
	}

	if err := store.CreateSubjectExclusion(ctx, &access.SchoolSubjectExclusion{ID: "sx-1", SchoolID: "school-1", SubjectID: "subj-9"}); err != nil {
		t.Fatalf("create subject exclusion: %v", err)
	}
	ids, err := store.ExcludedSubjectIDs(ctx, "school-1")
	if err != nil {
		t.Fatalf("excluded subject IDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "subj-9" {
		t.Fatalf("expected [subj-9], got %v", ids)
	}
}

func TestSQLAuditStoreTraceIDRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store, _ := NewSQLAuditStore(db)
	ctx := context.Background()

	entry := &access.AuditEntry{
		ID:           "evt-1",
		Timestamp:    time.Now(),
		UserID:       "user-x",
		ResourceType: access.ResourceVideo,
		ResourceID:   "vid-1",
		HasAccess:    true,
		Level:        access.LevelFull,
		GrantPath:    []string{"library_granted", "school_granted"},
		TraceID:      "trace-abc-123",
	}
	if err := store.LogDecision(ctx, entry); err != nil {
		t.Fatalf("log decision: %v", err)
	}

	logs, err := store.GetAccessLog(ctx, access.AuditFilter{UserID: "user-x", Limit: 10})
	if err != nil {
		t.Fatalf("get access log: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	got := logs[0]
	if got.TraceID != "trace-abc-123" {
		t.Fatalf("expected trace_id=%s got=%s", "trace-abc-123", got.TraceID)
	}
	if len(got.GrantPath) != 2 || got.GrantPath[0] != "library_granted" {
		t.Fatalf("unexpected grant path: %v", got.GrantPath)
	}
}
