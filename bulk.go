package access

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/classware/access/utils"
)

// ============================================================================
// BULK / LIST RESOLVERS
// ============================================================================

// AccessibleSubjectIDs derives the full subject set visible to a user for
// listing screens. It deliberately bypasses tier-2 school grants: honoring
// legacy per-user grants here could show a teacher a narrower subject list
// than the library actually granted, and the product requirement is that
// teachers and students see an identical list. Failures return an empty set.
func (e *Engine) AccessibleSubjectIDs(ctx context.Context, userID string) []string {
	ids, err := e.accessibleSubjectIDs(ctx, userID)
	if err != nil {
		e.logger.Error("accessible subjects failed", "user", userID, "error", err.Error())
		return []string{}
	}
	return ids
}

func (e *Engine) accessibleSubjectIDs(ctx context.Context, userID string) ([]string, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return []string{}, nil
	}
	base, err := e.librarySubjectIDs(ctx, user.SchoolID)
	if err != nil {
		return nil, err
	}

	// School owners see the library-granted set unmodified.
	if user.Role.IsSchoolOwner() {
		return base, nil
	}
	excluded, err := e.subjectExclusionSet(ctx, user.SchoolID)
	if err != nil {
		return nil, err
	}
	return excluded.Subtract(base), nil
}

// librarySubjectIDs expands the school's active tier-1 grants into concrete
// subject IDs: ALL-scope grants resolve to every subject under their platform,
// unioned with explicit subject grants.
func (e *Engine) librarySubjectIDs(ctx context.Context, schoolID string) ([]string, error) {
	grants, err := e.library.ListLibraryGrants(ctx, schoolID, []Scope{ScopeAll, ScopeSubject}, e.now())
	if err != nil {
		return nil, fmt.Errorf("list library grants school=%s: %w", schoolID, err)
	}
	lists := make([][]string, 0, len(grants))
	for _, g := range grants {
		switch g.Scope {
		case ScopeAll:
			subjects, err := e.catalog.SubjectIDsByPlatform(ctx, g.PlatformID)
			if err != nil {
				return nil, fmt.Errorf("expand platform %s: %w", g.PlatformID, err)
			}
			lists = append(lists, subjects)
		case ScopeSubject:
			lists = append(lists, []string{g.SubjectID})
		}
	}
	return utils.Union(lists...), nil
}

// AccessibleVideoIDs derives the published videos visible to a user: every
// published video under an accessible subject, minus the library-level
// "turned off" markers and the teacher exclusions that target the user. The
// two exclusion sets are independent and fetched concurrently. Failures
// return an empty set.
func (e *Engine) AccessibleVideoIDs(ctx context.Context, userID string) []string {
	ids, err := e.accessibleVideoIDs(ctx, userID)
	if err != nil {
		e.logger.Error("accessible videos failed", "user", userID, "error", err.Error())
		return []string{}
	}
	return ids
}

func (e *Engine) accessibleVideoIDs(ctx context.Context, userID string) ([]string, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return []string{}, nil
	}
	subjectIDs, err := e.accessibleSubjectIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(subjectIDs) == 0 {
		return []string{}, nil
	}
	videoIDs, err := e.catalog.PublishedVideoIDsBySubjects(ctx, subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("list published videos: %w", err)
	}

	var (
		wg         sync.WaitGroup
		libSet     ExclusionSet
		teacherSet ExclusionSet
		libErr     error
		teacherErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		libSet, libErr = e.libraryExclusionSet(ctx, user.SchoolID, ScopeVideo)
	}()
	go func() {
		defer wg.Done()
		teacherSet, teacherErr = e.teacherExclusionSet(ctx, user, ResourceVideo)
	}()
	wg.Wait()
	// A failed exclusion read contributes an empty set rather than failing
	// the listing; the grant gates still protect individual access.
	if libErr != nil {
		e.logger.Error("library exclusion read failed", "school", user.SchoolID, "error", libErr.Error())
		libSet = NewExclusionSet()
	}
	if teacherErr != nil {
		e.logger.Error("teacher exclusion read failed", "school", user.SchoolID, "error", teacherErr.Error())
		teacherSet = NewExclusionSet()
	}
	libSet.Merge(teacherSet)
	return libSet.Subtract(videoIDs), nil
}

// ExcludedIDsForSubject returns, per resource kind, the IDs hidden inside one
// subject: library-level inactive markers filtered by parent-subject
// containment, plus (for non-owner roles only) teacher exclusions matching
// the student or the subject's class. Owners never see teacher exclusions
// applied. Failures return empty sets.
func (e *Engine) ExcludedIDsForSubject(ctx context.Context, userID, subjectID string) *ExcludedIDs {
	out, err := e.excludedIDsForSubject(ctx, userID, subjectID)
	if err != nil {
		e.logger.Error("excluded ids failed", "user", userID, "subject", subjectID, "error", err.Error())
		return &ExcludedIDs{TopicIDs: []string{}, VideoIDs: []string{}, MaterialIDs: []string{}, AssessmentIDs: []string{}}
	}
	return out
}

func (e *Engine) excludedIDsForSubject(ctx context.Context, userID, subjectID string) (*ExcludedIDs, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return &ExcludedIDs{TopicIDs: []string{}, VideoIDs: []string{}, MaterialIDs: []string{}, AssessmentIDs: []string{}}, nil
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return &ExcludedIDs{TopicIDs: []string{}, VideoIDs: []string{}, MaterialIDs: []string{}, AssessmentIDs: []string{}}, nil
	}
	subject, err := e.catalog.GetSubject(ctx, subjectID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load subject %s: %w", subjectID, err)
	}
	subjectClass := ""
	if subject != nil {
		subjectClass = subject.ClassID
	}

	out := &ExcludedIDs{}
	kinds := []struct {
		rt       ResourceType
		contains func(ctx context.Context, subjectID string) ([]string, error)
		dst      *[]string
	}{
		{ResourceTopic, e.catalog.TopicIDsBySubject, &out.TopicIDs},
		{ResourceVideo, e.catalog.VideoIDsBySubject, &out.VideoIDs},
		{ResourceMaterial, e.catalog.MaterialIDsBySubject, &out.MaterialIDs},
		{ResourceAssessment, e.catalog.AssessmentIDsBySubject, &out.AssessmentIDs},
	}
	for _, k := range kinds {
		inSubject, err := k.contains(ctx, subjectID)
		if err != nil {
			return nil, fmt.Errorf("list %s of subject %s: %w", k.rt, subjectID, err)
		}
		contained := NewExclusionSet(inSubject...)

		set, err := e.libraryExclusionSet(ctx, user.SchoolID, ScopeFor(k.rt))
		if err != nil {
			return nil, err
		}
		if !user.Role.IsSchoolOwner() {
			tset, err := e.teacherExclusionSetForClass(ctx, user, subjectClass, k.rt)
			if err != nil {
				return nil, err
			}
			set.Merge(tset)
		}

		ids := make([]string, 0, len(set))
		for id := range set {
			if contained.Has(id) {
				ids = append(ids, id)
			}
		}
		*k.dst = utils.Dedup(ids)
	}
	return out, nil
}

// UserAccessibleResources is the legacy general-purpose resolver used outside
// the explore flow. Unlike AccessibleSubjectIDs it honors tier-2 school grants
// when present: each qualifying school grant contributes its effective
// resource IDs, falling back to the parent library grant's per-kind fields
// when the school grant does not narrow them. With no school grants at all it
// behaves as a pure library-grant passthrough. Failures return empty sets.
func (e *Engine) UserAccessibleResources(ctx context.Context, userID string) *AccessibleResources {
	out, err := e.userAccessibleResources(ctx, userID)
	if err != nil {
		e.logger.Error("accessible resources failed", "user", userID, "error", err.Error())
		return emptyAccessibleResources()
	}
	return out
}

func (e *Engine) userAccessibleResources(ctx context.Context, userID string) (*AccessibleResources, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return emptyAccessibleResources(), nil
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return emptyAccessibleResources(), nil
	}
	schoolGrants, err := e.school.ListSchoolGrantsForUser(ctx, user.SchoolID, user, e.now())
	if err != nil {
		return nil, fmt.Errorf("list school grants school=%s: %w", user.SchoolID, err)
	}
	if len(schoolGrants) == 0 {
		subjects, err := e.accessibleSubjectIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := emptyAccessibleResources()
		out.SubjectIDs = subjects
		return out, nil
	}

	out := emptyAccessibleResources()
	for _, sg := range schoolGrants {
		parent, err := e.libraryGrantByID(ctx, user.SchoolID, sg.LibraryGrantID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			continue
		}
		if parent.Scope == ScopeAll && sg.SubjectID == "" && sg.TopicID == "" && sg.VideoID == "" && sg.MaterialID == "" && sg.AssessmentID == "" {
			subjects, err := e.catalog.SubjectIDsByPlatform(ctx, parent.PlatformID)
			if err != nil {
				return nil, fmt.Errorf("expand platform %s: %w", parent.PlatformID, err)
			}
			out.SubjectIDs = append(out.SubjectIDs, subjects...)
			continue
		}
		out.SubjectIDs = appendEffective(out.SubjectIDs, sg.SubjectID, parent.SubjectID)
		out.TopicIDs = appendEffective(out.TopicIDs, sg.TopicID, parent.TopicID)
		out.VideoIDs = appendEffective(out.VideoIDs, sg.VideoID, parent.VideoID)
		out.MaterialIDs = appendEffective(out.MaterialIDs, sg.MaterialID, parent.MaterialID)
		out.AssessmentIDs = appendEffective(out.AssessmentIDs, sg.AssessmentID, parent.AssessmentID)
	}
	out.SubjectIDs = utils.Dedup(out.SubjectIDs)
	out.TopicIDs = utils.Dedup(out.TopicIDs)
	out.VideoIDs = utils.Dedup(out.VideoIDs)
	out.MaterialIDs = utils.Dedup(out.MaterialIDs)
	out.AssessmentIDs = utils.Dedup(out.AssessmentIDs)
	return out, nil
}

// effectiveID is the single named override-vs-inherit rule: the child grant's
// field wins when set, otherwise the parent's applies.
func effectiveID(child, parent string) string {
	if child != "" {
		return child
	}
	return parent
}

func appendEffective(dst []string, child, parent string) []string {
	if id := effectiveID(child, parent); id != "" {
		dst = append(dst, id)
	}
	return dst
}

// libraryGrantByID walks the school's grants looking for a parent pointer
// target; grants stores index by school, not by bare ID.
func (e *Engine) libraryGrantByID(ctx context.Context, schoolID, id string) (*LibraryGrant, error) {
	grants, err := e.library.ListLibraryGrants(ctx, schoolID, nil, e.now())
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, nil
}

func emptyAccessibleResources() *AccessibleResources {
	return &AccessibleResources{
		SubjectIDs:    []string{},
		TopicIDs:      []string{},
		VideoIDs:      []string{},
		MaterialIDs:   []string{},
		AssessmentIDs: []string{},
	}
}
