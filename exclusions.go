package access

import (
	"context"
)

// ExclusionSet unifies the two "turned off" mechanisms, inactive library-grant
// markers and the dedicated exclusion tables, behind one membership set. Each
// tier keeps its own storage predicate; only the merge is shared.
type ExclusionSet map[string]struct{}

func NewExclusionSet(ids ...string) ExclusionSet {
	s := make(ExclusionSet, len(ids))
	s.Add(ids...)
	return s
}

func (s ExclusionSet) Add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

func (s ExclusionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Merge folds another set into this one.
func (s ExclusionSet) Merge(other ExclusionSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Subtract returns ids with every member of the set removed, preserving order.
func (s ExclusionSet) Subtract(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// libraryExclusionSet collects the inactive per-resource markers a library
// owner left behind for a school (tier-1 "turned off" encoding).
func (e *Engine) libraryExclusionSet(ctx context.Context, schoolID string, scope Scope) (ExclusionSet, error) {
	markers, err := e.library.ListLibraryExclusions(ctx, schoolID, scope)
	if err != nil {
		return nil, err
	}
	set := make(ExclusionSet, len(markers))
	for _, m := range markers {
		set.Add(m.ResourceID())
	}
	return set, nil
}

// teacherExclusionSet collects tier-3 exclusions that apply to the user.
func (e *Engine) teacherExclusionSet(ctx context.Context, user *User, rt ResourceType) (ExclusionSet, error) {
	rows, err := e.exclusions.ListTeacherExclusions(ctx, user.SchoolID, rt)
	if err != nil {
		return nil, err
	}
	set := make(ExclusionSet, len(rows))
	for _, x := range rows {
		if x.AppliesTo(user) {
			set.Add(x.ResourceID)
		}
	}
	return set, nil
}

// teacherExclusionSetForClass collects tier-3 exclusions matching either the
// user directly or a specific class (used for subject views, where the
// relevant class is the one the subject is taught to).
func (e *Engine) teacherExclusionSetForClass(ctx context.Context, user *User, classID string, rt ResourceType) (ExclusionSet, error) {
	rows, err := e.exclusions.ListTeacherExclusions(ctx, user.SchoolID, rt)
	if err != nil {
		return nil, err
	}
	set := make(ExclusionSet, len(rows))
	for _, x := range rows {
		switch {
		case x.StudentID == "" && x.ClassID == "":
			set.Add(x.ResourceID)
		case x.StudentID != "" && x.StudentID == user.ID:
			set.Add(x.ResourceID)
		case x.ClassID != "" && classID != "" && x.ClassID == classID:
			set.Add(x.ResourceID)
		}
	}
	return set, nil
}

// subjectExclusionSet collects the school-owner subject "turn off" list.
func (e *Engine) subjectExclusionSet(ctx context.Context, schoolID string) (ExclusionSet, error) {
	ids, err := e.exclusions.ExcludedSubjectIDs(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	return NewExclusionSet(ids...), nil
}
