package stores

import (
	"time"

	"github.com/classware/access"
	"github.com/oarkflow/date"
)

// rowScanner is the slice of the SQL rows API the scan helpers need.
type rowScanner interface {
	Scan(dest ...any) error
}

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlNullTimeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanTime(raw interface{}) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func cloneLibraryGrant(g *access.LibraryGrant) *access.LibraryGrant {
	if g == nil {
		return nil
	}
	dup := *g
	return &dup
}

func cloneSchoolGrant(g *access.SchoolGrant) *access.SchoolGrant {
	if g == nil {
		return nil
	}
	dup := *g
	return &dup
}

func scopeInList(scope access.Scope, scopes []access.Scope) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
