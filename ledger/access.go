package ledger

import (
	"context"
)

// Gate is the only path by which a protected resource leaves the store.
type Gate struct {
	env *env
}

// ProtectedResource returns the course's resource if caller is its
// instructor or an enrolled student. Deactivated courses stay readable for
// both.
func (g *Gate) ProtectedResource(ctx context.Context, caller Identity, id CourseID) (string, error) {
	course, err := g.env.store.GetCourse(ctx, id)
	if err != nil {
		return "", err
	}
	if caller.IsZero() {
		return "", ErrAccessDenied
	}
	if caller == course.Instructor {
		return course.ProtectedResource, nil
	}

	enrolled, err := g.env.store.HasEnrollment(ctx, id, caller)
	if err != nil {
		return "", err
	}
	if !enrolled {
		return "", ErrAccessDenied
	}
	return course.ProtectedResource, nil
}

// IsEnrolled reports whether account holds an enrollment for the course.
// It fails only when the course is unknown.
func (g *Gate) IsEnrolled(ctx context.Context, id CourseID, account Identity) (bool, error) {
	if _, err := g.env.store.GetCourse(ctx, id); err != nil {
		return false, err
	}
	if account.IsZero() {
		return false, nil
	}
	return g.env.store.HasEnrollment(ctx, id, account)
}
