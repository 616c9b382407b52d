package ledger

import (
	"context"
)

// Catalog serves read-only projections. It never mutates the store and
// never returns a protected resource.
type Catalog struct {
	env *env
}

// ActiveCourses returns the ids of all active courses in creation order.
func (c *Catalog) ActiveCourses(ctx context.Context) ([]CourseID, error) {
	ids, err := c.env.store.ActiveCourseIDs(ctx)
	return nonNil(ids), err
}

// ActiveCourseInfos returns the public view of every active course.
func (c *Catalog) ActiveCourseInfos(ctx context.Context) ([]CourseInfo, error) {
	ids, err := c.env.store.ActiveCourseIDs(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]CourseInfo, 0, len(ids))
	for _, id := range ids {
		course, err := c.env.store.GetCourse(ctx, id)
		if err != nil {
			// Deactivated concurrently; the listing may be slightly stale.
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if !course.IsActive {
			continue
		}
		infos = append(infos, course.Info())
	}
	return infos, nil
}

// CourseInfo returns the public view of one course, active or not.
func (c *Catalog) CourseInfo(ctx context.Context, id CourseID) (CourseInfo, error) {
	course, err := c.env.store.GetCourse(ctx, id)
	if err != nil {
		return CourseInfo{}, err
	}
	return course.Info(), nil
}

// StudentCourses returns the courses account is enrolled in. Unknown
// accounts get an empty slice.
func (c *Catalog) StudentCourses(ctx context.Context, account Identity) ([]CourseID, error) {
	ids, err := c.env.store.StudentCourseIDs(ctx, account)
	return nonNil(ids), err
}

// InstructorCourses returns the courses account created. Unknown accounts
// get an empty slice.
func (c *Catalog) InstructorCourses(ctx context.Context, account Identity) ([]CourseID, error) {
	ids, err := c.env.store.InstructorCourseIDs(ctx, account)
	return nonNil(ids), err
}

// Roster lists the enrollments of a course. Only the instructor may read it.
func (c *Catalog) Roster(ctx context.Context, caller Identity, id CourseID) ([]Enrollment, error) {
	course, err := c.env.store.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != course.Instructor {
		return nil, ErrUnauthorized
	}
	enrollments, err := c.env.store.CourseEnrollments(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollments == nil {
		enrollments = []Enrollment{}
	}
	return enrollments, nil
}

func nonNil(ids []CourseID) []CourseID {
	if ids == nil {
		return []CourseID{}
	}
	return ids
}
