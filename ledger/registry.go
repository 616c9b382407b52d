package ledger

import (
	"context"
	"strings"

	"github.com/warp/course-ledger/ids"
)

// Registry validates and applies course creation and deactivation.
type Registry struct {
	env *env
}

// CreateCourse stores a new active course owned by creator and returns its id.
// A CourseCreated event is published once the write has committed.
func (r *Registry) CreateCourse(ctx context.Context, creator Identity, in CourseInput) (CourseID, error) {
	if err := in.Validate(creator); err != nil {
		return 0, err
	}

	course := Course{
		Title:             strings.TrimSpace(in.Title),
		Description:       strings.TrimSpace(in.Description),
		Price:             in.Price,
		Instructor:        creator,
		ProtectedResource: in.ProtectedResource,
		IsActive:          true,
		CreatedAt:         r.env.now(),
	}

	var id CourseID
	err := r.env.store.WithTx(ctx, func(tx Store) error {
		var err error
		id, err = tx.InsertCourse(ctx, course)
		return err
	})
	if err != nil {
		return 0, err
	}

	r.env.events.Publish(CourseCreated{
		EventID:    ids.NewEvent(),
		CourseID:   id,
		Instructor: creator,
		Price:      course.Price,
		CreatedAt:  course.CreatedAt,
	})
	return id, nil
}

// DeactivateCourse removes the course from the active listing. Only the
// instructor may do this. Enrollments and the record itself are kept, and
// deactivating an inactive course is a no-op.
func (r *Registry) DeactivateCourse(ctx context.Context, caller Identity, id CourseID) error {
	return r.env.store.WithTx(ctx, func(tx Store) error {
		course, err := tx.GetCourse(ctx, id)
		if err != nil {
			return err
		}
		if caller != course.Instructor {
			return ErrUnauthorized
		}
		if !course.IsActive {
			return nil
		}
		return tx.SetCourseActive(ctx, id, false)
	})
}
