package ledger

import (
	"context"
	"fmt"
)

// Enrollments validates and applies purchases.
type Enrollments struct {
	env *env
}

// PurchaseCourse enrolls student in course id against an exact payment.
//
// Checks run in this order, all inside one transaction:
//   - the course exists and is active (ErrNotFound)
//   - the student is not the instructor (ErrSelfPurchase)
//   - the student is not already enrolled (ErrAlreadyEnrolled)
//   - tendered equals the price exactly (ErrPaymentMismatch)
//
// The enrollment and the transfer to the instructor commit together. If
// settlement fails the enrollment is rolled back and a *SettlementError
// is returned.
func (e *Enrollments) PurchaseCourse(ctx context.Context, student Identity, id CourseID, tendered Amount) (Enrollment, error) {
	if student.IsZero() {
		return Enrollment{}, &InputError{Field: "student", Reason: "is required"}
	}
	if !tendered.Exact() {
		return Enrollment{}, &InputError{Field: "amount", Reason: "not a native amount"}
	}

	var enrollment Enrollment
	err := e.env.store.WithTx(ctx, func(tx Store) error {
		course, err := tx.GetCourse(ctx, id)
		if err != nil {
			return err
		}
		if !course.IsActive {
			return fmt.Errorf("course %s is not active: %w", id, ErrNotFound)
		}
		if student == course.Instructor {
			return ErrSelfPurchase
		}

		enrolled, err := tx.HasEnrollment(ctx, id, student)
		if err != nil {
			return err
		}
		if enrolled {
			return ErrAlreadyEnrolled
		}
		if !tendered.Equal(course.Price) {
			return &PaymentMismatchError{CourseID: id, Expected: course.Price, Tendered: tendered}
		}

		now := e.env.now()
		transfer := Transfer{
			ID:        e.env.newID(),
			From:      student,
			To:        course.Instructor,
			Amount:    tendered,
			CourseID:  id,
			CreatedAt: now,
		}
		enrollment = Enrollment{
			CourseID:   id,
			Student:    student,
			Price:      tendered,
			TransferID: transfer.ID,
			EnrolledAt: now,
		}

		if err := tx.InsertEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := e.env.settler.Settle(ctx, tx, transfer); err != nil {
			return &SettlementError{CourseID: id, Err: err}
		}
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enrollment, nil
}
