package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tair/course-payments/internal/payment/domain"
)

type GormEnrollmentRepository struct {
	db *gorm.DB
}

func NewGormEnrollmentRepository(db *gorm.DB) *GormEnrollmentRepository {
	return &GormEnrollmentRepository{db: db}
}

// Upsert grants access. Full access is never downgraded by a later partial grant.
func (r *GormEnrollmentRepository) Upsert(ctx context.Context, enrollment *domain.Enrollment) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"is_full_access": gorm.Expr("enrollments.is_full_access OR ?", enrollment.IsFullAccess),
				"payment_id":     enrollment.PaymentID,
				"updated_at":     gorm.Expr("CURRENT_TIMESTAMP"),
			}),
		}).
		Create(enrollment).Error
}

func (r *GormEnrollmentRepository) Replace(ctx context.Context, enrollment *domain.Enrollment) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_full_access", "payment_id", "updated_at"}),
		}).
		Create(enrollment).Error
}

func (r *GormEnrollmentRepository) Revoke(ctx context.Context, userID, courseID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&domain.Enrollment{}).Error
}

func (r *GormEnrollmentRepository) Find(ctx context.Context, userID, courseID uint) (*domain.Enrollment, error) {
	var e domain.Enrollment
	err := r.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&e).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("enrollment of user %d in course %d", userID, courseID))
	}
	return &e, nil
}

type GormCourseRepository struct {
	db *gorm.DB
}

func NewGormCourseRepository(db *gorm.DB) *GormCourseRepository {
	return &GormCourseRepository{db: db}
}

func (r *GormCourseRepository) FindByID(ctx context.Context, id uint) (*domain.Course, error) {
	var c domain.Course
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("course %d", id))
	}
	return &c, nil
}
