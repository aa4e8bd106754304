package domain

import "time"

// Course is the catalog projection this service reads; the catalog owns the table
type Course struct {
	ID                     uint      `json:"id" gorm:"primaryKey"`
	Title                  string    `json:"title" gorm:"not null"`
	PriceMinor             int64     `json:"price_minor" gorm:"not null"`
	FinalModulesPriceMinor int64     `json:"final_modules_price_minor" gorm:"not null;default:0"`
	IsActive               bool      `json:"is_active" gorm:"not null"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Course) TableName() string {
	return "courses"
}

// Enrollment grants a user access to a course
type Enrollment struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_enrollment_user_course,priority:1"`
	CourseID     uint      `json:"course_id" gorm:"not null;uniqueIndex:idx_enrollment_user_course,priority:2"`
	IsFullAccess bool      `json:"is_full_access" gorm:"not null;default:false"`
	PaymentID    *uint     `json:"payment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Enrollment) TableName() string {
	return "enrollments"
}

// ProcessedOperation is a row of the idempotency-key table
type ProcessedOperation struct {
	OperationKey string    `gorm:"primaryKey;size:191"`
	Result       string    `gorm:"size:64"`
	CreatedAt    time.Time
}

// TableName specifies the table name
func (ProcessedOperation) TableName() string {
	return "processed_operations"
}

// AllModels lists every table this service migrates
func AllModels() []interface{} {
	return []interface{}{
		&Payment{},
		&LedgerEntry{},
		&Balance{},
		&WithdrawalRequest{},
		&Referral{},
		&ReferralCode{},
		&Promocode{},
		&PromocodeRedemption{},
		&Course{},
		&Enrollment{},
		&ProcessedOperation{},
	}
}
