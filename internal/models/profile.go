package models

import "time"

// Profile хранит денормализованные контактные данные пользователя.
type Profile struct {
	ID          string    `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	CompanyName string    `db:"company_name" json:"company_name"`
	Email       string    `db:"email" json:"email"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
