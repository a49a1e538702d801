package member

import "time"

type Member struct {
	ID          int       `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Email       *string   `db:"email" json:"email,omitempty"`
	Barcode     *string   `db:"barcode" json:"barcode,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
