package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID    string    `bun:"user_id,pk" json:"user_id"`
	FirstName string    `bun:"first_name" json:"first_name"`
	LastName  string    `bun:"last_name" json:"last_name"`
	Email     string    `bun:"email" json:"email"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}
