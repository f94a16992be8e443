package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type Session struct {
	AccessToken string      `json:"access_token"`
	User        SessionUser `json:"user"`
}

type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
