package models

import "time"

// UserConfig is a named free-form text blob attached to a user.
type UserConfig struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Name       string    `json:"name"`
	ConfigText string    `json:"config_text"`
	CreatedAt  time.Time `json:"created_at"`
}
