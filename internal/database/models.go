package database

import "time"

// Message roles stored in the role column.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of a chat's conversation with the model. Replies are
// stored with RoleModel and the user ID they answered.
type Message struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	UserID    int64     `db:"user_id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	Timestamp time.Time `db:"timestamp"`
	CreatedAt time.Time `db:"created_at"`
}

// Artifact is the last known state of an ingested document.
type Artifact struct {
	ID        int64     `db:"id"`
	RemoteID  string    `db:"remote_id"`
	Label     string    `db:"label"`
	Kind      string    `db:"kind"`
	Status    string    `db:"status"`
	Location  string    `db:"location"`
	Optional  bool      `db:"optional"`
	Provider  string    `db:"provider"`
	UpdatedAt time.Time `db:"updated_at"`
}
