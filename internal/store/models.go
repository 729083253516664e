package store

import "time"

type User struct {
	ID           string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// BlogPost is a published post. JSON tags follow the wire shape served by
// /api/v1/blogs.
type BlogPost struct {
	ID           string    `json:"-"`
	Title        string    `json:"title"`
	User         string    `json:"user"`
	Name         string    `json:"name"`
	Text         string    `json:"text"`
	Link         string    `json:"link"`
	DateReleased string    `json:"date_released"`
	TimeReleased string    `json:"time_released"`
	Comments     Placement `json:"comments"`
	Image        string    `json:"image"`
	CreatedAt    time.Time `json:"-"`
}

// Comment is stored independently of where it sits in a tree; placement is
// recorded only on the owning post.
type Comment struct {
	ID        string
	Text      string
	User      string
	CreatedAt time.Time
}
