package model

import "time"

// Visibility controls whether a link shows up on the public dashboard
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Valid reports whether v is one of the known visibility values
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// ShortLink represents a shortened URL entity
type ShortLink struct {
	ShortID     string     `json:"shortId"`
	OriginalURL string     `json:"originalUrl"`
	Title       string     `json:"title,omitempty"`
	Visibility  Visibility `json:"visibility"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClickCount  int64      `json:"clickCount"`
}

// ShortenRequest represents the request body for creating a short URL
type ShortenRequest struct {
	URL        string     `json:"url"`
	Title      string     `json:"title,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
}

// ShortenResponse represents the response for a created short URL
type ShortenResponse struct {
	ShortID  string `json:"shortId"`
	ShortURL string `json:"shortUrl"`
}

// PublicLink is one entry of the public dashboard
type PublicLink struct {
	ShortID     string `json:"shortId"`
	OriginalURL string `json:"originalUrl"`
	CreatedAt   string `json:"createdAt"`
	ClickCount  int64  `json:"clickCount"`
	Title       string `json:"title,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
