package model

import (
	"time"

	"github.com/google/uuid"
)

// Device types derived from the visitor's User-Agent
const (
	DeviceMobile = "MOBILE"
	DeviceTablet = "TABLET"
	DevicePC     = "PC"
)

// RefererDirect is the referer bucket for traffic without a Referer header
const RefererDirect = "direct"

// ClickEvent is one recorded traversal of a short link. Events are
// append-only and never updated after they are stored.
type ClickEvent struct {
	ID         uuid.UUID `json:"id"`
	ShortID    string    `json:"shortId"`
	Timestamp  time.Time `json:"timestamp"`
	Referer    string    `json:"referer,omitempty"`
	IPHash     string    `json:"ipHash,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Country    string    `json:"country,omitempty"`
	DeviceType string    `json:"deviceType,omitempty"`
}

// Window bounds a click event query. Zero values leave that side open.
// Since is inclusive, Until is exclusive.
type Window struct {
	Since time.Time
	Until time.Time
}
