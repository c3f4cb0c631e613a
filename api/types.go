package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Timestamp accepts the date formats the backend emits: RFC 3339 and the
// zone-less ISO local date-time ("2024-05-01T10:15:30.123").
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Profile is the signed-in user's own account snapshot
type Profile struct {
	ID        int64     `json:"id,omitempty"`
	Username  string    `json:"username"`
	Balance   float64   `json:"balance"`
	Role      string    `json:"role,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// AuthResponse is returned by login, register and refresh. The profile fields
// sit next to the tokens in the same JSON object.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Profile
}

// Token returns the credential pair carried by the response
func (r *AuthResponse) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}
}

// User returns the profile part of the response
func (r *AuthResponse) User() *Profile {
	p := r.Profile
	return &p
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updateProfileRequest struct {
	Username string `json:"username"`
}

// TransferRequest is the body of both the direct and the two-phase transfer
type TransferRequest struct {
	ReceiverUsername string  `json:"receiverUsername"`
	Amount           float64 `json:"amount"`
	Description      string  `json:"description,omitempty"`
}

// Transaction status values reported by the backend
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// History direction values
const (
	DirectionSent     = "SENT"
	DirectionReceived = "RECEIVED"
)

type Transaction struct {
	ID               int64     `json:"id"`
	SenderID         int64     `json:"senderId"`
	SenderUsername   string    `json:"senderUsername"`
	ReceiverUsername string    `json:"receiverUsername"`
	Amount           float64   `json:"amount"`
	Status           string    `json:"status"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        Timestamp `json:"createdAt"`
}

// HistoryEntry is one transaction seen from the current user's side
type HistoryEntry struct {
	ID          int64     `json:"id"`
	OtherUser   string    `json:"otherUser"`
	Amount      float64   `json:"amount"`
	Status      string    `json:"status"`
	Type        string    `json:"type"` // SENT or RECEIVED
	Description string    `json:"description,omitempty"`
	CreatedAt   Timestamp `json:"createdAt"`
}

type Balance struct {
	Username string  `json:"username"`
	Balance  float64 `json:"balance"`
}

// Validation is the answer to "can I send money to this username?"
type Validation struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

type PublicUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt Timestamp `json:"createdAt"`
}

type UserPage struct {
	Content       []PublicUser `json:"content"`
	CurrentPage   int          `json:"currentPage"`
	TotalElements int64        `json:"totalElements"`
	TotalPages    int          `json:"totalPages"`
	Size          int          `json:"size"`
}
