package domain

import "time"

// TempCodeStatus is the lifecycle state of a temporary code.
type TempCodeStatus string

const (
	TempCodeActive  TempCodeStatus = "active"
	TempCodeUsedUp  TempCodeStatus = "used_up"
	TempCodeExpired TempCodeStatus = "expired"
	TempCodeRevoked TempCodeStatus = "revoked"
)

// Code channels.
const (
	CreatedFromDashboard = "dashboard"
	CreatedFromAPI       = "api"
)

// TempCode is stored at locks/{lockId}/temp_codes/{code}.
type TempCode struct {
	Code        string         `json:"code"`
	LockID      string         `json:"lockId"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	CreatedBy   string         `json:"createdBy"`
	CreatedFrom string         `json:"createdFrom"`
	Description string         `json:"description"`
	MaxUses     int            `json:"maxUses"`
	UsedCount   int            `json:"usedCount"`
	Status      TempCodeStatus `json:"status"`
	LastUsedAt  *time.Time     `json:"lastUsedAt,omitempty"`
	RevokedAt   *time.Time     `json:"revokedAt,omitempty"`
	RevokedBy   string         `json:"revokedBy,omitempty"`
}

// IsExpired reports whether now is past the expiry instant. A code is still
// valid at exactly ExpiresAt.
func (c TempCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsUsedUp reports whether every allowed use has been consumed.
func (c TempCode) IsUsedUp() bool {
	return c.UsedCount >= c.MaxUses
}

// RemainingUses never goes negative.
func (c TempCode) RemainingUses() int {
	if c.UsedCount >= c.MaxUses {
		return 0
	}
	return c.MaxUses - c.UsedCount
}

// IsUsable reports whether a verification right now may succeed.
func (c TempCode) IsUsable(now time.Time) bool {
	return c.Status == TempCodeActive && !c.IsExpired(now) && !c.IsUsedUp()
}

// IsPurgeable reports whether the nightly cleanup should delete the code.
func (c TempCode) IsPurgeable(now time.Time) bool {
	if c.Status == TempCodeUsedUp || c.Status == TempCodeExpired {
		return true
	}
	return c.IsExpired(now)
}

// VerifyReason explains a verification outcome.
type VerifyReason string

const (
	VerifyOK       VerifyReason = "ok"
	VerifyNotFound VerifyReason = "not_found"
	VerifyExpired  VerifyReason = "expired"
	VerifyUsedUp   VerifyReason = "used_up"
	VerifyRevoked  VerifyReason = "revoked"
)
