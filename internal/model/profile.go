package model

import "time"

// Tier is the subscription level that gates feature access.
type Tier string

const (
	TierFree       Tier = "free"
	TierPaid       Tier = "paid"
	TierPro        Tier = "pro"
	TierCommercial Tier = "commercial"
)

// IsPaid reports whether the tier passes the paid gate. paid, pro and
// commercial are equivalent here; there is no ordering between them.
func (t Tier) IsPaid() bool {
	switch t {
	case TierPaid, TierPro, TierCommercial:
		return true
	}
	return false
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t == TierFree || t.IsPaid()
}

// Profile is the per-user subscription record. The dashboard only reads it;
// writes come from the backend webhook or an admin action.
type Profile struct {
	UserID           string    `json:"userId"`
	SubscriptionTier Tier      `json:"subscriptionTier"`
	FreeScansUsed    int       `json:"freeScansUsed"`
	MaxAllowedScans  *int      `json:"maxAllowedScans"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DefaultProfile is what a user gets the first time their profile is observed.
func DefaultProfile(userID string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		UserID:           userID,
		SubscriptionTier: TierFree,
		FreeScansUsed:    0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ProfileUpdate is a partial write applied by the backend or an admin.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	UserID           string `json:"userId"`
	SubscriptionTier *Tier  `json:"subscriptionTier,omitempty"`
	FreeScansUsed    *int   `json:"freeScansUsed,omitempty"`
	MaxAllowedScans  *int   `json:"maxAllowedScans,omitempty"`
}

// Apply copies the set fields of u onto p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.SubscriptionTier != nil {
		p.SubscriptionTier = *u.SubscriptionTier
	}
	if u.FreeScansUsed != nil {
		p.FreeScansUsed = *u.FreeScansUsed
	}
	if u.MaxAllowedScans != nil {
		p.MaxAllowedScans = u.MaxAllowedScans
	}
}
