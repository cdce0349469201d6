// Package gate decides whether a page renders, waits or redirects.
//
// Decide is a pure function of the current session and profile. Watch wires
// it to the live session and profile streams so every change produces a
// fresh decision; nothing is cached between evaluations.
package gate

import (
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
)

// Redirect targets. Other parts of the product link to these, so they are
// fixed.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
	PricingPath   = "/pricing"
)

type Kind string

const (
	KindLoading  Kind = "loading"
	KindRedirect Kind = "redirect"
	KindAllow    Kind = "allow"
)

// Decision is the outcome of one evaluation. Path is set only for redirects.
type Decision struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path,omitempty"`
}

func Loading() Decision { return Decision{Kind: KindLoading} }
func Allow() Decision { return Decision{Kind: KindAllow} }
func Redirect(path string) Decision { return Decision{Kind: KindRedirect, Path: path} }

// Requirements are the per-route extras on top of being signed in.
type Requirements struct {
	RequirePaid  bool `yaml:"requirePaid" json:"requirePaid"`
	RequireAdmin bool `yaml:"requireAdmin" json:"requireAdmin"`
}

// Input is everything a decision depends on.
type Input struct {
	Session        auth.Session
	SessionLoading bool
	Profile        *model.Profile
	ProfileLoading bool
	Requirements   Requirements
	AdminEmail     string
}

// Decide evaluates a protected route. The order of the checks matters:
//
//  1. session loading (or profile loading on a paid route) → Loading
//  2. no session → /login
//  3. admin route and not the admin → /dashboard
//  4. paid route and tier not paid/pro/commercial → /pricing
//  5. Allow
func Decide(in Input) Decision {
	if in.SessionLoading || (in.Requirements.RequirePaid && in.ProfileLoading) {
		return Loading()
	}
	if !in.Session.Present {
		return Redirect(LoginPath)
	}
	if in.Requirements.RequireAdmin && !isAdmin(in.Session.Email, in.AdminEmail) {
		return Redirect(DashboardPath)
	}
	if in.Requirements.RequirePaid && (in.Profile == nil || !in.Profile.SubscriptionTier.IsPaid()) {
		return Redirect(PricingPath)
	}
	return Allow()
}

// DecideTrial evaluates the trial page: anyone already signed in with a
// tier goes to the dashboard, everyone else sees the trial offer.
func DecideTrial(in Input) Decision {
	if in.SessionLoading || in.ProfileLoading {
		return Loading()
	}
	if in.Session.Present && in.Profile != nil && in.Profile.SubscriptionTier != "" {
		return Redirect(DashboardPath)
	}
	return Allow()
}

// isAdmin is an exact comparison. An unconfigured admin email matches no one.
func isAdmin(email, adminEmail string) bool {
	return adminEmail != "" && email == adminEmail
}
