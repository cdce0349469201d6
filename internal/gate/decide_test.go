package gate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
)

const adminEmail = "admin@leaseshield.test"

func profileWithTier(tier model.Tier) *model.Profile {
	p := model.DefaultProfile("user-1")
	p.SubscriptionTier = tier
	return p
}

func TestDecide_Ordering(t *testing.T) {
	tiers := []*model.Profile{
		nil,
		profileWithTier(model.TierFree),
		profileWithTier(model.TierPaid),
		profileWithTier(model.TierPro),
		profileWithTier(model.TierCommercial),
	}
	bools := []bool{false, true}

	for _, sessionLoading := range bools {
		for _, present := range bools {
			for _, requireAdmin := range bools {
				for _, emailMatches := range bools {
					for _, requirePaid := range bools {
						for _, profileLoading := range bools {
							for _, prof := range tiers {
								sess := auth.Anonymous
								if present {
									sess = auth.Session{UserID: "user-1", Email: "someone@leaseshield.test", Present: true}
									if emailMatches {
										sess.Email = adminEmail
									}
								}
								in := Input{
									Session:        sess,
									SessionLoading: sessionLoading,
									Profile:        prof,
									ProfileLoading: profileLoading,
									Requirements:   Requirements{RequirePaid: requirePaid, RequireAdmin: requireAdmin},
									AdminEmail:     adminEmail,
								}

								got := Decide(in)

								name := fmt.Sprintf("%+v", in)
								switch {
								case sessionLoading:
									assert.Equal(t, Loading(), got, name)
								case requirePaid && profileLoading:
									assert.Equal(t, Loading(), got, name)
								case !present:
									assert.Equal(t, Redirect(LoginPath), got, name)
								case requireAdmin && !emailMatches:
									assert.Equal(t, Redirect(DashboardPath), got, name)
								case requirePaid && (prof == nil || prof.SubscriptionTier == model.TierFree):
									assert.Equal(t, Redirect(PricingPath), got, name)
								default:
									assert.Equal(t, Allow(), got, name)
								}
							}
						}
					}
				}
			}
		}
	}
}

func TestDecide_TierUnion(t *testing.T) {
	sess := auth.Session{UserID: "user-1", Email: "tenant@leaseshield.test", Present: true}
	paidOnly := Requirements{RequirePaid: true}

	tests := []struct {
		name    string
		profile *model.Profile
		want    Decision
	}{
		{"paid", profileWithTier(model.TierPaid), Allow()},
		{"pro", profileWithTier(model.TierPro), Allow()},
		{"commercial", profileWithTier(model.TierCommercial), Allow()},
		{"free", profileWithTier(model.TierFree), Redirect(PricingPath)},
		{"nil profile", nil, Redirect(PricingPath)},
		{"empty tier", profileWithTier(""), Redirect(PricingPath)},
		{"unknown tier", profileWithTier("enterprise"), Redirect(PricingPath)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(Input{Session: sess, Profile: tt.profile, Requirements: paidOnly})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecide_AdminBeforePaid(t *testing.T) {
	sess := auth.Session{UserID: "user-1", Email: "tenant@leaseshield.test", Present: true}

	got := Decide(Input{
		Session:      sess,
		Profile:      profileWithTier(model.TierFree),
		Requirements: Requirements{RequirePaid: true, RequireAdmin: true},
		AdminEmail:   adminEmail,
	})

	assert.Equal(t, Redirect(DashboardPath), got)
}

func TestDecide_AdminEmailIsExact(t *testing.T) {
	admin := Requirements{RequireAdmin: true}

	upper := auth.Session{UserID: "a", Email: "ADMIN@leaseshield.test", Present: true}
	assert.Equal(t, Redirect(DashboardPath), Decide(Input{Session: upper, Requirements: admin, AdminEmail: adminEmail}))

	noAdminConfigured := auth.Session{UserID: "a", Email: "", Present: true}
	assert.Equal(t, Redirect(DashboardPath), Decide(Input{Session: noAdminConfigured, Requirements: admin}))

	exact := auth.Session{UserID: "a", Email: adminEmail, Present: true}
	assert.Equal(t, Allow(), Decide(Input{Session: exact, Requirements: admin, AdminEmail: adminEmail}))
}

func TestDecide_ProfileLoadingOnlyMattersForPaidRoutes(t *testing.T) {
	sess := auth.Session{UserID: "user-1", Present: true}

	assert.Equal(t, Allow(), Decide(Input{Session: sess, ProfileLoading: true}))
	assert.Equal(t, Loading(), Decide(Input{Session: sess, ProfileLoading: true, Requirements: Requirements{RequirePaid: true}}))
}

func TestDecideTrial(t *testing.T) {
	signedIn := auth.Session{UserID: "user-1", Present: true}

	tests := []struct {
		name string
		in   Input
		want Decision
	}{
		{"session loading", Input{SessionLoading: true}, Loading()},
		{"profile loading", Input{Session: signedIn, ProfileLoading: true}, Loading()},
		{"anonymous", Input{}, Allow()},
		{"signed in without profile", Input{Session: signedIn}, Allow()},
		{"signed in with free tier", Input{Session: signedIn, Profile: profileWithTier(model.TierFree)}, Redirect(DashboardPath)},
		{"signed in with pro tier", Input{Session: signedIn, Profile: profileWithTier(model.TierPro)}, Redirect(DashboardPath)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideTrial(tt.in))
		})
	}
}
