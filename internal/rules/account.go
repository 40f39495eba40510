package rules

import (
	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// DefaultAccessKeyMaxAgeDays is the rotation window for IAM access keys.
const DefaultAccessKeyMaxAgeDays = 90

// RootAccessKeyRule flags accounts whose root user still has access keys.
// Root keys cannot be scoped by IAM policy, so any present key is a FAIL.
func RootAccessKeyRule() Rule {
	return Rule{
		ID:           "ROOT_ACCESS_KEY_EXISTS",
		Version:      1,
		Title:        "Root account has no access keys",
		Category:     models.CategoryAccount,
		Severity:     models.SeverityCritical,
		ResourceType: models.ResourceAccount,
		Requires:     []string{evidence.AttrRootAccessKeysPresent},
		Remediation:  "guide/account/root-access-keys",
		Check: boolCheck(evidence.AttrRootAccessKeysPresent, true,
			"root account of %s has active access keys",
			"root account of %s has no access keys"),
	}
}

// RootMFARule flags accounts whose root user has no MFA device.
func RootMFARule() Rule {
	return Rule{
		ID:           "ROOT_ACCOUNT_MFA_DISABLED",
		Version:      1,
		Title:        "Root account has MFA enabled",
		Category:     models.CategoryAccount,
		Severity:     models.SeverityCritical,
		ResourceType: models.ResourceAccount,
		Requires:     []string{evidence.AttrRootMFAEnabled},
		Remediation:  "guide/account/root-mfa",
		Check: boolCheck(evidence.AttrRootMFAEnabled, false,
			"root account of %s has no MFA device",
			"root account of %s has MFA enabled"),
	}
}

// IAMUserMFARule flags console users without an MFA device. API-only users
// have no login profile and are not applicable.
func IAMUserMFARule() Rule {
	return Rule{
		ID:           "IAM_USER_NO_MFA",
		Version:      1,
		Title:        "Console users have MFA enabled",
		Category:     models.CategoryAccount,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceIAMUser,
		Requires:     []string{evidence.AttrConsoleAccess, evidence.AttrMFAEnabled},
		Remediation:  "guide/account/iam-user-mfa",
		Check: func(ctx CheckContext) (Outcome, error) {
			console, err := boolAttr(ctx.Resource, evidence.AttrConsoleAccess)
			if err != nil {
				return Outcome{}, err
			}
			if !console {
				return NotApplicable("user %s has no console access", ctx.Resource.ID()), nil
			}
			mfa, err := boolAttr(ctx.Resource, evidence.AttrMFAEnabled)
			if err != nil {
				return Outcome{}, err
			}
			if !mfa {
				return Fail("console user %s has no MFA device", ctx.Resource.ID()), nil
			}
			return Pass("console user %s has MFA enabled", ctx.Resource.ID()), nil
		},
	}
}

// AccessKeyAgeRule flags active access keys older than max_age_days.
// Inactive keys are not applicable.
func AccessKeyAgeRule() Rule {
	return Rule{
		ID:           "IAM_ACCESS_KEY_AGE",
		Version:      1,
		Title:        "Access keys are rotated",
		Category:     models.CategoryAccount,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceAccessKey,
		Requires:     []string{evidence.AttrKeyStatus, evidence.AttrKeyAgeDays},
		Remediation:  "guide/account/access-key-rotation",
		Params:       map[string]float64{"max_age_days": DefaultAccessKeyMaxAgeDays},
		Check: func(ctx CheckContext) (Outcome, error) {
			status, err := stringAttr(ctx.Resource, evidence.AttrKeyStatus)
			if err != nil {
				return Outcome{}, err
			}
			if status != "Active" {
				return NotApplicable("access key %s is %s", ctx.Resource.ID(), status), nil
			}
			age, err := numberAttr(ctx.Resource, evidence.AttrKeyAgeDays)
			if err != nil {
				return Outcome{}, err
			}
			limit := ctx.Param("max_age_days", DefaultAccessKeyMaxAgeDays)
			if age > limit {
				return Fail("access key %s is %.0f days old (limit %.0f)", ctx.Resource.ID(), age, limit), nil
			}
			return Pass("access key %s is %.0f days old", ctx.Resource.ID(), age), nil
		},
	}
}
