package awssecurity

import (
	"context"
	"fmt"

	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// collectRootAccount reads the IAM account summary.
//
// AccountAccessKeysPresent in the summary map is the number of root access keys.
// AccountMFAEnabled is 1 when virtual or hardware MFA is enabled on root.
func (r *collection) collectRootAccount(ctx context.Context, client iamAPIClient) error {
	out, err := client.GetAccountSummary(ctx, &iamsvc.GetAccountSummaryInput{})
	if err != nil {
		return r.record("iam", "", fmt.Errorf("get IAM account summary: %w", err), models.ResourceAccount)
	}
	r.builder.Add(evidence.NewResource(evidence.AccountResourceID(r.account), models.ResourceAccount, "",
		map[string]evidence.Value{
			evidence.AttrRootAccessKeysPresent: evidence.Bool(out.SummaryMap["AccountAccessKeysPresent"] > 0),
			evidence.AttrRootMFAEnabled:        evidence.Bool(out.SummaryMap["AccountMFAEnabled"] > 0),
		}))
	return nil
}
