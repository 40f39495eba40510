package awssecurity

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
)

const codeNoSuchEntity = "NoSuchEntity"

// collectIAM records IAM users with their console and MFA state, each
// user's access keys, and the root account summary.
// The ListUsers paginator handles accounts with many users.
func (r *collection) collectIAM(ctx context.Context, c *secClients) error {
	if r.wants(models.ResourceAccount) {
		if err := r.collectRootAccount(ctx, c.IAM); err != nil {
			return err
		}
	}
	if !r.wants(models.ResourceIAMUser, models.ResourceAccessKey) {
		return nil
	}

	paginator := iamsvc.NewListUsersPaginator(c.IAM, &iamsvc.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return r.record("iam", "", fmt.Errorf("list IAM users: %w", err),
				models.ResourceIAMUser, models.ResourceAccessKey)
		}
		for _, u := range page.Users {
			userName := aws.ToString(u.UserName)
			if r.wants(models.ResourceIAMUser) {
				attrs, err := userAttributes(ctx, c.IAM, userName)
				if err != nil {
					return r.record("iam", "", err, models.ResourceIAMUser)
				}
				r.builder.Add(evidence.NewResource(aws.ToString(u.Arn), models.ResourceIAMUser, "", attrs))
			}
			if r.wants(models.ResourceAccessKey) {
				if err := r.collectAccessKeys(ctx, c.IAM, userName); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// userAttributes reports whether the user has a console password and at
// least one MFA device. GetLoginProfile returns NoSuchEntity for API-only
// users.
func userAttributes(ctx context.Context, client iamAPIClient, userName string) (map[string]evidence.Value, error) {
	attrs := make(map[string]evidence.Value, 2)

	_, err := client.GetLoginProfile(ctx, &iamsvc.GetLoginProfileInput{UserName: aws.String(userName)})
	switch {
	case err == nil:
		attrs[evidence.AttrConsoleAccess] = evidence.Bool(true)
	case common.IsNotFound(err, codeNoSuchEntity):
		attrs[evidence.AttrConsoleAccess] = evidence.Bool(false)
	case ctx.Err() != nil || common.IsCredentialError(err) || common.IsUnreachable(err):
		return nil, fmt.Errorf("get login profile %s: %w", userName, err)
	}

	mfa, err := client.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{UserName: aws.String(userName)})
	switch {
	case err == nil:
		attrs[evidence.AttrMFAEnabled] = evidence.Bool(len(mfa.MFADevices) > 0)
	case ctx.Err() != nil || common.IsCredentialError(err) || common.IsUnreachable(err):
		return nil, fmt.Errorf("list MFA devices %s: %w", userName, err)
	}
	return attrs, nil
}

// collectAccessKeys records every access key of userName with its status
// and age in whole days.
func (r *collection) collectAccessKeys(ctx context.Context, client iamAPIClient, userName string) error {
	out, err := client.ListAccessKeys(ctx, &iamsvc.ListAccessKeysInput{UserName: aws.String(userName)})
	if err != nil {
		return r.record("iam", "", fmt.Errorf("list access keys %s: %w", userName, err), models.ResourceAccessKey)
	}
	now := r.now()
	for _, k := range out.AccessKeyMetadata {
		attrs := map[string]evidence.Value{
			evidence.AttrKeyUser:   evidence.String(userName),
			evidence.AttrKeyStatus: evidence.String(string(k.Status)),
		}
		if k.CreateDate != nil {
			age := math.Floor(now.Sub(*k.CreateDate).Hours() / 24)
			attrs[evidence.AttrKeyAgeDays] = evidence.Number(math.Max(age, 0))
		}
		r.builder.Add(evidence.NewResource(aws.ToString(k.AccessKeyId), models.ResourceAccessKey, "", attrs))
	}
	return nil
}

// rolePolicies returns the inline policy documents attached to roleName.
// GetRolePolicy returns them URL-encoded; callers decode.
func rolePolicies(ctx context.Context, client iamAPIClient, roleName string) ([]string, error) {
	list, err := client.ListRolePolicies(ctx, &iamsvc.ListRolePoliciesInput{RoleName: aws.String(roleName)})
	if err != nil {
		return nil, fmt.Errorf("list role policies %s: %w", roleName, err)
	}
	docs := make([]string, 0, len(list.PolicyNames))
	for _, name := range list.PolicyNames {
		out, err := client.GetRolePolicy(ctx, &iamsvc.GetRolePolicyInput{
			RoleName:   aws.String(roleName),
			PolicyName: aws.String(name),
		})
		if err != nil {
			return nil, fmt.Errorf("get role policy %s/%s: %w", roleName, name, err)
		}
		docs = append(docs, aws.ToString(out.PolicyDocument))
	}
	return docs, nil
}

// roleNameFromARN extracts "name" from "arn:aws:iam::123:role/path/name".
func roleNameFromARN(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
