package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ProfileConfig is a resolved AWS identity: a loaded SDK configuration, the
// account it belongs to and the clients used to inspect it.
type ProfileConfig struct {
	// ProfileName is the name from ~/.aws/credentials or "default".
	ProfileName string

	// AccountID is the resolved AWS account ID (via STS).
	AccountID string

	// Region is the home region. Global services are queried here.
	Region string

	// RoleARN is set when the credentials come from an assumed role.
	RoleARN string

	// Config is the fully loaded AWS SDK v2 configuration.
	Config aws.Config

	// Clients holds clients scoped to the home region.
	Clients *ClientSet
}

// AWSClientProvider loads AWS configurations and resolves active regions.
// It is the sole entry point for AWS credential and region management.
type AWSClientProvider interface {
	// LoadProfile returns a ProfileConfig for the named profile.
	// Pass an empty string to load the default credential chain.
	LoadProfile(ctx context.Context, profile string) (*ProfileConfig, error)

	// LoadAllProfiles returns ProfileConfigs for every profile found in
	// ~/.aws/credentials and ~/.aws/config.
	LoadAllProfiles(ctx context.Context) ([]*ProfileConfig, error)

	// AssumeRole returns a ProfileConfig whose credentials come from assuming
	// roleARN with the base profile. externalID may be empty.
	AssumeRole(ctx context.Context, base *ProfileConfig, roleARN, externalID string) (*ProfileConfig, error)

	// GetActiveRegions returns all regions that are enabled for the account.
	GetActiveRegions(ctx context.Context, cfg *ProfileConfig) ([]string, error)

	// ConfigForRegion clones cfg with the target region set.
	ConfigForRegion(cfg *ProfileConfig, region string) aws.Config
}
