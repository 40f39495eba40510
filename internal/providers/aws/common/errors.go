package common

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
)

var accessDeniedCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnauthorizedOperation":       true,
	"AuthorizationError":          true,
	"UnauthorizedAccess":          true,
	"AuthorizationErrorException": true,
}

var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"RequestThrottled":                       true,
	"SlowDown":                               true,
	"ProvisionedThroughputExceededException": true,
}

var credentialCodes = map[string]bool{
	"InvalidClientTokenId":        true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"UnrecognizedClientException": true,
	"AuthFailure":                 true,
	"SignatureDoesNotMatch":       true,
	"InvalidAccessKeyId":          true,
}

// ErrorCode returns the AWS API error code carried by err, or "".
func ErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// IsAccessDenied reports whether err is an authorization failure for a single
// operation. The credentials themselves are valid.
func IsAccessDenied(err error) bool {
	return accessDeniedCodes[ErrorCode(err)]
}

// IsThrottled reports whether err is a throttling response that survived the
// SDK retryer.
func IsThrottled(err error) bool {
	return throttleCodes[ErrorCode(err)]
}

// IsCredentialError reports whether err means the credentials are unusable.
func IsCredentialError(err error) bool {
	return credentialCodes[ErrorCode(err)]
}

// IsUnreachable reports whether err is a network-level failure.
func IsUnreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// IsNotFound reports whether err carries one of the given error codes. S3
// reports missing bucket sub-resources (policy, encryption, replication)
// this way.
func IsNotFound(err error, codes ...string) bool {
	code := ErrorCode(err)
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}
