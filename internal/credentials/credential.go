// Package credentials holds the authentication state the gateway reads at the
// start of every call. The gateway never mutates it; the settings file watcher
// replaces the active credential as a whole value.
package credentials

import "strings"

// AuthMode selects which authentication protocol a credential drives.
type AuthMode string

const (
	// AuthModeSigning uses a key pair to derive a per-request signature and
	// routes to the streaming invoke endpoint.
	AuthModeSigning AuthMode = "signing"
	// AuthModeBearer sends an opaque token verbatim and routes to the
	// single-document converse endpoint.
	AuthModeBearer AuthMode = "bearer"
)

// DefaultRegion applies when a credential does not carry one.
const DefaultRegion = "us-east-1"

// Credential is a tagged union over the two supported auth variants. Mode
// decides which field group is meaningful; switching variants is always a
// full replacement of the value.
type Credential struct {
	Mode AuthMode `json:"mode"`

	// Signing variant.
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`

	// Bearer variant.
	APIKey string `json:"api_key,omitempty"`

	Region string `json:"region,omitempty"`
}

// Complete reports whether the credential carries everything its variant
// needs. An incomplete credential must be treated the same as an absent one.
func (c Credential) Complete() bool {
	switch c.Mode {
	case AuthModeSigning:
		return strings.TrimSpace(c.AccessKeyID) != "" && strings.TrimSpace(c.SecretAccessKey) != ""
	case AuthModeBearer:
		return strings.TrimSpace(c.APIKey) != ""
	default:
		return false
	}
}

// RegionOrDefault returns the configured region, falling back to DefaultRegion.
func (c Credential) RegionOrDefault() string {
	if r := strings.TrimSpace(c.Region); r != "" {
		return r
	}
	return DefaultRegion
}
