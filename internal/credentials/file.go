package credentials

import (
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"bedrock-gateway/internal/json"
)

// LoadFile reads a credential from a HuJSON settings file. The relaxed syntax
// (comments, trailing commas) keeps hand-edited settings files forgiving.
func LoadFile(path string) (Credential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Credential{}, fmt.Errorf("credentials: read %s: %w", path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return Credential{}, fmt.Errorf("credentials: parse %s: %w", path, err)
	}

	var cred Credential
	if err := json.Unmarshal(std, &cred); err != nil {
		return Credential{}, fmt.Errorf("credentials: decode %s: %w", path, err)
	}

	if cred.Mode != AuthModeSigning && cred.Mode != AuthModeBearer {
		return Credential{}, fmt.Errorf("credentials: %s: unknown mode %q", path, cred.Mode)
	}
	if !cred.Complete() {
		return Credential{}, fmt.Errorf("credentials: %s: incomplete %s credential", path, cred.Mode)
	}
	return cred, nil
}
