// Package credentials resolves the LLM collaborator's API key. Sources are
// tried in order: an allow-list of host environment variables, the same
// names within a project .env file, then the OS keychain.
package credentials

import (
	"errors"
	"os"
	"os/user"
	"strings"

	"github.com/schmitthub/envrepair/internal/keyring"
)

// ErrNoCredential is returned when none of the resolver's sources has the key.
var ErrNoCredential = errors.New("credentials: no LLM API key found in env, dotenv, or keyring")

// Resolver finds the LLM API key by trying, in order: AllowedEnvVars against
// the host environment, the same names within DotEnvPath, then the OS
// keychain under KeyringService/KeyringUser.
type Resolver struct {
	AllowedEnvVars []string
	DotEnvPath     string
	KeyringService string
	KeyringUser    func() (string, error)
}

// NewResolver returns a Resolver with envrepair's default allow-list and
// keychain service name, looking for a .env file at dotEnvPath (may be "").
func NewResolver(dotEnvPath string) *Resolver {
	return &Resolver{
		AllowedEnvVars: []string{"ENVREPAIR_LLM_API_KEY", "ANTHROPIC_API_KEY"},
		DotEnvPath:     dotEnvPath,
		KeyringService: keyring.LLMServiceName,
		KeyringUser:    currentOSUser,
	}
}

// Resolve returns the first non-empty API key found across the three
// sources, or ErrNoCredential if none has one.
func (r *Resolver) Resolve() (string, error) {
	if v, ok := r.fromHostEnv(); ok {
		return v, nil
	}

	if r.DotEnvPath != "" {
		vars, err := LoadDotEnv(r.DotEnvPath)
		if err != nil {
			return "", err
		}
		for _, name := range r.AllowedEnvVars {
			if v := strings.TrimSpace(vars[name]); v != "" {
				return v, nil
			}
		}
	}

	return r.fromKeyring()
}

func (r *Resolver) fromHostEnv() (string, bool) {
	for _, name := range r.AllowedEnvVars {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

func (r *Resolver) fromKeyring() (string, error) {
	u, err := r.KeyringUser()
	if err != nil {
		return "", err
	}
	v, err := keyring.Get(r.KeyringService, u)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", ErrNoCredential
	}

	// Structured entries carry an expiry and an optional endpoint; bare
	// API-key strings are accepted as-is.
	if cred, perr := keyring.ParseLLMCredentials(v); perr == nil {
		if verr := keyring.ValidateLLMCredentials(cred); verr != nil {
			return "", verr
		}
		return cred.APIKey, nil
	}
	return v, nil
}

func currentOSUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
