package keyring

// LLMServiceName is the keychain service under which the LLM collaborator's
// credential is stored for the current OS user.
const LLMServiceName = "envrepair-llm-credentials"

// LLMCredentials is the JSON schema stored in the OS keychain for the LLM
// collaborator. Entries are written by operators (e.g. via a secrets manager
// or `security add-generic-password`); a bare API-key string is also accepted
// by the credentials resolver as a fallback for hand-created entries.
type LLMCredentials struct {
	APIKey    string `json:"apiKey"`
	Endpoint  string `json:"endpoint,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// llmService defines the fetch → parse → validate pipeline for the LLM
// collaborator's credential.
var llmService = ServiceDef[LLMCredentials]{
	ServiceName: LLMServiceName,
	User:        currentOSUser,
	Parse:       ParseLLMCredentials,
	Validate:    validateLLMCredentials,
}

// GetLLMCredentials fetches, parses, and validates the current user's LLM
// credential from the OS keychain.
func GetLLMCredentials() (*LLMCredentials, error) {
	return getCredential(llmService)
}

// ParseLLMCredentials JSON-unmarshals a raw keychain value into LLMCredentials.
// Exposed so callers that fetched the raw value themselves (the credentials
// resolver) can share the schema.
func ParseLLMCredentials(raw string) (*LLMCredentials, error) {
	return jsonParse[LLMCredentials](raw)
}

// ValidateLLMCredentials checks a parsed credential for an empty key or a
// past expiry.
func ValidateLLMCredentials(c *LLMCredentials) error {
	return validateLLMCredentials(c)
}

func validateLLMCredentials(c *LLMCredentials) error {
	if c.APIKey == "" {
		return ErrEmptyCredential
	}
	if isExpired(c.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}
