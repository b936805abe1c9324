package router

import (
	"context"
	"os"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
)

// Call is the unified request handed to a driver.
type Call struct {
	WireModel   string
	Messages    []models.Message
	Temperature float64
	MaxTokens   int
}

// Driver translates a unified call into one provider's wire format.
type Driver interface {
	Provider() models.Provider
	Send(ctx context.Context, call Call) (*models.NormalizedResponse, error)
}

// KeyLookup returns the value of a named secret and whether it is set.
type KeyLookup func(name string) (string, bool)

// EnvKeys reads secrets from the process environment.
func EnvKeys(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	return v, ok && v != ""
}

// credentialEnv names the secret each provider reads on first use.
var credentialEnv = map[models.Provider]string{
	models.ProviderOpenAI:     "OPENAI_API_KEY",
	models.ProviderAnthropic:  "ANTHROPIC_API_KEY",
	models.ProviderOpenRouter: "OPENROUTER_API_KEY",
	models.ProviderGroq:       "GROQ_API_KEY",
}

// CredentialEnv returns the secret name for a provider.
func CredentialEnv(p models.Provider) string {
	return credentialEnv[p]
}

func lookupKey(keys KeyLookup, p models.Provider) (string, error) {
	name := credentialEnv[p]
	if keys == nil {
		keys = EnvKeys
	}
	v, ok := keys(name)
	if !ok || v == "" {
		return "", &MissingCredentialError{Provider: p, EnvVar: name}
	}
	return v, nil
}
