package llmcaller

import "context"

// Provider is the narrow interface the LLM Caller depends on. It is the
// external "LLM transport" collaborator named out of scope by spec.md §1:
// the core never depends on a concrete HTTP client, only on this
// interface, following the teacher's providers.Provider /
// ProviderConstructor pattern narrowed down to the two methods the Caller
// actually uses.
type Provider interface {
	// Name identifies the provider for logging and error messages.
	Name() string

	// Call sends promptText to model at the given temperature and
	// returns the raw completion text. Implementations should return an
	// *archererr.Error with an appropriate Kind (TRANSPORT, AUTH,
	// MODEL_REFUSED, MALFORMED) and Retriable set correctly; the Caller
	// relies on that classification to drive retries.
	Call(ctx context.Context, model, promptText string, temperature float64) (string, error)
}
