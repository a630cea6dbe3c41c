package llm

import (
	"log"
	"os"
	"time"
)

const (
	// EnvDeskflowMode is the environment variable name for mode selection.
	EnvDeskflowMode = "DESKFLOW_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates an LLM client based on the DESKFLOW_MODE environment
// variable. If DESKFLOW_MODE=MOCK, returns a MockClient; otherwise returns
// a real Client.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	if os.Getenv(EnvDeskflowMode) == ModeMock {
		log.Println("DESKFLOW_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
