package ticketing

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

// NewGateway creates a ticketing gateway based on the DESKFLOW_MODE
// environment variable. If DESKFLOW_MODE=MOCK, returns a MockGateway;
// otherwise returns a real Client.
func NewGateway(baseURL, apiKey string, timeout time.Duration) Gateway {
	if os.Getenv(EnvDeskflowMode) == ModeMock {
		log.Println("DESKFLOW_MODE=MOCK detected, using mock ticketing gateway")
		return NewMockGateway()
	}
	return NewClient(baseURL, apiKey, timeout)
}
