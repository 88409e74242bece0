package fetch

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Config controls catalog fetch behavior.
type Config struct {
	BaseURL  string        // absolute catalog endpoint
	PageSize int           // itemsPerPage requested on the first page
	Timeout  time.Duration // per-request timeout for the default client
	RPS      float64       // page requests per second; 0 disables pacing
}

// Deps are the fetcher's injected collaborators. Logger and Tracer fall
// back to process defaults when nil; Client falls back to a traced,
// timeout-bounded client.
type Deps struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Client *http.Client
}

// pageEnvelope is one hydra page of the catalog response.
type pageEnvelope struct {
	TotalItems   int               `json:"hydra:totalItems"`
	Members      []json.RawMessage `json:"hydra:member"`
	Aggregations json.RawMessage   `json:"aggregations"`
	View         pageView          `json:"hydra:view"`
}

type pageView struct {
	Next string `json:"hydra:next"`
}
