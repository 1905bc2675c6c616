package factory

import (
	"github.com/attendly/attendly/server/internal/config"
	"github.com/attendly/attendly/server/internal/graph"
	"github.com/attendly/attendly/server/internal/msauth"
)

// NewGraphClient wires the client-credential token provider into the Graph
// REST client.
func NewGraphClient(cfg *config.Config) graph.Client {
	tokens := msauth.New(cfg.AuthBaseURL, cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
	return graph.NewRestClient(cfg.GraphBaseURL, tokens)
}
