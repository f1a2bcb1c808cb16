package registry

import (
	"errors"

	"github.com/googlesamples/android-credentials/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrUnknownClient is returned when a client secret does not resolve to a
// registered client. Callers report it as an authorization failure.
var ErrUnknownClient = errors.New("unknown client")

// Registry is the read-only client configuration lookup. It is built once at
// startup and safe for concurrent reads from all request handlers.
type Registry struct {
	clients map[string]models.ClientConfig
	logger  *logrus.Logger
}

func New(clients map[string]models.ClientConfig, logger *logrus.Logger) *Registry {
	// Copy so later mutation of the caller's map cannot leak in.
	owned := make(map[string]models.ClientConfig, len(clients))
	for id, client := range clients {
		client.ID = id
		owned[id] = client
	}

	return &Registry{
		clients: owned,
		logger:  logger,
	}
}

// Lookup resolves a client secret to its configuration.
func (r *Registry) Lookup(clientID string) (models.ClientConfig, error) {
	client, ok := r.clients[clientID]
	if !ok {
		r.logger.WithField("client_id", clientID).Warn("Unknown client")
		return models.ClientConfig{}, ErrUnknownClient
	}
	return client, nil
}

// Len reports how many clients are registered.
func (r *Registry) Len() int {
	return len(r.clients)
}
