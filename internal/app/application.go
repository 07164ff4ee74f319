// Package app ties the voyager services together.
package app

import (
	"github.com/stellarworks/voyager/internal/app/engine"
	"github.com/stellarworks/voyager/internal/app/storage"
	"github.com/stellarworks/voyager/internal/app/storage/memory"
	"github.com/stellarworks/voyager/internal/logging"
	"github.com/stellarworks/voyager/internal/metrics"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Catalog  storage.CatalogStore
	Profiles storage.ProfileStore
}

// Application bundles the engine with its observability dependencies.
type Application struct {
	log *logging.Logger

	Engine  *engine.Engine
	Metrics *metrics.Metrics
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Catalog == nil {
		stores.Catalog = mem
	}
	if stores.Profiles == nil {
		stores.Profiles = mem
	}

	m := metrics.New()
	eng := engine.New(stores.Catalog, stores.Profiles, log, engine.WithMetrics(m))

	return &Application{
		log:     log,
		Engine:  eng,
		Metrics: m,
	}, nil
}
