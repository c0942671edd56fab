package server

import "sync"

// ComponentFactory builds a component from the partially initialised app.
// Returning a nil component without an error skips registration.
type ComponentFactory func(app *HTTPApp) (interface{}, error)

// HandlerFactory wires routes onto the app router.
type HandlerFactory func(app *HTTPApp) error

type namedFactory struct {
	key     string
	factory ComponentFactory
}

var (
	registryMu   sync.Mutex
	repositories []namedFactory
	services     []namedFactory
	handlers     []HandlerFactory
	migrations   []func() interface{}
)

// RegisterRepository adds a repository factory. Repositories resolve before services.
func RegisterRepository(key string, factory ComponentFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	repositories = append(repositories, namedFactory{key: key, factory: factory})
}

// RegisterService adds a service factory. Services resolve in registration order.
func RegisterService(key string, factory ComponentFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	services = append(services, namedFactory{key: key, factory: factory})
}

// RegisterHandler adds a handler factory, run after every service resolved.
func RegisterHandler(factory HandlerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	handlers = append(handlers, factory)
}

// RegisterMigration adds a model to auto-migrate when a database is configured.
func RegisterMigration(model func() interface{}) {
	registryMu.Lock()
	defer registryMu.Unlock()
	migrations = append(migrations, model)
}

func snapshotRegistry() ([]namedFactory, []namedFactory, []HandlerFactory, []interface{}) {
	registryMu.Lock()
	defer registryMu.Unlock()

	models := make([]interface{}, 0, len(migrations))
	for _, m := range migrations {
		models = append(models, m())
	}
	return append([]namedFactory(nil), repositories...),
		append([]namedFactory(nil), services...),
		append([]HandlerFactory(nil), handlers...),
		models
}
