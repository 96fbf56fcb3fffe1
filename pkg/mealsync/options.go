package mealsync

import "net/http"

// Option configures optional behavior of a Service.
type Option func(*options)

type options struct {
	httpClient   HTTPClient
	logger       Logger
	eventHandler EventHandler
	store        Store
	remote       RemoteMealStore
	monitor      NetworkMonitor
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{},
	}
}

// WithHTTPClient sets the client used by the connectivity prober and the
// REST meal client when it is an *http.Client.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a logger. By default nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for sync events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithStore replaces the configured store backend.
func WithStore(store Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRemote replaces the configured remote backend.
func WithRemote(remote RemoteMealStore) Option {
	return func(o *options) {
		o.remote = remote
	}
}

// WithNetworkMonitor replaces the configured network mode. A monitor that
// also implements Run(ctx) error is run for the lifetime of the service.
func WithNetworkMonitor(monitor NetworkMonitor) Option {
	return func(o *options) {
		o.monitor = monitor
	}
}
