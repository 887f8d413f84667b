package matchcore

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	logger      *slog.Logger
	version     string
	notifier    Notifier
	classifier  Classifier
}

// WithPort overrides the TCP port from config (MATCHCORE_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint
// and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithNotifier replaces the no-op runner notifier with one that actually
// delivers messages (e.g. Slack, SMS). Only the last call wins.
func WithNotifier(n Notifier) Option {
	return func(o *resolvedOptions) { o.notifier = n }
}

// WithClassifier supplies the role classifier the six-step pipeline's
// categorize/classify steps call out to. Without one, step 3 is a no-op
// (candidates keep whatever role key they already have).
func WithClassifier(c Classifier) Option {
	return func(o *resolvedOptions) { o.classifier = c }
}
