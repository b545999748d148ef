package tracking

import "github.com/shortontech/trackcheck/internal/observation"

// Correlator turns an Observation Bundle into a Report. It holds only
// read-only policy, so one instance can serve concurrent visits.
type Correlator struct {
	catalog Catalog
	weights Weights
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithCatalog replaces the default rule table.
func WithCatalog(c Catalog) Option {
	return func(cr *Correlator) { cr.catalog = c }
}

// WithWeights replaces the default proxy scoring policy.
func WithWeights(w Weights) Option {
	return func(cr *Correlator) { cr.weights = w }
}

// New creates a Correlator with the default catalog and weights unless overridden.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		catalog: DefaultCatalog(),
		weights: DefaultWeights(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the rule table in use.
func (c *Correlator) Catalog() Catalog { return c.catalog }

// Weights returns the proxy scoring policy in use.
func (c *Correlator) Weights() Weights { return c.weights }

// Correlate classifies one bundle. It performs no I/O, starts no goroutines and
// returns the same Report for the same bundle.
func (c *Correlator) Correlate(b observation.Bundle) Report {
	cookies := ClassifyCookies(b, c.catalog)
	signals := DetectSignals(b, c.catalog)
	proxies := ScoreProxyCandidates(b, c.catalog, c.weights)
	return Assemble(b, cookies, signals, proxies)
}

// DefaultCorrelator is the shared instance used by Correlate.
var DefaultCorrelator = New()

// Correlate classifies b with the default catalog and weights.
func Correlate(b observation.Bundle) Report {
	return DefaultCorrelator.Correlate(b)
}
