package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/model"
)

const (
	// DefaultSamplingServerURL is the agent's sampling strategy endpoint.
	DefaultSamplingServerURL = "http://127.0.0.1:5778/sampling"
	// DefaultRefreshInterval is how often the strategy is fetched.
	DefaultRefreshInterval = time.Minute

	fetchTimeout = 5 * time.Second
)

var errNoStrategy = errors.New("sampling response carries no known strategy")

// A RemoteOption configures a RemoteSampler.
type RemoteOption interface {
	apply(remoteOptions) remoteOptions
}

type remoteOption func(remoteOptions) remoteOptions

func (f remoteOption) apply(opts remoteOptions) remoteOptions { return f(opts) }

type remoteOptions struct {
	serverURL       string
	refreshInterval time.Duration
	initial         Sampler
	logger          *zap.Logger
	metrics         metrics.Factory
}

// WithSamplingServerURL overrides DefaultSamplingServerURL.
func WithSamplingServerURL(u string) RemoteOption {
	return remoteOption(func(opts remoteOptions) remoteOptions {
		opts.serverURL = u
		return opts
	})
}

// WithRefreshInterval sets the polling period. A zero interval disables
// polling; UpdateSampler can still be called directly.
func WithRefreshInterval(d time.Duration) RemoteOption {
	return remoteOption(func(opts remoteOptions) remoteOptions {
		opts.refreshInterval = d
		return opts
	})
}

// WithInitialSampler sets the sampler used until the first successful fetch.
func WithInitialSampler(s Sampler) RemoteOption {
	return remoteOption(func(opts remoteOptions) remoteOptions {
		opts.initial = s
		return opts
	})
}

// WithLogger sets the logger for fetch failures and strategy changes.
func WithLogger(logger *zap.Logger) RemoteOption {
	return remoteOption(func(opts remoteOptions) remoteOptions {
		opts.logger = logger
		return opts
	})
}

// WithMetrics sets the factory for the sampler.updates counters.
func WithMetrics(factory metrics.Factory) RemoteOption {
	return remoteOption(func(opts remoteOptions) remoteOptions {
		opts.metrics = factory
		return opts
	})
}

// strategyResponse mirrors the JSON served by the agent. The strategy type
// is ignored; whichever strategy object is present wins.
type strategyResponse struct {
	ProbabilisticSampling *struct {
		SamplingRate float64 `json:"samplingRate"`
	} `json:"probabilisticSampling"`
	RateLimitingSampling *struct {
		MaxTracesPerSecond float64 `json:"maxTracesPerSecond"`
	} `json:"rateLimitingSampling"`
}

// RemoteSampler delegates to a sampler built from the strategy the agent
// serves for this service, refreshed periodically. Fetch failures keep the
// current delegate.
type RemoteSampler struct {
	remoteOptions
	serviceName string
	client      *resty.Client

	mu       sync.RWMutex
	delegate Sampler
	current  string

	updatesOK  metrics.Counter
	updatesErr metrics.Counter

	// ctx is canceled by Close so an in-flight fetch returns early.
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewRemoteSampler creates a RemoteSampler and starts polling.
func NewRemoteSampler(serviceName string, opts ...RemoteOption) *RemoteSampler {
	options := remoteOptions{
		serverURL:       DefaultSamplingServerURL,
		refreshInterval: DefaultRefreshInterval,
		logger:          zap.NewNop(),
		metrics:         metrics.NullFactory,
	}
	for _, o := range opts {
		options = o.apply(options)
	}
	if options.initial == nil {
		options.initial = NewProbabilisticSampler(0.001)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &RemoteSampler{
		remoteOptions: options,
		serviceName:   serviceName,
		client:        resty.New().SetTimeout(fetchTimeout).SetHeader("Accept", "application/json"),
		delegate:      options.initial,
		updatesOK:     options.metrics.Counter(metrics.Options{Name: "sampler.updates", Tags: map[string]string{"result": "ok"}}),
		updatesErr:    options.metrics.Counter(metrics.Options{Name: "sampler.updates", Tags: map[string]string{"result": "err"}}),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	if s.refreshInterval > 0 {
		go s.pollLoop()
	} else {
		close(s.done)
	}
	return s
}

func (s *RemoteSampler) pollLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, fetchTimeout)
			if err := s.UpdateSampler(ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Warn("Failed to refresh sampling strategy", zap.String("url", s.serverURL), zap.Error(err))
			}
			cancel()
		}
	}
}

// Decide delegates to the current strategy.
func (s *RemoteSampler) Decide(operation string, id model.TraceID) (bool, map[string]interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delegate.Decide(operation, id)
}

// Sampler returns the current delegate.
func (s *RemoteSampler) Sampler() Sampler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delegate
}

// UpdateSampler fetches the strategy once and swaps the delegate if it
// changed.
func (s *RemoteSampler) UpdateSampler(ctx context.Context) error {
	resp, err := s.fetch(ctx)
	if err != nil {
		s.updatesErr.Inc(1)
		return err
	}

	var next Sampler
	var key string
	switch {
	case resp.ProbabilisticSampling != nil:
		rate := resp.ProbabilisticSampling.SamplingRate
		key = fmt.Sprintf("%s:%v", TypeProbabilistic, rate)
		next = NewProbabilisticSampler(rate)
	case resp.RateLimitingSampling != nil:
		limit := resp.RateLimitingSampling.MaxTracesPerSecond
		key = fmt.Sprintf("%s:%v", TypeRateLimiting, limit)
		next = NewRateLimitingSampler(limit)
	default:
		s.updatesErr.Inc(1)
		return errNoStrategy
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatesOK.Inc(1)
	if key == s.current {
		return nil
	}
	s.delegate.Close()
	s.delegate = next
	s.current = key
	s.logger.Info("Sampling strategy updated", zap.String("strategy", key))
	return nil
}

func (s *RemoteSampler) fetch(ctx context.Context) (*strategyResponse, error) {
	var sr strategyResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("service", s.serviceName).
		SetResult(&sr).
		ForceContentType("application/json").
		Get(s.serverURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetching sampling strategy")
	}
	if resp.IsError() {
		return nil, errors.Errorf("sampling server returned %s", resp.Status())
	}
	return &sr, nil
}

// Close stops polling, abandoning any fetch in progress, and closes the
// delegate.
func (s *RemoteSampler) Close() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
		s.mu.Lock()
		s.delegate.Close()
		s.mu.Unlock()
	})
}
