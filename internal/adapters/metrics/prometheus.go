package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// Recorder implements ports.EngineObserver using Prometheus.
type Recorder struct {
	registry *prometheus.Registry
	signals  *prometheus.CounterVec
	entries  *prometheus.CounterVec
	blocked  *prometheus.CounterVec
	faults   *prometheus.CounterVec
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_signals_total",
				Help: "Signals emitted by the detectors",
			},
			[]string{"type", "direction"},
		),
		entries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_entry_legs_total",
				Help: "Entry legs submitted to the order sink",
			},
			[]string{"label", "direction"},
		),
		blocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_entries_blocked_total",
				Help: "Entries refused by the entry gate",
			},
			[]string{"direction"},
		),
		faults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_bar_faults_total",
				Help: "Bars skipped after a processing fault",
			},
			[]string{"series"},
		),
	}
}

var _ ports.EngineObserver = (*Recorder)(nil)

func (r *Recorder) SignalEmitted(sig *domain.Signal) {
	r.signals.WithLabelValues(string(sig.Type), string(sig.Direction)).Inc()
}

func (r *Recorder) EntrySubmitted(order *domain.EntryOrder) {
	r.entries.WithLabelValues(order.Label, string(order.Direction)).Inc()
}

func (r *Recorder) EntryBlocked(direction domain.Direction, _ string) {
	r.blocked.WithLabelValues(string(direction)).Inc()
}

func (r *Recorder) BarFault(series domain.SeriesKind) {
	r.faults.WithLabelValues(string(series)).Inc()
}

// Handler exposes the recorder's registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger ports.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
