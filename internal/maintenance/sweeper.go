package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"tunecrate/internal/config"
	"tunecrate/internal/logging"
	"tunecrate/internal/metrics"
	"tunecrate/internal/models"
	"tunecrate/internal/playlistorder"
	"tunecrate/internal/storage"
	"tunecrate/internal/tracing"
	"tunecrate/internal/utils"
)

// Kinds of orphans, used as metric labels
const (
	KindAudio = "audio"
	KindImage = "image"
	KindOrder = "order"
)

// Report summarizes one sweep
type Report struct {
	DryRun  bool           `json:"dry_run"`
	Removed map[string]int `json:"removed"`
	Young   int            `json:"young"`  // orphans still inside the grace period
	Failed  int            `json:"failed"` // deletions that returned an error
}

// Total returns the number of orphans removed (or that would be, on a dry run)
func (r Report) Total() int {
	n := 0
	for _, c := range r.Removed {
		n += c
	}
	return n
}

// Sweeper removes stored files that no catalog row references and order
// files whose playlist is gone. Compensation is best effort, so files can
// outlive a failed saga. Only files older than the grace period are
// considered, which keeps the sweep clear of sagas still in flight.
type Sweeper struct {
	db      *gorm.DB
	audio   *storage.FileStore
	image   *storage.FileStore
	orders  *playlistorder.OrderStore
	grace   time.Duration
	limiter *rate.Limiter
	logger  *zerolog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewSweeper creates a sweeper. Deletions are throttled to cfg.DeleteRate per second.
func NewSweeper(
	db *gorm.DB,
	audio, image *storage.FileStore,
	orders *playlistorder.OrderStore,
	cfg config.MaintenanceConfig,
	logger *zerolog.Logger,
	m *metrics.Metrics,
) *Sweeper {
	if logger == nil {
		logger = logging.WithModule("maintenance")
	}
	if m == nil {
		m = metrics.Default()
	}
	perSecond := cfg.DeleteRate
	if perSecond <= 0 {
		perSecond = 50
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	return &Sweeper{
		db:      db,
		audio:   audio,
		image:   image,
		orders:  orders,
		grace:   cfg.GracePeriod,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("tunecrate/maintenance"),
		now:     time.Now,
	}
}

// Sweep runs one pass over all three stores
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (Report, error) {
	ctx, span := s.tracer.Start(ctx, "Sweeper.Sweep", trace.WithAttributes(tracing.SweepTracingAttrs("", dryRun)...))
	defer span.End()

	start := s.now()
	defer func() {
		s.metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	report := Report{DryRun: dryRun, Removed: map[string]int{}}
	cutoff := start.Add(-s.grace)

	audioRefs, err := s.referenced(ctx, &models.Song{}, "audio_ref")
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return report, err
	}
	if err := s.sweepStore(ctx, s.audio, KindAudio, audioRefs, cutoff, &report); err != nil {
		tracing.SetSpanError(ctx, err)
		return report, err
	}

	imageRefs, err := s.referenced(ctx, &models.Album{}, "image_ref")
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return report, err
	}
	if err := s.sweepStore(ctx, s.image, KindImage, imageRefs, cutoff, &report); err != nil {
		tracing.SetSpanError(ctx, err)
		return report, err
	}

	if err := s.sweepOrders(ctx, cutoff, &report); err != nil {
		tracing.SetSpanError(ctx, err)
		return report, err
	}

	span.SetAttributes(attribute.Int("sweep.removed", report.Total()))
	logging.FromContext(ctx, *s.logger).Info().
		Bool("dry_run", dryRun).
		Int("audio", report.Removed[KindAudio]).
		Int("image", report.Removed[KindImage]).
		Int("order", report.Removed[KindOrder]).
		Int("young", report.Young).
		Int("failed", report.Failed).
		Msg("Maintenance sweep finished")
	return report, nil
}

func (s *Sweeper) referenced(ctx context.Context, model interface{}, column string) (map[string]struct{}, error) {
	var refs []string
	err := s.db.WithContext(ctx).
		Model(model).
		Where(column + " IS NOT NULL").
		Distinct().
		Pluck(column, &refs).Error
	if err != nil {
		return nil, utils.NewGenericError(fmt.Sprintf("failed to load referenced %s", column), err)
	}

	set := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		set[r] = struct{}{}
	}
	return set, nil
}

func (s *Sweeper) sweepStore(ctx context.Context, store *storage.FileStore, kind string, refs map[string]struct{}, cutoff time.Time, report *Report) error {
	entries, err := store.List()
	if err != nil {
		return err
	}

	log := logging.FromContext(ctx, *s.logger)
	for _, e := range entries {
		if _, ok := refs[e.Name]; ok {
			continue
		}
		if e.ModTime.After(cutoff) {
			report.Young++
			continue
		}
		if report.DryRun {
			report.Removed[kind]++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		removed, err := store.Delete(ctx, e.Name)
		if err != nil {
			report.Failed++
			log.Warn().Err(err).Str("store", kind).Str("name", e.Name).Msg("Failed to remove orphaned file")
			continue
		}
		if removed {
			report.Removed[kind]++
			s.metrics.SweepRemovedTotal.WithLabelValues(kind).Inc()
		}
	}
	return nil
}

func (s *Sweeper) sweepOrders(ctx context.Context, cutoff time.Time, report *Report) error {
	entries, err := s.orders.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.PlaylistID
	}
	var existing []int64
	if err := s.db.WithContext(ctx).Model(&models.Playlist{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
		return utils.NewGenericError("failed to load playlist ids", err)
	}
	live := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		live[id] = struct{}{}
	}

	log := logging.FromContext(ctx, *s.logger)
	for _, e := range entries {
		if _, ok := live[e.PlaylistID]; ok {
			continue
		}
		if e.ModTime.After(cutoff) {
			report.Young++
			continue
		}
		if report.DryRun {
			report.Removed[KindOrder]++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		removed, err := s.orders.Delete(ctx, e.PlaylistID)
		if err != nil {
			report.Failed++
			log.Warn().Err(err).Int64("playlist_id", e.PlaylistID).Msg("Failed to remove orphaned playlist order")
			continue
		}
		if removed {
			report.Removed[KindOrder]++
			s.metrics.SweepRemovedTotal.WithLabelValues(KindOrder).Inc()
		}
	}
	return nil
}
