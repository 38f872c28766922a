package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"novel-client/internal/engine"
	"novel-client/internal/interfaces"
	"novel-client/internal/models"
	"novel-client/internal/schemas"
)

var _ engine.ContentLoader = (*Loader)(nil)

var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novel_client_content_loads_total",
		Help: "Content loads by kind and result.",
	}, []string{"kind", "result"})

	pollAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_client_poll_attempts_total",
		Help: "Backend polling attempts while content is still generating.",
	})

	dedupHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_client_load_dedup_hits_total",
		Help: "Loads coalesced onto an already in-flight request.",
	})
)

// Config tunes polling behaviour.
type Config struct {
	// PollInterval is the fixed gap between status checks while the
	// backend reports pending/generating.
	PollInterval time.Duration

	// MaxPollAttempts bounds a single load; exhausting it returns
	// models.ErrContentNotReadyYet.
	MaxPollAttempts uint64

	// EndingInitialWait is slept before the first ending re-poll.
	// Ending generation is slow; hammering right away is pointless.
	EndingInitialWait time.Duration

	// RequireChapterApproval gates chapter N on chapter N-1 being saved
	// by its creator.
	RequireChapterApproval bool
}

// Loader fetches chapters and endings from the content backend, polling
// until generation completes and collapsing concurrent requests for the
// same content onto a single network call. It is safe for concurrent
// use; normalization happens here so everything downstream sees only
// canonical models.
type Loader struct {
	client interfaces.StoryAPIClient
	log    *zap.Logger
	cfg    Config

	group singleflight.Group
}

func NewLoader(client interfaces.StoryAPIClient, logger *zap.Logger, cfg Config) *Loader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxPollAttempts == 0 {
		cfg.MaxPollAttempts = 100
	}
	return &Loader{
		client: client,
		log:    logger.Named("Loader"),
		cfg:    cfg,
	}
}

// LoadChapter fetches chapter chapterIndex, waiting out backend
// generation. Concurrent calls for the same chapter share one fetch.
func (l *Loader) LoadChapter(ctx context.Context, workID string, chapterIndex int) (*models.Chapter, error) {
	if chapterIndex < 1 {
		return nil, models.ErrChapterOutOfRange
	}
	if err := l.checkPrerequisite(ctx, workID, chapterIndex); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:chapter:%d", workID, chapterIndex)
	v, err, shared := l.group.Do(key, func() (interface{}, error) {
		return l.pollChapter(ctx, workID, chapterIndex)
	})
	if shared {
		dedupHitsTotal.Inc()
	}
	if err != nil {
		loadsTotal.WithLabelValues("chapter", "error").Inc()
		return nil, err
	}
	loadsTotal.WithLabelValues("chapter", "ok").Inc()

	ch := v.(*models.Chapter)
	// Each caller gets its own scene copies; the engine mutates them.
	cp := *ch
	cp.Scenes = models.CloneScenes(ch.Scenes)
	return &cp, nil
}

func (l *Loader) pollChapter(ctx context.Context, workID string, chapterIndex int) (*models.Chapter, error) {
	var chapter *models.Chapter
	operation := func() error {
		env, err := l.client.GetChapter(ctx, workID, chapterIndex)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch env.Status {
		case "ready":
			if env.Chapter == nil {
				return backoff.Permanent(fmt.Errorf("ready envelope without chapter body: %w", models.ErrGeneration))
			}
			chapter = schemas.NormalizeChapter(env.Chapter)
			return nil
		case "error":
			return backoff.Permanent(fmt.Errorf("backend generation failed: %s: %w", env.Error, models.ErrGeneration))
		default: // pending, generating
			pollAttemptsTotal.Inc()
			return models.ErrContentNotReadyYet
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.cfg.PollInterval), l.cfg.MaxPollAttempts),
		ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		l.log.Warn("Chapter load gave up",
			zap.String("workID", workID),
			zap.Int("chapterIndex", chapterIndex),
			zap.Error(err))
		return nil, err
	}

	l.log.Info("Chapter loaded",
		zap.String("workID", workID),
		zap.Int("chapterIndex", chapterIndex),
		zap.Int("scenes", len(chapter.Scenes)))
	return chapter, nil
}

// checkPrerequisite refuses to load chapter N until chapter N-1 has been
// saved, when approval gating is on. Chapter 1 has no prerequisite.
func (l *Loader) checkPrerequisite(ctx context.Context, workID string, chapterIndex int) error {
	if !l.cfg.RequireChapterApproval || chapterIndex <= 1 {
		return nil
	}
	status, err := l.client.GetWorkStatus(ctx, workID)
	if err != nil {
		return fmt.Errorf("failed to fetch work status: %w", err)
	}
	for _, cs := range status.ChaptersStatus {
		if cs.ChapterIndex == chapterIndex-1 {
			if cs.Status != string(models.StatusSaved) {
				return models.ErrPrerequisiteNotSaved
			}
			return nil
		}
	}
	return models.ErrPrerequisiteNotSaved
}

// ListEndings returns candidate endings in backend order. Bodies are not
// fetched; conditions and titles are enough for resolution.
func (l *Loader) ListEndings(ctx context.Context, workID string) ([]models.Ending, error) {
	summaries, err := l.client.ListEndings(ctx, workID)
	if err != nil {
		return nil, err
	}
	endings := make([]models.Ending, 0, len(summaries))
	for _, s := range summaries {
		endings = append(endings, models.Ending{
			Index:     s.Index,
			Title:     s.Title,
			Condition: s.Condition,
			Status:    models.ContentStatus(s.Status),
		})
	}
	return endings, nil
}

// LoadEnding fetches one ending body, polling out generation. Endings
// generate slowly, so after a not-ready first answer the loader sleeps
// EndingInitialWait before falling into the regular poll loop.
func (l *Loader) LoadEnding(ctx context.Context, workID string, endingIndex int) (*models.Ending, error) {
	key := fmt.Sprintf("%s:ending:%d", workID, endingIndex)
	v, err, shared := l.group.Do(key, func() (interface{}, error) {
		return l.pollEnding(ctx, workID, endingIndex)
	})
	if shared {
		dedupHitsTotal.Inc()
	}
	if err != nil {
		loadsTotal.WithLabelValues("ending", "error").Inc()
		return nil, err
	}
	loadsTotal.WithLabelValues("ending", "ok").Inc()
	return v.(*models.Ending), nil
}

func (l *Loader) pollEnding(ctx context.Context, workID string, endingIndex int) (*models.Ending, error) {
	ending, err := l.fetchEndingOnce(ctx, workID, endingIndex)
	if err == nil {
		return ending, nil
	}
	if !isNotReady(err) {
		return nil, err
	}

	if l.cfg.EndingInitialWait > 0 {
		timer := time.NewTimer(l.cfg.EndingInitialWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var result *models.Ending
	operation := func() error {
		e, err := l.fetchEndingOnce(ctx, workID, endingIndex)
		if err != nil {
			if isNotReady(err) {
				pollAttemptsTotal.Inc()
				return err
			}
			return backoff.Permanent(err)
		}
		result = e
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.cfg.PollInterval), l.cfg.MaxPollAttempts),
		ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		l.log.Warn("Ending load gave up",
			zap.String("workID", workID),
			zap.Int("endingIndex", endingIndex),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (l *Loader) fetchEndingOnce(ctx context.Context, workID string, endingIndex int) (*models.Ending, error) {
	env, err := l.client.GetEnding(ctx, workID, endingIndex)
	if err != nil {
		return nil, err
	}
	switch env.Status {
	case "ready":
		if env.Ending == nil {
			return nil, fmt.Errorf("ready envelope without ending body: %w", models.ErrGeneration)
		}
		return schemas.NormalizeEnding(env.Ending), nil
	case "error":
		return nil, fmt.Errorf("backend generation failed: %s: %w", env.Error, models.ErrGeneration)
	default:
		return nil, models.ErrContentNotReadyYet
	}
}

func isNotReady(err error) bool {
	return errors.Is(err, models.ErrContentNotReadyYet)
}

// GenerateChapter triggers backend (re)generation of a chapter.
func (l *Loader) GenerateChapter(ctx context.Context, workID string, chapterIndex int, req schemas.GenerateChapterRequest) error {
	if chapterIndex < 1 {
		return models.ErrChapterOutOfRange
	}
	if err := l.client.GenerateChapter(ctx, workID, chapterIndex, req); err != nil {
		return fmt.Errorf("failed to trigger chapter generation: %w", err)
	}
	l.log.Info("Chapter generation triggered",
		zap.String("workID", workID),
		zap.Int("chapterIndex", chapterIndex))
	return nil
}

// GenerateEnding triggers backend (re)generation of an ending.
func (l *Loader) GenerateEnding(ctx context.Context, workID string, endingIndex int, req schemas.GenerateEndingRequest) error {
	if err := l.client.GenerateEnding(ctx, workID, endingIndex, req); err != nil {
		return fmt.Errorf("failed to trigger ending generation: %w", err)
	}
	l.log.Info("Ending generation triggered",
		zap.String("workID", workID),
		zap.Int("endingIndex", endingIndex))
	return nil
}

// SaveChapter persists chapter content back to the backend, marking it
// saved so the next chapter's prerequisite gate opens.
func (l *Loader) SaveChapter(ctx context.Context, workID string, chapter *models.Chapter) error {
	if err := l.client.SaveChapter(ctx, workID, chapter); err != nil {
		return fmt.Errorf("failed to save chapter: %w", err)
	}
	chapter.Status = models.StatusSaved
	l.log.Info("Chapter saved",
		zap.String("workID", workID),
		zap.Int("chapterIndex", chapter.Index))
	return nil
}
