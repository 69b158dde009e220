package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deskviewer/relay-server-go/internal/repository"
)

// CleanupJob prunes recent-session history beyond the retention window.
type CleanupJob struct {
	recentSessionRepo repository.RecentSessionRepository
	interval          time.Duration
	retention         time.Duration
	done              chan struct{}
}

func NewCleanupJob(
	recentSessionRepo repository.RecentSessionRepository,
	interval time.Duration,
	retention time.Duration,
) *CleanupJob {
	return &CleanupJob{
		recentSessionRepo: recentSessionRepo,
		interval:          interval,
		retention:         retention,
		done:              make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	count, err := j.recentSessionRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup recent sessions")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up recent sessions")
	}
}
