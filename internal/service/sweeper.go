package service

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/lekver/scribed/internal/config"
	"github.com/lekver/scribed/pkg/file"
	"github.com/lekver/scribed/pkg/log"
)

// sweeper reclaims transient normalized-audio artifacts that outlived
// their job: leftovers of failed runs kept for diagnosis, or files
// orphaned by a crash.
type sweeper struct {
	tempDir string
	cfg     config.SweepConfig
	cron    *cron.Cron
}

func NewArtifactSweeper(
	tempDir string,
	cfg config.SweepConfig,
	cron *cron.Cron,
) sweeper {
	return sweeper{
		tempDir: tempDir,
		cfg:     cfg,
		cron:    cron,
	}
}

var singleflightGroup singleflight.Group

func (s sweeper) Schedule(ctx context.Context) error {
	runFunc := func() {
		_, _, _ = singleflightGroup.Do("sweep", func() (any, error) {
			s.run(ctx)
			return nil, nil
		})
	}
	_, err := s.cron.AddFunc(s.cfg.CronExpr, runFunc)
	return err
}

func (s sweeper) run(_ context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.cfg.TTLHours) * time.Hour)
	stale, err := file.FindOlderThan(s.tempDir, cutoff)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error("Artifact sweep of %s failed: %v", s.tempDir, err)
		}
		return
	}

	removed := 0
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			log.Warn("Cannot remove stale artifact %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("Artifact sweep reclaimed %d file(s) from %s", removed, s.tempDir)
	}
}
