// Package cleanup removes orphaned per-agent artifact directories.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/services"
)

// AgentChecker resolves agent IDs; services.ErrNotFound marks an
// artifact directory as orphaned.
type AgentChecker interface {
	GetAgentByID(ctx context.Context, agentID string) (*models.Agent, error)
}

// Service periodically deletes artifact directories whose agent row no
// longer exists. Agent deletion removes artifacts inline; this sweep
// catches directories left behind by crashes mid-delete or failed
// uploads. Idempotent and safe to run from multiple pods sharing a
// volume.
type Service struct {
	cfg    config.ArtifactsConfig
	agents AgentChecker

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the artifact cleanup service.
func NewService(cfg config.ArtifactsConfig, agents AgentChecker) *Service {
	return &Service{cfg: cfg, agents: agents}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Artifact cleanup started",
		"dir", s.cfg.Dir,
		"interval", s.cfg.SweepInterval,
		"orphan_age", s.cfg.OrphanAge)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Artifact cleanup stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep removes directories with no matching agent row. Fresh
// directories are skipped so an upload racing its agent insert is
// never swept.
func (s *Service) sweep(ctx context.Context) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Artifact sweep: cannot read artifacts dir", "dir", s.cfg.Dir, "error", err)
		}
		return
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < s.cfg.OrphanAge {
			continue
		}

		_, err = s.agents.GetAgentByID(ctx, entry.Name())
		if err == nil {
			continue
		}
		if !errors.Is(err, services.ErrNotFound) {
			slog.Error("Artifact sweep: agent lookup failed", "agent_id", entry.Name(), "error", err)
			continue
		}

		dir := filepath.Join(s.cfg.Dir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.Error("Artifact sweep: removal failed", "dir", dir, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Artifact sweep: removed orphaned directories", "count", removed)
	}
}
