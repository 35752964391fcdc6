// Package leader runs Kubernetes Lease-based leader election so that only
// one replica mirrors the auction and answers console commands.
package leader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/jensholdgaard/cricket-auction/internal/config"
)

// identity returns a unique identity for this instance.
// It uses the POD_NAME env var if set, otherwise the hostname.
func identity() string {
	if name := os.Getenv("POD_NAME"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// ClientFactory creates a Kubernetes clientset.
// Extracted as a variable for testing.
var ClientFactory = func() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("building in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return client, nil
}

// Elector gates work on holding the lease.
type Elector struct {
	cfg     config.LeaderElectionConfig
	logger  *slog.Logger
	id      string
	leading atomic.Bool
}

// New returns an Elector for this process.
func New(cfg config.LeaderElectionConfig, logger *slog.Logger) *Elector {
	return &Elector{cfg: cfg, logger: logger, id: identity()}
}

// Identity is the name this replica campaigns under.
func (e *Elector) Identity() string { return e.id }

// IsLeader reports whether lead is currently running.
func (e *Elector) IsLeader() bool { return e.leading.Load() }

// Run calls lead once this replica holds the lease; lead must return when
// its context is cancelled, which happens on loss of leadership. With
// election disabled lead runs immediately. Run blocks until ctx is done
// or leadership is lost.
func (e *Elector) Run(ctx context.Context, lead func(ctx context.Context)) error {
	if !e.cfg.Enabled {
		e.leading.Store(true)
		defer e.leading.Store(false)
		lead(ctx)
		return nil
	}

	e.logger.InfoContext(ctx, "starting leader election",
		slog.String("identity", e.id),
		slog.String("lease", e.cfg.LeaseName),
		slog.String("namespace", e.cfg.LeaseNamespace),
	)

	client, err := ClientFactory()
	if err != nil {
		return fmt.Errorf("leader election client: %w", err)
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      e.cfg.LeaseName,
			Namespace: e.cfg.LeaseNamespace,
		},
		Client: client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: e.id,
		},
	}

	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   e.cfg.LeaseDuration,
		RenewDeadline:   e.cfg.RenewDeadline,
		RetryPeriod:     e.cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            e.cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				e.logger.InfoContext(ctx, "acquired leadership", slog.String("identity", e.id))
				e.leading.Store(true)
				defer e.leading.Store(false)
				lead(ctx)
			},
			OnStoppedLeading: func() {
				e.leading.Store(false)
				e.logger.Info("lost leadership", slog.String("identity", e.id))
			},
			OnNewLeader: func(newID string) {
				if newID == e.id {
					return
				}
				e.logger.Info("new leader elected", slog.String("leader", newID))
			},
		},
	})
	if err != nil {
		return fmt.Errorf("configuring leader election: %w", err)
	}

	le.Run(ctx)
	return nil
}
