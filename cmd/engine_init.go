package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/conflict"
	"github.com/sells-group/reconcile-cli/internal/policy"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// engineEnv holds the store and the engine built from config and policy.
type engineEnv struct {
	Store  store.Store
	Engine *reconcile.Engine
	Policy *policy.Policy
}

// Close releases resources held by the environment.
func (ee *engineEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

// initEngine validates config for mode, opens and migrates the store, and
// builds the engine. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pol, err := loadPolicy(cfg.Reconcile)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return &engineEnv{
		Store:  st,
		Engine: buildEngine(st, pol, cfg),
		Policy: pol,
	}, nil
}

func loadPolicy(rc config.ReconcileConfig) (*policy.Policy, error) {
	if rc.PolicyFile == "" {
		return policy.Default(), nil
	}
	pol, err := policy.Load(rc.PolicyFile)
	if err != nil {
		return nil, eris.Wrap(err, "load policy")
	}
	zap.L().Info("loaded reconcile policy",
		zap.String("path", rc.PolicyFile),
		zap.Int("sources", len(pol.Sources)),
		zap.Int("field_overrides", len(pol.Fields)),
	)
	return pol, nil
}

// buildEngine wires the trust model, classifier, and thresholds. Policy
// thresholds win over config values.
func buildEngine(st store.Store, pol *policy.Policy, c *config.Config) *reconcile.Engine {
	classifier := conflict.New(
		pol.FieldRegistry(),
		pol.MeasurementTolerance(c.Reconcile.MeasurementTolerance),
	)
	retry := resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)

	eng := reconcile.NewEngine(st, pol.TrustModel(), classifier,
		reconcile.WithMinTrustDifference(pol.MinTrustDifference(c.Reconcile.MinTrustDifference)),
		reconcile.WithActor(c.Reconcile.Actor),
		reconcile.WithRetry(retry),
	)
	zap.L().Debug("engine ready",
		zap.Int("min_trust_difference", eng.MinTrustDifference()),
		zap.Strings("fields", classifier.Fields.Names()),
	)
	return eng
}
