package command

import (
	"context"
	"errors"

	"github.com/richardliu001/eventcore/internal/aggregate"
	"github.com/richardliu001/eventcore/internal/domain/action"
	"github.com/richardliu001/eventcore/internal/domain/policy"
	"github.com/richardliu001/eventcore/internal/eventstore"
	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/resultkind"
	"github.com/richardliu001/eventcore/internal/store"
	"github.com/richardliu001/eventcore/internal/writepath"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the command layer's single entry point, generalizing the
// teacher's WalletService (internal/service/wallet_service.go): one
// method per operation, each running entirely inside one writepath
// transaction that locks the aggregate row, applies the aggregate
// operation, persists events+outbox, and updates aggregate state.
type Service struct {
	Store   *store.Store
	Events  *eventstore.Store
	IDs     *idgen.Generator
	Log     *zap.SugaredLogger
}

// NewService constructs a command Service.
func NewService(st *store.Store, ev *eventstore.Store, ids *idgen.Generator, log *zap.SugaredLogger) *Service {
	return &Service{Store: st, Events: ev, IDs: ids, Log: log}
}

// ActionResult is returned by Action commands.
type ActionResult struct {
	ID      string
	Version uint64
	Status  model.ActionStatus
}

// CreateActionCmd creates a new Action, producing one action.created event.
func (s *Service) CreateActionCmd(ctx context.Context, name string, meta Metadata) (ActionResult, *resultkind.Error) {
	id := s.IDs.Next()
	st, events, aggErr := action.Create(id, name)
	if aggErr != nil {
		return ActionResult{}, aggErr
	}
	aggMeta := aggregate.Meta{CorrelationID: meta.CorrelationID, CausationID: meta.CausationID, Actor: meta.Actor, Timestamp: meta.Timestamp}

	txErr := writepath.WithTransaction(ctx, s.Store.DB, func(tx *gorm.DB) *resultkind.Error {
		row := st.ToRow()
		if err := s.Store.CreateAction(ctx, tx, &row); err != nil {
			return resultkind.New(resultkind.Infrastructure, err.Error())
		}
		if _, err := s.Events.PersistEvents(tx, events, aggMeta); err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		return ActionResult{}, txErr
	}
	return ActionResult{ID: st.ID, Version: st.Version, Status: st.Status}, nil
}

// CompleteActionCmd transitions an Action from active to inactive.
func (s *Service) CompleteActionCmd(ctx context.Context, id string, expectedVersion uint64, meta Metadata) (ActionResult, *resultkind.Error) {
	return s.mutateAction(ctx, id, meta, func(st action.State) (action.State, []aggregate.Event, *resultkind.Error) {
		return st.Complete(expectedVersion)
	})
}

// CancelActionCmd transitions an Action from active to inactive with a reason.
func (s *Service) CancelActionCmd(ctx context.Context, id string, expectedVersion uint64, reason string, meta Metadata) (ActionResult, *resultkind.Error) {
	return s.mutateAction(ctx, id, meta, func(st action.State) (action.State, []aggregate.Event, *resultkind.Error) {
		return st.Cancel(expectedVersion, reason)
	})
}

// UpdateActionCmd updates an Action's name, a no-op if unchanged.
func (s *Service) UpdateActionCmd(ctx context.Context, id string, expectedVersion uint64, name string, meta Metadata) (ActionResult, *resultkind.Error) {
	return s.mutateAction(ctx, id, meta, func(st action.State) (action.State, []aggregate.Event, *resultkind.Error) {
		return st.Update(expectedVersion, name)
	})
}

func (s *Service) mutateAction(ctx context.Context, id string, meta Metadata, op func(action.State) (action.State, []aggregate.Event, *resultkind.Error)) (ActionResult, *resultkind.Error) {
	aggMeta := aggregate.Meta{CorrelationID: meta.CorrelationID, CausationID: meta.CausationID, Actor: meta.Actor, Timestamp: meta.Timestamp}
	var result ActionResult

	txErr := writepath.WithTransaction(ctx, s.Store.DB, func(tx *gorm.DB) *resultkind.Error {
		row, err := s.Store.GetActionForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return resultkind.New(resultkind.NotFound, "action not found")
			}
			return resultkind.New(resultkind.Infrastructure, err.Error())
		}
		current := action.FromRow(*row)
		next, events, aggErr := op(current)
		if aggErr != nil {
			return aggErr
		}
		if len(events) > 0 {
			if _, err := s.Events.PersistEvents(tx, events, aggMeta); err != nil {
				return err
			}
			nextRow := next.ToRow()
			if err := s.Store.UpdateAction(ctx, tx, nextRow, current.Version); err != nil {
				if errors.Is(err, store.ErrOptimisticLock) {
					return resultkind.New(resultkind.OptimisticLock, "concurrent write detected")
				}
				return resultkind.New(resultkind.Infrastructure, err.Error())
			}
		}
		result = ActionResult{ID: next.ID, Version: next.Version, Status: next.Status}
		return nil
	})
	if txErr != nil {
		return ActionResult{}, txErr
	}
	return result, nil
}

// PolicyResult is returned by Policy commands.
type PolicyResult struct {
	ID      string
	Version uint64
	Status  model.PolicyStatus
}

// CreatePolicyCmd creates a new Policy, producing one policy.created event.
func (s *Service) CreatePolicyCmd(ctx context.Context, name string, maxAmount decimal.Decimal, meta Metadata) (PolicyResult, *resultkind.Error) {
	id := s.IDs.Next()
	st, events, aggErr := policy.Create(id, name, maxAmount)
	if aggErr != nil {
		return PolicyResult{}, aggErr
	}
	aggMeta := aggregate.Meta{CorrelationID: meta.CorrelationID, CausationID: meta.CausationID, Actor: meta.Actor, Timestamp: meta.Timestamp}

	txErr := writepath.WithTransaction(ctx, s.Store.DB, func(tx *gorm.DB) *resultkind.Error {
		row := st.ToRow()
		if err := s.Store.CreatePolicy(ctx, tx, &row); err != nil {
			return resultkind.New(resultkind.Infrastructure, err.Error())
		}
		if _, err := s.Events.PersistEvents(tx, events, aggMeta); err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		return PolicyResult{}, txErr
	}
	return PolicyResult{ID: st.ID, Version: st.Version, Status: st.Status}, nil
}

// ActivatePolicyCmd transitions a Policy draft -> active.
func (s *Service) ActivatePolicyCmd(ctx context.Context, id string, expectedVersion uint64, meta Metadata) (PolicyResult, *resultkind.Error) {
	return s.mutatePolicy(ctx, id, meta, func(st policy.State) (policy.State, []aggregate.Event, *resultkind.Error) {
		return st.Activate(expectedVersion)
	})
}

// SuspendPolicyCmd transitions a Policy active -> suspended.
func (s *Service) SuspendPolicyCmd(ctx context.Context, id string, expectedVersion uint64, reason string, meta Metadata) (PolicyResult, *resultkind.Error) {
	return s.mutatePolicy(ctx, id, meta, func(st policy.State) (policy.State, []aggregate.Event, *resultkind.Error) {
		return st.Suspend(expectedVersion, reason)
	})
}

// ResumePolicyCmd transitions a Policy suspended -> active.
func (s *Service) ResumePolicyCmd(ctx context.Context, id string, expectedVersion uint64, meta Metadata) (PolicyResult, *resultkind.Error) {
	return s.mutatePolicy(ctx, id, meta, func(st policy.State) (policy.State, []aggregate.Event, *resultkind.Error) {
		return st.Resume(expectedVersion)
	})
}

// RevokePolicyCmd transitions any non-revoked Policy to the terminal
// revoked state.
func (s *Service) RevokePolicyCmd(ctx context.Context, id string, expectedVersion uint64, reason, revokerID string, meta Metadata) (PolicyResult, *resultkind.Error) {
	return s.mutatePolicy(ctx, id, meta, func(st policy.State) (policy.State, []aggregate.Event, *resultkind.Error) {
		return st.Revoke(expectedVersion, reason, revokerID)
	})
}

func (s *Service) mutatePolicy(ctx context.Context, id string, meta Metadata, op func(policy.State) (policy.State, []aggregate.Event, *resultkind.Error)) (PolicyResult, *resultkind.Error) {
	aggMeta := aggregate.Meta{CorrelationID: meta.CorrelationID, CausationID: meta.CausationID, Actor: meta.Actor, Timestamp: meta.Timestamp}
	var result PolicyResult

	txErr := writepath.WithTransaction(ctx, s.Store.DB, func(tx *gorm.DB) *resultkind.Error {
		row, err := s.Store.GetPolicyForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return resultkind.New(resultkind.NotFound, "policy not found")
			}
			return resultkind.New(resultkind.Infrastructure, err.Error())
		}
		current := policy.FromRow(*row)
		next, events, aggErr := op(current)
		if aggErr != nil {
			return aggErr
		}
		if len(events) > 0 {
			if _, err := s.Events.PersistEvents(tx, events, aggMeta); err != nil {
				return err
			}
			nextRow := next.ToRow()
			if err := s.Store.UpdatePolicy(ctx, tx, nextRow, current.Version); err != nil {
				if errors.Is(err, store.ErrOptimisticLock) {
					return resultkind.New(resultkind.OptimisticLock, "concurrent write detected")
				}
				return resultkind.New(resultkind.Infrastructure, err.Error())
			}
		}
		result = PolicyResult{ID: next.ID, Version: next.Version, Status: next.Status}
		return nil
	})
	if txErr != nil {
		return PolicyResult{}, txErr
	}
	return result, nil
}
