package command

import (
	"context"
	"fmt"

	"github.com/richardliu001/eventcore/internal/resultkind"
	"github.com/shopspring/decimal"
)

// ExecuteCommand is the single inbound function the transport layer
// calls (spec §6): executeCommand(command) -> result. It dispatches on
// command.Type and unpacks the untyped payload into the Service's typed
// methods, keeping the typed methods as the real implementation surface
// (so unit tests call them directly without building envelopes).
func (s *Service) ExecuteCommand(ctx context.Context, cmd Command) (any, *resultkind.Error) {
	p := cmd.Payload
	switch cmd.Type {
	case CreateAction:
		name, _ := p["name"].(string)
		return s.CreateActionCmd(ctx, name, cmd.Metadata)

	case CompleteAction:
		id, _ := p["id"].(string)
		ev, err := expectedVersion(p)
		if err != nil {
			return nil, err
		}
		return s.CompleteActionCmd(ctx, id, ev, cmd.Metadata)

	case CancelAction:
		id, _ := p["id"].(string)
		reason, _ := p["reason"].(string)
		ev, err := expectedVersion(p)
		if err != nil {
			return nil, err
		}
		return s.CancelActionCmd(ctx, id, ev, reason, cmd.Metadata)

	case UpdateAction:
		id, _ := p["id"].(string)
		name, _ := p["name"].(string)
		ev, err := expectedVersion(p)
		if err != nil {
			return nil, err
		}
		return s.UpdateActionCmd(ctx, id, ev, name, cmd.Metadata)

	case CreatePolicy:
		name, _ := p["name"].(string)
		maxAmount, err := decimalField(p, "maxAmount")
		if err != nil {
			return nil, err
		}
		return s.CreatePolicyCmd(ctx, name, maxAmount, cmd.Metadata)

	case ActivatePolicy:
		id, _ := p["id"].(string)
		ev, err := expectedVersion(p)
		if err != nil {
			return nil, err
		}
		return s.ActivatePolicyCmd(ctx, id, ev, cmd.Metadata)

	case SuspendPolicy:
		id, _ := p["id"].(string)
		reason, _ := p["reason"].(string)
		ev, err := expectedVersion(p)
		if err != nil {
			return nil, err
		}
		return s.SuspendPolicyCmd(ctx, id, ev, reason, cmd.Metadata)

	case ResumePolicy:
		id, _ := p["id"].(string)
		ev, err := expectedVersion(p)
		if err != nil {
			return nil, err
		}
		return s.ResumePolicyCmd(ctx, id, ev, cmd.Metadata)

	case RevokePolicy:
		id, _ := p["id"].(string)
		reason, _ := p["reason"].(string)
		revokerID, _ := p["revokerId"].(string)
		ev, err := expectedVersion(p)
		if err != nil {
			return nil, err
		}
		return s.RevokePolicyCmd(ctx, id, ev, reason, revokerID, cmd.Metadata)

	default:
		return nil, resultkind.New(resultkind.Validation, fmt.Sprintf("unknown command type %q", cmd.Type))
	}
}

func expectedVersion(p map[string]any) (uint64, *resultkind.Error) {
	switch v := p["expectedVersion"].(type) {
	case float64:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	case uint64:
		return v, nil
	default:
		return 0, resultkind.New(resultkind.Validation, "expectedVersion must be an integer")
	}
}

func decimalField(p map[string]any, field string) (decimal.Decimal, *resultkind.Error) {
	raw, ok := p[field]
	if !ok {
		return decimal.Zero, nil
	}
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, resultkind.New(resultkind.Validation, field+" is not a valid decimal")
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, resultkind.New(resultkind.Validation, field+" is not a valid decimal")
	}
}
