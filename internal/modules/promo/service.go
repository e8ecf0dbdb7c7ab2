// README: Promo resolver; computes order-time discounts and settles them on completion.
package promo

import (
	"context"
	"errors"
	"time"

	"taxihub/internal/types"
)

var (
	ErrCodeNotFound     = errors.New("promo code not found")
	ErrCodeExpired      = errors.New("promo code expired")
	ErrCodeLimitReached = errors.New("promo code usage limit reached")
	ErrCodeAlreadyUsed  = errors.New("promo code already used by this client")
	ErrActiveUsage      = errors.New("client already has an active promo usage")
)

// Store is the persistence contract for promo state. MutateProgress must run
// fn under a per-(client,task) exclusive lock so progress increments cannot
// race reward consumption.
type Store interface {
	ActiveTasks(ctx context.Context) ([]Task, error)
	AvailableReward(ctx context.Context, clientID types.ID) (*Progress, *Task, error)
	MutateProgress(ctx context.Context, clientID, taskID types.ID, fn func(p *Progress) error) error

	GetCodeByText(ctx context.Context, code string) (*Code, error)
	UsageCountForCode(ctx context.Context, codeID types.ID) (int, error)
	HasClientUsedCode(ctx context.Context, clientID, codeID types.ID) (bool, error)
	ActiveUsage(ctx context.Context, clientID types.ID) (*Usage, *Code, error)
	CreateUsage(ctx context.Context, u *Usage) error
	ConsumeUsage(ctx context.Context, usageID int64) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// ResolveDiscount computes the discount for a new order: an earned task
// reward wins over an activated promo code; with neither, zero. The discount
// is clamped so the price never goes negative. The returned source travels
// with the order and tells settlement what to consume.
func (s *Service) ResolveDiscount(ctx context.Context, clientID types.ID, price types.Money) (types.Money, DiscountSource, error) {
	progress, task, err := s.store.AvailableReward(ctx, clientID)
	if err != nil {
		return types.Money{Currency: price.Currency}, SourceNone, err
	}
	if progress != nil && !s.rewardExpired(progress) {
		return clampDiscount(price, task.DiscountPercent), SourceTaskReward, nil
	}

	usage, code, err := s.store.ActiveUsage(ctx, clientID)
	if err != nil {
		return types.Money{Currency: price.Currency}, SourceNone, err
	}
	if usage != nil && s.now().Before(usage.ExpiresAt) {
		return clampDiscount(price, code.DiscountPercent), SourcePromoCode, nil
	}

	return types.Money{Currency: price.Currency}, SourceNone, nil
}

// UpdateProgressOnCompletion advances every active task's counter for the
// client. A counter with an un-consumed reward does not move, and a counter
// reaching its goal is clamped at the requirement.
func (s *Service) UpdateProgressOnCompletion(ctx context.Context, clientID types.ID, distanceKm float64) error {
	tasks, err := s.store.ActiveTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		task := task
		err := s.store.MutateProgress(ctx, clientID, task.ID, func(p *Progress) error {
			// A reward that lapsed unconsumed is cleared, not kept:
			// leaving the flag set would freeze the counter forever.
			if p.RewardAvailable && s.rewardExpired(p) {
				p.Count = 0
				p.RewardAvailable = false
				p.RewardExpiresAt = nil
			}
			if p.RewardAvailable {
				return nil
			}
			if task.OneTime && p.CompletedCount > 0 {
				return nil
			}
			switch task.Metric {
			case MetricDistance:
				p.Count += int64(distanceKm + 0.5)
			default:
				p.Count++
			}
			if p.Count >= task.Required {
				p.Count = task.Required
				p.RewardAvailable = true
				if task.RewardHours > 0 {
					exp := s.now().Add(time.Duration(task.RewardHours) * time.Hour)
					p.RewardExpiresAt = &exp
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// MarkRewardUsed consumes the discount source that backed a completed
// discounted order. Consuming a task reward resets its counter so a new
// cycle can begin; a code-backed discount consumes only the code usage,
// leaving any reward earned since order creation untouched.
func (s *Service) MarkRewardUsed(ctx context.Context, clientID types.ID, source DiscountSource) error {
	switch source {
	case SourceTaskReward:
		progress, _, err := s.store.AvailableReward(ctx, clientID)
		if err != nil {
			return err
		}
		if progress == nil {
			return nil
		}
		return s.store.MutateProgress(ctx, clientID, progress.TaskID, func(p *Progress) error {
			if !p.RewardAvailable {
				return nil
			}
			p.Count = 0
			p.RewardAvailable = false
			p.RewardExpiresAt = nil
			p.CompletedCount++
			return nil
		})
	case SourcePromoCode:
		usage, _, err := s.store.ActiveUsage(ctx, clientID)
		if err != nil {
			return err
		}
		if usage != nil {
			return s.store.ConsumeUsage(ctx, usage.ID)
		}
	}
	return nil
}

// SettleCompletion is the single entry point the order lifecycle calls after
// a ride completes: advance progress counters, then consume the applied
// discount (if any). Counters do not move while a reward is pending, so the
// discounted ride itself never double-counts; consuming afterwards leaves the
// counter reset to zero for the next cycle.
func (s *Service) SettleCompletion(ctx context.Context, clientID types.ID, discount types.Money, source DiscountSource, distanceKm float64) error {
	if err := s.UpdateProgressOnCompletion(ctx, clientID, distanceKm); err != nil {
		return err
	}
	if !discount.IsZero() {
		return s.MarkRewardUsed(ctx, clientID, source)
	}
	return nil
}

// ActivateCode validates and records a client's activation of a global promo
// code. The personal expiry is activation time plus the code's configured
// duration, independent of the code's own expiry.
func (s *Service) ActivateCode(ctx context.Context, clientID types.ID, codeText string) (*Usage, error) {
	code, err := s.store.GetCodeByText(ctx, codeText)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrCodeNotFound
	}
	now := s.now()
	if now.After(code.ExpiresAt) {
		return nil, ErrCodeExpired
	}

	used, err := s.store.HasClientUsedCode(ctx, clientID, code.ID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrCodeAlreadyUsed
	}

	if code.UsageLimit > 0 {
		count, err := s.store.UsageCountForCode(ctx, code.ID)
		if err != nil {
			return nil, err
		}
		if count >= code.UsageLimit {
			return nil, ErrCodeLimitReached
		}
	}

	active, _, err := s.store.ActiveUsage(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if active != nil && now.Before(active.ExpiresAt) {
		return nil, ErrActiveUsage
	}

	u := &Usage{
		ClientID:    clientID,
		CodeID:      code.ID,
		ActivatedAt: now,
		ExpiresAt:   now.Add(time.Duration(code.DurationHours) * time.Hour),
	}
	if err := s.store.CreateUsage(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) rewardExpired(p *Progress) bool {
	return p.RewardExpiresAt != nil && s.now().After(*p.RewardExpiresAt)
}

func clampDiscount(price types.Money, percent int) types.Money {
	d := price.Percent(percent)
	if d.Amount > price.Amount {
		d.Amount = price.Amount
	}
	return d
}
