package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
	"github.com/xenking/cupcake-checkout/internal/domain/catalog"
)

// Service implements the cart operations shared by the cart endpoints and
// the reorder flow.
type Service struct {
	store   Store
	catalog catalog.Repository
	cache   Cache
}

// NewService creates a cart Service. A nil cache disables caching.
func NewService(store Store, cupcakes catalog.Repository, cache Cache) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{store: store, catalog: cupcakes, cache: cache}
}

// AddItem adds quantity units of a cupcake to the user's cart, merging with an
// existing line. The merged quantity must fit the current stock.
func (s *Service) AddItem(ctx context.Context, userID, cupcakeID string, quantity int) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return apperr.Validationf("Quantity must be between %d and %d", MinQuantity, MaxQuantity)
	}

	c, err := s.lookup(ctx, cupcakeID)
	if err != nil {
		return err
	}
	if c.Stock < quantity {
		return insufficient(c, quantity)
	}

	line, err := s.store.FindLine(ctx, userID, cupcakeID)
	switch {
	case errors.Is(err, ErrLineNotFound):
		if err := s.store.InsertLine(ctx, userID, cupcakeID, quantity); err != nil {
			return errors.Wrap(err, "insert cart line")
		}
	case err != nil:
		return errors.Wrap(err, "find cart line")
	default:
		merged := line.Quantity + quantity
		if merged > c.Stock {
			return insufficient(c, merged)
		}
		if err := s.store.SetQuantity(ctx, userID, cupcakeID, merged); err != nil {
			return errors.Wrap(err, "update cart line")
		}
	}

	s.Invalidate(ctx, userID)
	return nil
}

// UpdateQuantity replaces the quantity of an existing line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, cupcakeID string, quantity int) error {
	if quantity < MinQuantity {
		return apperr.Validationf("Quantity must be at least %d", MinQuantity)
	}

	if _, err := s.store.FindLine(ctx, userID, cupcakeID); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return apperr.NotFound("Cart item", cupcakeID)
		}
		return errors.Wrap(err, "find cart line")
	}

	c, err := s.lookup(ctx, cupcakeID)
	if err != nil {
		return err
	}
	if c.Stock < quantity {
		return insufficient(c, quantity)
	}

	if err := s.store.SetQuantity(ctx, userID, cupcakeID, quantity); err != nil {
		return errors.Wrap(err, "update cart line")
	}
	s.Invalidate(ctx, userID)
	return nil
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, cupcakeID string) error {
	if err := s.store.DeleteLine(ctx, userID, cupcakeID); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return apperr.NotFound("Cart item", cupcakeID)
		}
		return errors.Wrap(err, "delete cart line")
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	s.Invalidate(ctx, userID)
	return nil
}

// View returns the user's cart, served from cache when possible.
func (s *Service) View(ctx context.Context, userID string) (*Snapshot, error) {
	lg := zctx.From(ctx)

	cached, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		lg.Warn("Cart cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	snap, err := s.store.ReadItems(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if err := s.cache.Set(ctx, &snap); err != nil {
		lg.Warn("Cart cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return &snap, nil
}

// Snapshot reads the cart straight from the store, bypassing the cache, so
// checkout always prices live data.
func (s *Service) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	snap, err := s.store.ReadItems(ctx, userID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read cart")
	}
	return snap, nil
}

// Invalidate drops the cached view of the user's cart. Failures are logged
// and otherwise ignored: the cache entry expires on its own.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Cart cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) lookup(ctx context.Context, cupcakeID string) (*catalog.Cupcake, error) {
	c, err := s.catalog.GetByID(ctx, cupcakeID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, apperr.NotFound("Cupcake", cupcakeID)
		}
		return nil, errors.Wrap(err, "get cupcake")
	}
	if !c.IsActive {
		return nil, apperr.NotFound("Cupcake", cupcakeID)
	}
	return c, nil
}

func insufficient(c *catalog.Cupcake, requested int) error {
	return apperr.Validationf("Insufficient stock for %q. Available: %d, requested: %d", c.Name, c.Stock, requested)
}
