package service

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"infopos/backend/internal/domain"
)

// Manifest returns per-entity cardinalities. Store-scoped counts are zero and stock is
// omitted when no store is given.
func (s *Service) Manifest(ctx context.Context, storeID *int64) (domain.Manifest, error) {
	storeID, err := s.scopeStore(ctx, storeID)
	if err != nil {
		return domain.Manifest{}, err
	}

	cached, version, ok, err := s.cache.Get(ctx, storeID)
	if err != nil {
		s.logger.Warn("manifest cache read failed", "error", err)
	} else if ok {
		return *cached, nil
	}

	scope := "all"
	if storeID != nil {
		scope = strconv.FormatInt(*storeID, 10)
	}
	key := strconv.FormatInt(int64(version), 10) + ":" + scope
	v, err, _ := s.manifest.Do(key, func() (any, error) {
		manifest, err := s.countManifest(ctx, storeID)
		if err != nil {
			return nil, err
		}
		// A push that invalidated while counting bumped the version past this one.
		if err := s.cache.Set(ctx, storeID, version, &manifest, s.cacheTTL); err != nil {
			s.logger.Warn("manifest cache write failed", "error", err)
		}
		return manifest, nil
	})
	if err != nil {
		return domain.Manifest{}, err
	}
	return v.(domain.Manifest), nil
}

func (s *Service) countManifest(ctx context.Context, storeID *int64) (domain.Manifest, error) {
	var m domain.Manifest
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		m.Products, err = s.repo.CountProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		m.Contacts, err = s.repo.CountContacts(gctx)
		return err
	})
	g.Go(func() (err error) {
		m.Charges, err = s.repo.CountCharges(gctx)
		return err
	})
	if storeID != nil {
		id := *storeID
		var stock int64
		g.Go(func() (err error) {
			m.Sales, err = s.repo.CountSales(gctx, id)
			return err
		})
		g.Go(func() (err error) {
			m.Transactions, err = s.repo.CountTransactions(gctx, id)
			return err
		})
		g.Go(func() (err error) {
			stock, err = s.repo.CountStock(gctx, id)
			return err
		})
		if err := g.Wait(); err != nil {
			return domain.Manifest{}, err
		}
		m.Stock = &stock
		return m, nil
	}
	if err := g.Wait(); err != nil {
		return domain.Manifest{}, err
	}
	return m, nil
}
