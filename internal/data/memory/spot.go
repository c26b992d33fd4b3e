package memory

import (
	"context"
	"fmt"
	"sort"

	"parking-booking/internal/data/entity"

	"github.com/google/uuid"
)

type spotRepo struct {
	st      *Store
	locking bool
}

func (r *spotRepo) Create(_ context.Context, s *entity.Spot) error {
	defer guard(r.st, r.locking)()

	if _, ok := r.st.spots[s.ID]; ok {
		return fmt.Errorf("create spot %q: duplicate id", s.Title)
	}
	r.st.spots[s.ID] = cloneSpot(s)
	return nil
}

func (r *spotRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Spot, error) {
	defer guard(r.st, r.locking)()

	s, ok := r.st.spots[id]
	if !ok {
		return nil, nil
	}
	return cloneSpot(s), nil
}

func (r *spotRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Spot, error) {
	return r.FindByID(ctx, id)
}

func (r *spotRepo) FindByOwnerID(_ context.Context, ownerID uuid.UUID) ([]*entity.Spot, error) {
	defer guard(r.st, r.locking)()

	var out []*entity.Spot
	for _, s := range r.st.spots {
		if s.OwnerID == ownerID {
			out = append(out, cloneSpot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *spotRepo) Update(_ context.Context, s *entity.Spot) error {
	defer guard(r.st, r.locking)()

	if _, ok := r.st.spots[s.ID]; !ok {
		return fmt.Errorf("spot %s not found", s.ID.String())
	}
	r.st.spots[s.ID] = cloneSpot(s)
	return nil
}
