package service

import (
	"context"
	"fmt"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/repository"
)

// Resolver computes who must attest for a campaign from the live registry.
type Resolver struct {
	Users     repository.UserRegistryInterface
	Companies repository.CompanyRegistryInterface
	Assets    repository.AssetRegistryInterface
}

// Resolution is the targeting outcome at activation time.
type Resolution struct {
	Recipients         []model.User
	UnregisteredOwners []model.AssetOwner
	// ValidCompanyIDs is set for companies targeting only.
	ValidCompanyIDs []int64
}

func (r *Resolver) Resolve(ctx context.Context, c *model.Campaign) (*Resolution, error) {
	switch c.TargetType {
	case model.TargetAll:
		return r.resolveAll(ctx)
	case model.TargetSelected:
		return r.resolveSelected(ctx, c.TargetUserIDs)
	case model.TargetCompanies:
		return r.resolveCompanies(ctx, c.TargetCompanyIDs)
	}
	return nil, appErrors.NewValidation("target_type", fmt.Sprintf("unknown target type %q", c.TargetType))
}

func (r *Resolver) resolveAll(ctx context.Context) (*Resolution, error) {
	users, err := r.Users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	owners, err := r.Assets.ListOwners(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list asset owners: %w", err)
	}
	return &Resolution{
		Recipients:         users,
		UnregisteredOwners: unregistered(owners, emailSet(users)),
	}, nil
}

// Stale user ids are dropped silently. Unregistered owners are not resolved in this mode.
func (r *Resolver) resolveSelected(ctx context.Context, ids []int64) (*Resolution, error) {
	res := &Resolution{Recipients: []model.User{}, UnregisteredOwners: []model.AssetOwner{}}
	seen := map[int64]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		u, err := r.Users.GetByID(ctx, id)
		if appErrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", id, err)
		}
		res.Recipients = append(res.Recipients, *u)
	}
	return res, nil
}

func (r *Resolver) resolveCompanies(ctx context.Context, ids []int64) (*Resolution, error) {
	valid, err := r.Companies.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check companies: %w", err)
	}
	if len(valid) == 0 {
		return nil, appErrors.NewValidation("target_company_ids", "none of the selected companies exist")
	}

	owners, err := r.Assets.ListOwners(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("list asset owners: %w", err)
	}
	users, err := r.Users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	byEmail := make(map[string]model.User, len(users))
	for _, u := range users {
		byEmail[normalizeEmail(u.Email)] = u
	}

	res := &Resolution{Recipients: []model.User{}, ValidCompanyIDs: valid}
	added := map[int64]bool{}
	for _, o := range owners {
		if u, ok := byEmail[normalizeEmail(o.Email)]; ok && !added[u.ID] {
			added[u.ID] = true
			res.Recipients = append(res.Recipients, u)
		}
	}
	res.UnregisteredOwners = unregistered(owners, byEmailKeys(byEmail))

	if len(res.Recipients) == 0 && len(res.UnregisteredOwners) == 0 {
		return nil, appErrors.NewValidation("target_company_ids", "no asset owners found in the selected companies")
	}
	return res, nil
}

func emailSet(users []model.User) map[string]bool {
	set := make(map[string]bool, len(users))
	for _, u := range users {
		set[normalizeEmail(u.Email)] = true
	}
	return set
}

func byEmailKeys(m map[string]model.User) map[string]bool {
	set := make(map[string]bool, len(m))
	for k := range m {
		set[k] = true
	}
	return set
}

func unregistered(owners []model.AssetOwner, registered map[string]bool) []model.AssetOwner {
	out := []model.AssetOwner{}
	seen := map[string]bool{}
	for _, o := range owners {
		key := normalizeEmail(o.Email)
		if key == "" || registered[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}
