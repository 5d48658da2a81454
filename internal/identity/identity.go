// Package identity resolves an authenticated caller into the set of
// identifiers that may stand for them on an aggregate. A seller can be
// referenced by account id or by storefront profile id.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
)

// Set is an unordered collection of equivalent identifiers.
type Set map[uuid.UUID]struct{}

func NewSet(ids ...uuid.UUID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Add(id uuid.UUID) {
	if id != uuid.Nil {
		s[id] = struct{}{}
	}
}

func (s Set) Contains(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	_, ok := s[id]
	return ok
}

// IDs returns the members in no particular order.
func (s Set) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Actor is the resolved caller of an engine operation.
type Actor struct {
	UserID    uuid.UUID
	Role      enums.ActorRole
	SellerIDs Set
}

// System is the actor used by scheduled jobs.
func System() Actor {
	return Actor{Role: enums.ActorSystem, SellerIDs: NewSet()}
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.ActorAdmin
}

func (a Actor) IsSystem() bool {
	return a.Role == enums.ActorSystem
}

// IsBuyerOf reports whether the caller placed the order.
func (a Actor) IsBuyerOf(buyerID uuid.UUID) bool {
	return a.UserID != uuid.Nil && a.UserID == buyerID
}

// IsSellerOf reports whether any of the caller's seller identifiers matches.
func (a Actor) IsSellerOf(sellerID uuid.UUID) bool {
	return a.SellerIDs.Contains(sellerID)
}

// ActorID is the audit actor reference; nil for system actors.
func (a Actor) ActorID() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// EventRef is the actor reference stamped on outbox envelopes.
func (a Actor) EventRef() *outbox.ActorRef {
	role := a.Role
	if role == "" || a.UserID == uuid.Nil {
		role = enums.ActorSystem
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(role)}
}

type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve builds the actor for userID. Every caller carries its own user id
// in SellerIDs; a seller profile owned by the account adds the profile id.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, role enums.ActorRole) (Actor, error) {
	if userID == uuid.Nil {
		return Actor{}, errors.New("user id required")
	}
	if !role.IsValid() {
		return Actor{}, fmt.Errorf("invalid actor role %q", role)
	}
	actor := Actor{UserID: userID, Role: role, SellerIDs: NewSet(userID)}

	var profile models.SellerProfile
	err := r.db.WithContext(ctx).Where("account_id = ?", userID).First(&profile).Error
	switch {
	case err == nil:
		actor.SellerIDs.Add(profile.ID)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return Actor{}, fmt.Errorf("load seller profile: %w", err)
	}
	return actor, nil
}

// SellerIdentities returns every identifier that represents the seller known
// by sellerID, which may be an account id or a profile id.
func (r *Resolver) SellerIdentities(ctx context.Context, sellerID uuid.UUID) (Set, error) {
	set := NewSet(sellerID)
	var profile models.SellerProfile
	err := r.db.WithContext(ctx).
		Where("id = ? OR account_id = ?", sellerID, sellerID).
		First(&profile).Error
	switch {
	case err == nil:
		set.Add(profile.ID)
		set.Add(profile.AccountID)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("load seller profile: %w", err)
	}
	return set, nil
}
