package identity

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

func setupIdentityDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE seller_profiles (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	);`).Error)
	return db
}

func TestResolveIncludesProfileID(t *testing.T) {
	db := setupIdentityDB(t)
	account := uuid.New()
	profile := models.SellerProfile{ID: uuid.New(), AccountID: account, DisplayName: "Acme"}
	require.NoError(t, db.Create(&profile).Error)

	actor, err := NewResolver(db).Resolve(context.Background(), account, enums.ActorSeller)
	require.NoError(t, err)
	assert.True(t, actor.IsSellerOf(account))
	assert.True(t, actor.IsSellerOf(profile.ID))
	assert.False(t, actor.IsSellerOf(uuid.New()))
	assert.Len(t, actor.SellerIDs.IDs(), 2)
}

func TestResolveWithoutProfile(t *testing.T) {
	db := setupIdentityDB(t)
	user := uuid.New()

	actor, err := NewResolver(db).Resolve(context.Background(), user, enums.ActorBuyer)
	require.NoError(t, err)
	assert.True(t, actor.IsBuyerOf(user))
	assert.True(t, actor.IsSellerOf(user))
	assert.Len(t, actor.SellerIDs.IDs(), 1)

	_, err = NewResolver(db).Resolve(context.Background(), uuid.Nil, enums.ActorBuyer)
	require.Error(t, err)
}

func TestSellerIdentitiesFromEitherID(t *testing.T) {
	db := setupIdentityDB(t)
	profile := models.SellerProfile{ID: uuid.New(), AccountID: uuid.New(), DisplayName: "Acme"}
	require.NoError(t, db.Create(&profile).Error)
	resolver := NewResolver(db)

	byProfile, err := resolver.SellerIdentities(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.True(t, byProfile.Contains(profile.AccountID))

	byAccount, err := resolver.SellerIdentities(context.Background(), profile.AccountID)
	require.NoError(t, err)
	assert.True(t, byAccount.Contains(profile.ID))
}

func TestSystemActor(t *testing.T) {
	sys := System()
	assert.True(t, sys.IsSystem())
	assert.Nil(t, sys.ActorID())
	assert.False(t, sys.IsSellerOf(uuid.Nil))
}
