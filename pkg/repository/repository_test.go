package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID    int64  `gorm:"primaryKey"`
	Owner string `gorm:"type:text;not null"`
	Name  string `gorm:"type:text;not null"`
}

func setupStore(t *testing.T) Repository[widget] {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	return ProvideStore[widget](db)
}

func TestStoreCreateFind(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.BatchCreate(ctx, []*widget{
		{ID: 1, Owner: "a", Name: "one"},
		{ID: 2, Owner: "a", Name: "two"},
		{ID: 3, Owner: "b", Name: "three"},
	}))

	items, err := store.Find(ctx, &widget{Owner: "a"}, WithOrder("id DESC"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ID)

	items, err = store.Find(ctx, &widget{}, WithWhere("name LIKE ?", "t%"), WithOrder("id ASC"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "two", items[0].Name)
	assert.Equal(t, "three", items[1].Name)
}

func TestStoreFindOneMissingReturnsNil(t *testing.T) {
	store := setupStore(t)

	item, err := store.FindOne(context.Background(), &widget{Owner: "nobody"})
	require.NoError(t, err)
	assert.Nil(t, item)
}
