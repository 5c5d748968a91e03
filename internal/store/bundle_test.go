package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/types"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 每个连接是独立的内存库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

type fakeQueryRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeQueryRecorder) RecordDBQuery(database, operation string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, database+":"+operation)
}

func sampleBundle(name, provider string) apitool.Bundle {
	return apitool.Bundle{
		Name:        name,
		Description: "Find pets",
		Provider:    provider,
		Operation: apitool.OperationSchema{
			OperationID: name,
			ServerURL:   "https://petstore.example/pets/{petId}",
			Method:      "get",
			Parameters: []apitool.ParameterSpec{
				{Name: "petId", In: apitool.LocationPath, Required: true, Type: "integer"},
				{Name: "limit", In: apitool.LocationQuery, Type: "integer", Default: 20, HasDefault: true},
			},
		},
		Schema: types.ToolSchema{
			Name:       name,
			Parameters: json.RawMessage(`{"type":"object"}`),
		},
	}
}

func newRepo(t *testing.T) (*BundleRepository, *fakeQueryRecorder) {
	t.Helper()
	rec := &fakeQueryRecorder{}
	repo := NewBundleRepository(setupTestDB(t), rec, zaptest.NewLogger(t))
	require.NoError(t, repo.Migrate(context.Background()))
	return repo, rec
}

func TestBundleRepository_SaveAndGet(t *testing.T) {
	repo, rec := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBundle("getPet", "petstore")))

	got, err := repo.Get(ctx, "getPet")
	require.NoError(t, err)
	assert.Equal(t, "petstore", got.Provider)
	assert.Equal(t, "https://petstore.example/pets/{petId}", got.Operation.ServerURL)
	require.Len(t, got.Operation.Parameters, 2)
	// 整数默认值保持字面量
	assert.Equal(t, json.Number("20"), got.Operation.Parameters[1].Default)
	assert.JSONEq(t, `{"type":"object"}`, string(got.Schema.Parameters))

	assert.Contains(t, rec.ops, "sqlite:upsert")
	assert.Contains(t, rec.ops, "sqlite:get")
}

func TestBundleRepository_SaveOverwrites(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBundle("getPet", "petstore")))

	updated := sampleBundle("getPet", "petstore-v2")
	updated.Operation.Method = "post"
	require.NoError(t, repo.Save(ctx, updated))

	got, err := repo.Get(ctx, "getPet")
	require.NoError(t, err)
	assert.Equal(t, "petstore-v2", got.Provider)
	assert.Equal(t, "post", got.Operation.Method)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBundleRepository_List(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx,
		sampleBundle("zeta", "a"),
		sampleBundle("alpha", "a"),
		sampleBundle("beta", "b"),
	))

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "zeta", all[2].Name)

	onlyA, err := repo.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)
}

func TestBundleRepository_Delete(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBundle("one", "p"), sampleBundle("two", "p"), sampleBundle("three", "q")))

	require.NoError(t, repo.Delete(ctx, "one"))
	assert.ErrorIs(t, repo.Delete(ctx, "one"), ErrNotFound)

	_, err := repo.Get(ctx, "one")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := repo.DeleteProvider(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rest, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "three", rest[0].Name)
}

func TestBundleRepository_SaveRejectsEmptyName(t *testing.T) {
	repo, _ := newRepo(t)
	assert.Error(t, repo.Save(context.Background(), apitool.Bundle{}))
	assert.NoError(t, repo.Save(context.Background()))
}
