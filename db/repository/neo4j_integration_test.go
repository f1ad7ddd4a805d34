//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/briangormanly/momento/model"
)

// setupNeo4jContainer starts a Neo4j container for testing.
func setupNeo4jContainer(t *testing.T) (uri string, cleanup func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "neo4j:5-community",
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "neo4j/testpassword",
		},
		WaitingFor: wait.ForLog("Bolt enabled on").
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start neo4j container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	uri = fmt.Sprintf("bolt://%s:%s", host, port.Port())

	cleanup = func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return uri, cleanup
}

func newTestStore(t *testing.T, uri string) *GraphStore {
	logger := logrus.New()
	store := NewGraphStore(logrus.NewEntry(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, store.Connect(ctx, uri, "neo4j", "testpassword", "neo4j", 10))
	return store
}

func TestGraphStoreConnectAndVerify(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	assert.True(t, store.VerifyConnectivity(context.Background()))
}

func TestEntityRepositoryUpsertIsIdempotentAndMonotonic(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	log := logrus.NewEntry(logrus.New())
	repo := NewNeo4jEntityRepository(store, log)
	ctx := context.Background()

	entity, err := model.NewEntity(model.Entity{
		Name:         "Amelia Cho",
		SystemLabels: []model.SystemLabel{model.SystemLabelPerson},
		Metadata:     map[string]interface{}{"source_entry_id": "entry-1"},
	})
	require.NoError(t, err)

	stored, err := repo.Upsert(ctx, *entity)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.SystemLabel{model.SystemLabelEntity, model.SystemLabelPerson}, stored.SystemLabels)

	// Re-upsert with an additional label; the union must be monotonic -
	// PERSON must still be present even though only LOCATION is added.
	grown := stored.WithSystemLabels(model.SystemLabelLocation)
	stored2, err := repo.Upsert(ctx, grown)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]model.SystemLabel{model.SystemLabelEntity, model.SystemLabelPerson, model.SystemLabelLocation},
		stored2.SystemLabels)

	fetched, err := repo.Get(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amelia Cho", fetched.Name)
	assert.Equal(t, "entry-1", fetched.Metadata["source_entry_id"])
}

func TestEntityRepositoryGetMissingReturnsNotFound(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	repo := NewNeo4jEntityRepository(store, logrus.NewEntry(logrus.New()))
	_, err := repo.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestEntityRepositorySearchIsCaseInsensitive(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	repo := NewNeo4jEntityRepository(store, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	entity, err := model.NewEntity(model.Entity{Name: "Twilight Florist", Summary: "a flower shop"})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, *entity)
	require.NoError(t, err)

	results, err := repo.Search(ctx, "twilight", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entity.ID, results[0].ID)
}

func TestEntityRepositoryDeleteReportsWhetherANodeWasRemoved(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	repo := NewNeo4jEntityRepository(store, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	entity, err := model.NewEntity(model.Entity{Name: "Disposable"})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, *entity)
	require.NoError(t, err)

	removed, err := repo.Delete(ctx, entity.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := repo.Delete(ctx, entity.ID)
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

func TestRelationRepositoryCreateAndListForEntity(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	entities := NewNeo4jEntityRepository(store, logrus.NewEntry(logrus.New()))
	relations := NewNeo4jRelationRepository(store, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	source, err := model.NewEntity(model.Entity{Name: "Brian"})
	require.NoError(t, err)
	target, err := model.NewEntity(model.Entity{Name: "Twilight Florist"})
	require.NoError(t, err)
	_, err = entities.Upsert(ctx, *source)
	require.NoError(t, err)
	_, err = entities.Upsert(ctx, *target)
	require.NoError(t, err)

	require.NoError(t, relations.Create(ctx, model.Relation{Source: source.ID, Target: target.ID, RelationType: "visited"}))

	listed, err := relations.ListForEntity(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "VISITED", listed[0].RelationType)
	assert.Equal(t, target.ID, listed[0].Target)
}

func TestRelationRepositoryCreateRejectsInvalidType(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	relations := NewNeo4jRelationRepository(store, logrus.NewEntry(logrus.New()))
	err := relations.Create(context.Background(), model.Relation{Source: "a", Target: "b", RelationType: "bad; type"})
	require.Error(t, err)
}

func TestRelationRepositoryBulkCreateSkipsFailuresAndReturnsSucceeded(t *testing.T) {
	uri, cleanup := setupNeo4jContainer(t)
	defer cleanup()

	store := newTestStore(t, uri)
	defer store.Close(context.Background())

	entities := NewNeo4jEntityRepository(store, logrus.NewEntry(logrus.New()))
	relations := NewNeo4jRelationRepository(store, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	a, err := model.NewEntity(model.Entity{Name: "A"})
	require.NoError(t, err)
	b, err := model.NewEntity(model.Entity{Name: "B"})
	require.NoError(t, err)
	_, err = entities.Upsert(ctx, *a)
	require.NoError(t, err)
	_, err = entities.Upsert(ctx, *b)
	require.NoError(t, err)

	created, err := relations.BulkCreate(ctx, []model.Relation{
		{Source: a.ID, Target: b.ID, RelationType: "knows"},
		{Source: a.ID, Target: b.ID, RelationType: "bad type"},
	})
	require.NoError(t, err)
	assert.Len(t, created, 1)
}
