package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"image-collector/internal/common/config"
	apphttp "image-collector/internal/common/http"
	"image-collector/internal/common/logger"
	"image-collector/internal/itemstore"
	"image-collector/internal/models"
	"image-collector/internal/opsapi"
	"image-collector/internal/planner"
	"image-collector/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
categories:
  - name: fruits
    items:
      - apple
      - banana
      - name: dragon fruit
        displayName: Dragon Fruit
  - name: animals
    items: [cat, dog]
`

func TestParseManifest(t *testing.T) {
	m, err := parseManifest([]byte(testManifest))
	require.NoError(t, err)
	require.Len(t, m.Categories, 2)

	fruits := m.Categories[0]
	assert.Equal(t, "fruits", fruits.Name)
	assert.Equal(t, []ItemEntry{
		{Name: "apple"},
		{Name: "banana"},
		{Name: "dragon fruit", DisplayName: "Dragon Fruit"},
	}, fruits.Items)
	assert.Len(t, m.Categories[1].Items, 2)
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "categories: []", "no categories"},
		{"unnamed category", "categories:\n  - items: [apple]", "has no name"},
		{"slash in category", "categories:\n  - name: a/b\n    items: [x]", "must not contain"},
		{"duplicate category", "categories:\n  - name: a\n  - name: a", "duplicate category"},
		{"duplicate item", "categories:\n  - name: a\n    items: [x, x]", "duplicate item"},
		{"blank item", "categories:\n  - name: a\n    items: ['  ']", "requires category and name"},
		{"bad yaml", "categories: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSeed_CreatesAndPreservesExistingItems(t *testing.T) {
	ctx := context.Background()
	store := itemstore.NewMemoryStore()

	existing := &models.Item{
		Key:         models.NewItemKey("fruits", "apple"),
		DisplayName: "Apple",
		Images:      []models.ImageCandidate{{ID: "c1", Status: models.CandidateApproved, IsPrimary: true}},
		Progress:    models.NewCollectionProgress(3),
	}
	existing.Progress.Status = models.ItemStatusCompleted
	require.NoError(t, store.Save(ctx, existing))

	m, err := parseManifest([]byte(testManifest))
	require.NoError(t, err)

	sum, err := seed(ctx, store, m)
	require.NoError(t, err)
	assert.Equal(t, seedSummary{Created: 4, Unchanged: 1}, sum)

	apple, err := store.Load(ctx, models.NewItemKey("fruits", "apple"))
	require.NoError(t, err)
	assert.Equal(t, "Apple", apple.DisplayName)
	assert.Len(t, apple.Images, 1)
	assert.Equal(t, models.ItemStatusCompleted, apple.Status())

	dragon, err := store.Load(ctx, models.NewItemKey("fruits", "dragon fruit"))
	require.NoError(t, err)
	assert.Equal(t, "D", dragon.Key.Letter)
	assert.Equal(t, "Dragon Fruit", dragon.DisplayName)

	sum, err = seed(ctx, store, m)
	require.NoError(t, err)
	assert.Equal(t, seedSummary{Unchanged: 5}, sum)

	m.Categories[0].Items[2].DisplayName = "Pitaya"
	sum, err = seed(ctx, store, m)
	require.NoError(t, err)
	assert.Equal(t, seedSummary{Updated: 1, Unchanged: 4}, sum)
	dragon, err = store.Load(ctx, models.NewItemKey("fruits", "dragon fruit"))
	require.NoError(t, err)
	assert.Equal(t, "Pitaya", dragon.DisplayName)
}

func TestPrintPlan(t *testing.T) {
	ctx := context.Background()
	store := itemstore.NewMemoryStore()
	m, err := parseManifest([]byte(testManifest))
	require.NoError(t, err)
	_, err = seed(ctx, store, m)
	require.NoError(t, err)

	p := planner.New(store, idleQueue{}, planner.Options{BatchSize: 2}, logger.NewTestLogger(t))

	var out bytes.Buffer
	require.NoError(t, printPlan(ctx, &out, p, "fruits", false))
	assert.Equal(t,
		"Category fruits: 3 items in 2 batches\n  batch 1: apple, banana\n  batch 2: dragon fruit\n",
		out.String())

	out.Reset()
	require.NoError(t, printPlan(ctx, &out, p, "vehicles", false))
	assert.Equal(t, "Category vehicles: nothing to collect\n", out.String())
}

func TestTriggerCollection(t *testing.T) {
	s := scheduler.New(logger.NewTestLogger(t), scheduler.Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, s.RegisterQueue(scheduler.QueueOptions{Name: config.QueueCollectCategory, Concurrency: 1}))
	srv := httptest.NewServer(opsapi.NewRouter(opsapi.NewHandler(s, nil, nil, logger.NewTestLogger(t))))
	defer srv.Close()

	client := apphttp.NewClient(2 * time.Second)
	ctx := context.Background()

	h, err := triggerCollection(ctx, client, srv.URL+"/", "fruits", true)
	require.NoError(t, err)
	assert.Equal(t, "collect-category:fruits", h.ID)
	assert.False(t, h.Existing)

	h, err = triggerCollection(ctx, client, srv.URL, "fruits", false)
	require.NoError(t, err)
	assert.True(t, h.Existing)

	job, err := s.GetJob(config.QueueCollectCategory, "collect-category:fruits")
	require.NoError(t, err)
	var payload models.CollectCategoryPayload
	require.NoError(t, job.Decode(&payload))
	assert.True(t, payload.ForceRestart)
}
