package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"image-collector/internal/blobstore"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/generator"
	"image-collector/internal/imaging"
	"image-collector/internal/itemstore"
	"image-collector/internal/models"
	"image-collector/internal/quality"
	"image-collector/internal/sources"
)

// createBlockPNG draws a 9x8 grid of random gray blocks. Different seeds
// give perceptually distinct images.
func createBlockPNG(t *testing.T, seed int64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, 180, 160))
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 9; bx++ {
			g := uint8(rng.Intn(256))
			for y := by * 20; y < (by+1)*20; y++ {
				for x := bx * 20; x < (bx+1)*20; x++ {
					img.Set(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
				}
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeSource struct {
	name      string
	results   []sources.Candidate
	data      map[string][]byte
	searchErr error
	panics    bool

	mu        sync.Mutex
	searches  int
	downloads []string
}

// newFakeSource serves n candidates named c1..cn whose images use seeds
// seedBase+1..seedBase+n.
func newFakeSource(t *testing.T, name string, n int, seedBase int64) *fakeSource {
	s := &fakeSource{name: name, data: map[string][]byte{}}
	for i := 1; i <= n; i++ {
		u := fmt.Sprintf("https://img.example.com/%s/c%d.png", name, i)
		s.results = append(s.results, sources.Candidate{
			ID:          fmt.Sprintf("c%d", i),
			Source:      name,
			DownloadURL: u,
			Tags:        []string{"apple"},
			Description: "an apple",
			License:     models.License{Name: "Test License"},
		})
		s.data[u] = createBlockPNG(t, seedBase+int64(i))
	}
	return s
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Search(ctx context.Context, term string, opts sources.SearchOptions) ([]sources.Candidate, error) {
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
	if s.panics {
		panic("source exploded")
	}
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return append([]sources.Candidate(nil), s.results...), nil
}

func (s *fakeSource) Download(ctx context.Context, c sources.Candidate) (*sources.Download, error) {
	s.mu.Lock()
	s.downloads = append(s.downloads, c.ID)
	s.mu.Unlock()
	data, ok := s.data[c.DownloadURL]
	if !ok {
		return nil, apperrors.NewDownloadFailedError(c.DownloadURL, errors.New("404"))
	}
	return &sources.Download{Data: data, ContentType: "image/png"}, nil
}

func (s *fakeSource) downloadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.downloads)
}

// fakeScorer returns fixed scores by filename, or def for unknown files.
type fakeScorer struct {
	scores map[string]float64
	fail   map[string]bool
	def    float64
}

func (f *fakeScorer) Score(facts quality.ImageFacts, _ quality.Context) (models.QualityScore, error) {
	if f.fail[facts.Filename] {
		return models.QualityScore{}, apperrors.NewProcessingFailedError("score", errors.New("broken"))
	}
	v, ok := f.scores[facts.Filename]
	if !ok {
		v = f.def
	}
	return models.QualityScore{
		Overall:   v,
		Breakdown: models.ScoreBreakdown{Technical: v, Relevance: v, Aesthetic: v, Usability: v},
		Weights:   models.DefaultScoreWeights,
	}, nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Name() string { return "memory" }

func (m *memBlobs) Put(_ context.Context, key string, data []byte, _ blobstore.PutOptions) (blobstore.PutResult, error) {
	if m.fail {
		return blobstore.PutResult{}, errors.New("bucket unreachable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return blobstore.PutResult{Key: key, URL: "https://cdn.test/" + key, ETag: "e"}, nil
}

func (m *memBlobs) Head(_ context.Context, key string) (blobstore.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.objects[key]
	if !ok {
		return blobstore.Info{}, blobstore.ErrNotFound
	}
	return blobstore.Info{Key: key, Size: int64(len(d))}, nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeGenerator struct {
	images []generator.GeneratedImage
	err    error
	calls  []generator.GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.GenerateRequest) (*generator.GenerateResult, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &generator.GenerateResult{Images: g.images, ApprovedCount: len(g.images)}, nil
}

type harness struct {
	orch   *Orchestrator
	store  *itemstore.MemoryStore
	locker *itemstore.MemoryLocker
	blobs  *memBlobs
	scorer *fakeScorer
	key    models.ItemKey
}

func testConfig() Config {
	return Config{
		TargetCount:     3,
		MaxRetries:      3,
		RetryInterval:   time.Hour,
		ErrorLogSize:    10,
		PerPage:         10,
		CandidateFactor: 4,
	}
}

func createHarness(t *testing.T, cfg Config, gen generator.ImageGenerator, srcs ...*fakeSource) *harness {
	t.Helper()
	h := &harness{
		store:  itemstore.NewMemoryStore(),
		locker: itemstore.NewMemoryLocker(),
		blobs:  newMemBlobs(),
		scorer: &fakeScorer{scores: map[string]float64{}, fail: map[string]bool{}, def: 9.0},
		key:    models.NewItemKey("fruits", "apple"),
	}
	clients := map[string]sources.ImageSourceClient{}
	for _, s := range srcs {
		clients[s.name] = s
		cfg.Sources = append(cfg.Sources, s.name)
	}
	deps := Deps{
		Store:       h.store,
		Locker:      h.locker,
		Sources:     clients,
		Derivatives: imaging.NewDerivativeGenerator([]imaging.SizeSpec{{Size: models.SizeThumbnail, MaxSide: 64}}, 80),
		Scorer:      h.scorer,
		Policy:      quality.DefaultPolicy(),
		Blobs:       h.blobs,
		Logger:      logger.NewTestLogger(t),
	}
	if gen != nil {
		deps.Generator = gen
	}
	h.orch = New(cfg, deps)
	require.NoError(t, h.store.Save(context.Background(), &models.Item{Key: h.key, DisplayName: "Apple"}))
	return h
}

func (h *harness) load(t *testing.T) *models.Item {
	t.Helper()
	item, err := h.store.Load(context.Background(), h.key)
	require.NoError(t, err)
	return item
}

func primaryCount(item *models.Item) int {
	n := 0
	for _, c := range item.Images {
		if c.IsPrimary && c.Status == models.CandidateApproved {
			n++
		}
	}
	return n
}

func candidateBySourceID(item *models.Item, id string) *models.ImageCandidate {
	for i := range item.Images {
		if item.Images[i].SourceID == id {
			return &item.Images[i]
		}
	}
	return nil
}
