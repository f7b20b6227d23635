package quality

import (
	"math"
	"strings"
	"time"
	"unicode"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"
)

// neutralScore replaces any sub-score that cannot be computed.
const neutralScore = 5.0

// ImageFacts are the measured properties of one downloaded image.
type ImageFacts struct {
	Width    int
	Height   int
	Bytes    int64
	Format   string
	Filename string
}

// Context describes what the image is supposed to show.
type Context struct {
	ItemName          string
	Category          string
	SourceTags        []string
	SourceDescription string
}

// educationalValue is a static per-category usefulness constant for
// vocabulary teaching.
var educationalValue = map[string]float64{
	"animals":    9,
	"fruits":     9,
	"vegetables": 9,
	"colors":     8,
	"shapes":     8,
	"vehicles":   8,
}

const defaultEducationalValue = 7.0

type Scorer struct {
	weights models.ScoreWeights
	now     func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{weights: models.DefaultScoreWeights, now: time.Now}
}

// Score rates one image. It fails only when the facts carry no usable
// dimensions; individual sub-scores that come out invalid are replaced by a
// neutral value.
func (s *Scorer) Score(facts ImageFacts, sc Context) (models.QualityScore, error) {
	if facts.Width <= 0 || facts.Height <= 0 {
		return models.QualityScore{}, apperrors.NewProcessingFailedError("score", errInvalidDimensions)
	}

	b := models.ScoreBreakdown{
		Technical: sanitize(technicalScore(facts)),
		Relevance: sanitize(relevanceScore(facts.Filename, sc)),
		Aesthetic: sanitize(aestheticScore(facts)),
		Usability: sanitize(usabilityScore(facts, sc.Category)),
	}
	return compose(b, s.weights, s.now()), nil
}

// Neutral is the score assigned when scoring itself failed.
func Neutral(at time.Time) models.QualityScore {
	b := models.ScoreBreakdown{Technical: neutralScore, Relevance: neutralScore, Aesthetic: neutralScore, Usability: neutralScore}
	return compose(b, models.DefaultScoreWeights, at)
}

func compose(b models.ScoreBreakdown, w models.ScoreWeights, at time.Time) models.QualityScore {
	overall := b.Technical*w.Technical + b.Relevance*w.Relevance + b.Aesthetic*w.Aesthetic + b.Usability*w.Usability
	return models.QualityScore{
		Overall:    sanitize(overall),
		Breakdown:  b,
		Weights:    w,
		ComputedAt: at,
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return neutralScore
	}
	return clamp(v)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}

func technicalScore(f ImageFacts) float64 {
	return 0.4*resolutionScore(f.Width, f.Height) +
		0.2*aspectScore(f.Width, f.Height) +
		0.2*formatScore(f.Format) +
		0.2*compressionScore(f.Bytes, f.Width, f.Height)
}

func resolutionScore(w, h int) float64 {
	pixels := w * h
	switch {
	case pixels >= 1920*1080:
		return 10
	case w >= 1280 && h >= 720:
		return 8.5
	case w >= 800 && h >= 600:
		return 7
	case w >= 640 && h >= 480:
		return 5.5
	case w >= 400 && h >= 300:
		return 4
	default:
		return 2
	}
}

// aspectScore prefers square images and falls off linearly with elongation.
func aspectScore(w, h int) float64 {
	ratio := float64(max(w, h)) / float64(min(w, h))
	return clamp(10 - (ratio-1)*5)
}

func formatScore(format string) float64 {
	switch normalizeFormat(format) {
	case "webp":
		return 10
	case "jpeg":
		return 9
	case "png":
		return 8.5
	case "gif":
		return 5
	default:
		return 4
	}
}

func compressionScore(bytes int64, w, h int) float64 {
	if bytes <= 0 {
		return neutralScore
	}
	bpp := float64(bytes) / float64(w*h)
	switch {
	case bpp < 0.05:
		return 4
	case bpp < 0.1:
		return 7
	case bpp <= 0.5:
		return 10
	case bpp <= 1:
		return 8
	default:
		return 6
	}
}

func relevanceScore(filename string, sc Context) float64 {
	variants := WordVariants(sc.ItemName)
	return 0.3*matchScore(filename, sc.ItemName, variants) +
		0.4*matchScore(strings.Join(sc.SourceTags, " "), sc.ItemName, variants) +
		0.3*matchScore(sc.SourceDescription, sc.ItemName, variants)
}

// matchScore is 10 for exact containment of the name or one of its variants,
// proportional to token overlap for partial matches, and 2 otherwise.
func matchScore(text, name string, variants []string) float64 {
	text = strings.ToLower(text)
	if text == "" || name == "" {
		return 2
	}
	for _, v := range variants {
		if strings.Contains(text, v) {
			return 10
		}
	}

	nameTokens := tokenize(name)
	if len(nameTokens) == 0 {
		return 2
	}
	textTokens := map[string]bool{}
	for _, t := range tokenize(text) {
		for _, v := range WordVariants(t) {
			textTokens[v] = true
		}
	}
	hits := 0
	for _, t := range nameTokens {
		if textTokens[t] {
			hits++
		}
	}
	if hits == 0 {
		return 2
	}
	return 2 + 6*float64(hits)/float64(len(nameTokens))
}

func aestheticScore(f ImageFacts) float64 {
	score := 7.0
	ratio := float64(f.Width) / float64(f.Height)
	if ratio < 0.5 || ratio > 2 {
		score -= 2
	}
	if min(f.Width, f.Height) < 400 {
		score -= 2
	}
	return score
}

func usabilityScore(f ImageFacts, category string) float64 {
	return 0.4*webSizeScore(f.Width) + 0.3*webFormatScore(f.Format) + 0.3*educationalScore(category)
}

func webSizeScore(width int) float64 {
	switch {
	case width >= 800 && width <= 2400:
		return 10
	case width > 2400:
		return 8
	case width >= 400:
		return 7
	default:
		return 3
	}
}

func webFormatScore(format string) float64 {
	switch normalizeFormat(format) {
	case "jpeg", "webp":
		return 10
	case "png":
		return 8
	case "gif":
		return 4
	default:
		return 3
	}
}

func educationalScore(category string) float64 {
	if v, ok := educationalValue[strings.ToLower(strings.TrimSpace(category))]; ok {
		return v
	}
	return defaultEducationalValue
}

func normalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "image/"))
	if f == "jpg" {
		return "jpeg"
	}
	return f
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
