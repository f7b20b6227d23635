package collector

import (
	"context"
	"fmt"

	"image-collector/internal/blobstore"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/metrics"
	"image-collector/internal/generator"
	"image-collector/internal/imaging"
	"image-collector/internal/models"
	"image-collector/internal/quality"
)

const generatorSource = generator.SourceName

// candidateInput is a searched or generated image before download.
type candidateInput struct {
	source      string
	sourceID    string
	originURL   string
	pageURL     string
	filename    string
	tags        []string
	description string
	license     models.License
	generated   bool
	fetch       func(ctx context.Context) ([]byte, error)
}

func generatorRequest(r *run, count int) generator.GenerateRequest {
	return generator.GenerateRequest{
		ItemName: r.item.Key.Name,
		Category: r.item.Key.Category,
		Count:    count,
	}
}

func generatedLicense(model string) models.License {
	lic := models.License{Name: "AI generated", Attribution: "Generated image"}
	if model != "" {
		lic.Attribution += " (" + model + ")"
	}
	return lic
}

// process downloads, renders, scores and decides one candidate, then stores
// and appends it. Failures are logged to the item and the candidate is
// dropped; perceptual duplicates are dropped silently.
func (o *Orchestrator) process(ctx context.Context, r *run, in candidateInput) {
	log := r.log.WithFields(map[string]interface{}{"source": in.source, "sourceId": in.sourceID})

	data, err := in.fetch(ctx)
	if err != nil {
		o.recordError(r, in.source, err)
		log.Warn("Candidate download failed", map[string]interface{}{"url": in.originURL, "error": err.Error()})
		return
	}

	rendition, err := o.deps.Derivatives.Generate(ctx, data)
	if err != nil {
		if ctx.Err() == nil {
			o.recordError(r, in.source, err)
			log.Warn("Candidate processing failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	info := rendition.Info

	hash, err := imaging.Fingerprint(rendition.Image)
	if err != nil {
		log.Debug("Fingerprint unavailable", map[string]interface{}{"error": err.Error()})
	} else if imaging.IsDuplicate(hash, r.hashes, o.cfg.DedupDistance) {
		log.Debug("Skipping perceptual duplicate", nil)
		metrics.CandidatesProcessed.WithLabelValues(in.source, "duplicate", "none").Inc()
		return
	}

	rights := imaging.ReadRights(data)
	lic := o.license(ctx, in, rights)

	now := o.now().UTC()
	score, err := o.deps.Scorer.Score(quality.ImageFacts{
		Width:    info.Width,
		Height:   info.Height,
		Bytes:    info.Bytes,
		Format:   info.Format,
		Filename: in.filename,
	}, quality.Context{
		ItemName:          r.item.Key.Name,
		Category:          r.item.Key.Category,
		SourceTags:        in.tags,
		SourceDescription: in.description,
	})
	if err != nil {
		o.recordError(r, in.source, err)
		log.Warn("Scoring failed, using neutral score", map[string]interface{}{"error": err.Error()})
		score = quality.Neutral(now)
	}

	cand := models.ImageCandidate{
		ID:             o.newID(),
		Source:         in.source,
		SourceID:       in.sourceID,
		OriginURL:      in.originURL,
		PageURL:        in.pageURL,
		Width:          info.Width,
		Height:         info.Height,
		Bytes:          info.Bytes,
		Format:         info.Format,
		Score:          &score,
		Status:         r.policy.Decide(score.Overall, false),
		License:        lic,
		PerceptualHash: hash,
		Generated:      in.generated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if agency := rights.StockAgency(); agency != "" {
		cand.Status = models.CandidateRejected
		cand.RejectionReason = "embedded rights name stock agency " + agency
	} else if cand.Status == models.CandidateRejected {
		cand.RejectionReason = fmt.Sprintf("quality score %.2f below %.2f", score.Overall, r.policy.MinQualityThreshold)
	}

	if cand.Status != models.CandidateRejected {
		variants, err := o.store(ctx, r.item.Key, cand, rendition.Derivatives)
		if err != nil {
			o.recordError(r, in.source, err)
			log.Error("Candidate storage failed", map[string]interface{}{"error": err.Error()})
			return
		}
		cand.Variants = variants
	}

	if cand.Status == models.CandidateApproved {
		cand.ApprovedAt = &now
		if r.item.PrimaryIndex() < 0 {
			cand.IsPrimary = true
		}
		r.item.Progress.UpdateSource(in.source, func(s *models.SourceStats) { s.Approved++ })
	}

	r.item.Images = append(r.item.Images, cand)
	r.item.Progress.Recompute(r.item.Images)
	if hash != 0 {
		r.hashes = append(r.hashes, hash)
	}
	r.added++
	metrics.CandidatesProcessed.WithLabelValues(in.source, string(cand.Status), string(quality.BucketOf(score.Overall))).Inc()

	log.Info("Candidate processed", map[string]interface{}{
		"candidateId": cand.ID,
		"score":       score.Overall,
		"status":      cand.Status,
		"primary":     cand.IsPrimary,
	})
}

// license prefers the source's own attribution, then embedded rights, then
// the source page's rel=license link.
func (o *Orchestrator) license(ctx context.Context, in candidateInput, rights *imaging.Rights) models.License {
	if !in.license.IsZero() {
		return in.license
	}
	if lic := rights.License(); !lic.IsZero() {
		return lic
	}
	if o.deps.Licenses == nil || in.pageURL == "" {
		return models.License{}
	}
	lic, err := o.deps.Licenses.Resolve(ctx, in.pageURL)
	if err != nil {
		return models.License{}
	}
	return lic
}

// store uploads every derivative. On failure the uploaded part is removed and
// a StorageFailed error is returned.
func (o *Orchestrator) store(ctx context.Context, key models.ItemKey, cand models.ImageCandidate, derivs []imaging.Derivative) (map[models.DerivativeSize]models.StoredVariant, error) {
	out := make(map[models.DerivativeSize]models.StoredVariant, len(derivs))
	var written []string
	for _, d := range derivs {
		blobKey := blobstore.Key(key, d.Size, cand.ID+d.Extension)
		res, err := o.deps.Blobs.Put(ctx, blobKey, d.Data, blobstore.PutOptions{
			ContentType:  d.ContentType,
			CacheControl: o.cfg.CacheControl,
			Metadata: map[string]string{
				"item":      key.String(),
				"candidate": cand.ID,
				"source":    cand.Source,
				"size":      string(d.Size),
			},
		})
		if err != nil {
			o.cleanup(written)
			if apperrors.CodeOf(err) == apperrors.ErrCodeStorageFailed {
				return nil, err
			}
			return nil, apperrors.NewStorageFailedError(blobKey, err)
		}
		written = append(written, blobKey)
		out[d.Size] = models.StoredVariant{
			Path:        res.Key,
			URL:         res.URL,
			ETag:        res.ETag,
			Width:       d.Width,
			Height:      d.Height,
			Bytes:       int64(len(d.Data)),
			ContentType: d.ContentType,
		}
	}
	return out, nil
}

func (o *Orchestrator) cleanup(keys []string) {
	ctx := context.Background()
	for _, k := range keys {
		if err := o.deps.Blobs.Delete(ctx, k); err != nil {
			o.log.Debug("Failed to remove partial upload", map[string]interface{}{"key": k, "error": err.Error()})
		}
	}
}
