package collector

import (
	"context"
	"errors"
	"fmt"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"
	"image-collector/internal/sources"
)

type pooled struct {
	client sources.ImageSourceClient
	cand   sources.Candidate
}

func (p pooled) input() candidateInput {
	c := p.cand
	client := p.client
	return candidateInput{
		source:      c.Source,
		sourceID:    c.ID,
		originURL:   c.DownloadURL,
		pageURL:     c.PageURL,
		filename:    c.Filename(),
		tags:        c.Tags,
		description: c.Description,
		license:     c.License,
		fetch: func(ctx context.Context) ([]byte, error) {
			d, err := client.Download(ctx, c)
			if err != nil {
				return nil, err
			}
			return d.Data, nil
		},
	}
}

// search queries the run's sources in priority order until enough raw
// candidates are pooled. A timeout moves on to the next term; an unavailable
// source is skipped for the rest of the run. Neither aborts the item.
func (o *Orchestrator) search(ctx context.Context, r *run) ([]pooled, error) {
	want := (r.opts.targetCount - r.approved()) * o.cfg.CandidateFactor
	terms := BuildSearchTerms(r.item.Key.Name, r.item.Key.Category, o.cfg.MaxTerms)
	opts := sources.SearchOptions{PerPage: o.cfg.PerPage, SafeSearch: true}

	var pool []pooled
	for _, name := range r.opts.sources {
		if len(pool) >= want {
			break
		}
		client, ok := o.deps.Sources[name]
		if !ok {
			o.recordError(r, name, apperrors.NewSourceUnavailableError(name, errors.New("source not configured")))
			continue
		}
		log := r.log.WithFields(map[string]interface{}{"source": name})

		for _, term := range terms {
			if len(pool) >= want {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			found, err := client.Search(ctx, term, opts)
			now := o.now().UTC()
			r.item.Progress.UpdateSource(name, func(s *models.SourceStats) {
				s.LastSearched = &now
				if err != nil {
					s.LastError = err.Error()
				}
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				o.recordError(r, name, err)
				if sources.IsTimeout(err) {
					log.Warn("Search timed out, trying next term", map[string]interface{}{"term": term})
					continue
				}
				if errors.Is(err, apperrors.ErrSourceUnavailable) {
					log.Warn("Source unavailable, skipping", map[string]interface{}{"error": err.Error()})
					break
				}
				log.Warn("Search failed", map[string]interface{}{"term": term, "error": err.Error()})
				continue
			}

			added := 0
			for _, c := range sources.FilterCandidates(found) {
				if _, dup := r.seen[c.DownloadURL]; dup || c.DownloadURL == "" {
					continue
				}
				r.seen[c.DownloadURL] = struct{}{}
				if c.Source == "" {
					c.Source = name
				}
				pool = append(pool, pooled{client: client, cand: c})
				added++
			}
			r.item.Progress.UpdateSource(name, func(s *models.SourceStats) { s.Found += added })
			log.Debug("Search finished", map[string]interface{}{
				"term":     term,
				"returned": len(found),
				"pooled":   added,
			})
		}
	}

	if len(pool) == 0 {
		r.log.Warn("No candidates found", map[string]interface{}{"terms": terms})
	}
	return pool, nil
}

// fallback asks the generator for the remaining shortfall and runs the
// results through the same pipeline as searched candidates.
func (o *Orchestrator) fallback(ctx context.Context, r *run) error {
	short := r.opts.targetCount - r.approved()
	res, err := o.deps.Generator.Generate(ctx, generatorRequest(r, short))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.recordError(r, generatorSource, err)
		r.log.Warn("Image generation failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	r.log.Info("Generated fallback images", map[string]interface{}{
		"requested": short,
		"returned":  len(res.Images),
		"cost":      res.Cost,
	})

	for i, img := range res.Images {
		if r.satisfied() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data := img.Data
		format := img.Format
		if format == "" {
			format = "png"
		}
		o.process(ctx, r, candidateInput{
			source:      generatorSource,
			sourceID:    fmt.Sprintf("%s-%d", o.newID(), i),
			filename:    fmt.Sprintf("%s-generated-%d.%s", r.item.Key.Name, i+1, format),
			description: img.Prompt,
			license:     generatedLicense(img.Model),
			generated:   true,
			fetch: func(context.Context) ([]byte, error) {
				return data, nil
			},
		})
	}
	return nil
}
