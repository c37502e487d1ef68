package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/webharvest/go-harvester/internal/common/dedup"
	"github.com/webharvest/go-harvester/internal/common/extractor"
	"github.com/webharvest/go-harvester/internal/common/fetcher"
	"github.com/webharvest/go-harvester/internal/common/normalizer"
	"github.com/webharvest/go-harvester/internal/domain"
)

// URLError records a per-target failure. The run continues past it.
type URLError struct {
	URL string
	Err error
}

func (e URLError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e URLError) Unwrap() error { return e.Err }

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithDedup wires a seen-URL tracker; already-harvested targets are
// skipped.
func WithDedup(d *dedup.Deduplicator) Option {
	return func(p *Pipeline) { p.dedup = d }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = logger }
}

// Pipeline composes fetch, extract and normalize per target URL and
// aggregates canonical records into one batch.
type Pipeline struct {
	fetcher  *fetcher.Fetcher
	rules    domain.RuleSet
	compiled *extractor.Compiled
	norm     *normalizer.Normalizer
	dedup    *dedup.Deduplicator
	log      zerolog.Logger
}

// New builds a pipeline. Rule compilation happens here so a malformed
// selector or empty rule set aborts before any fetching starts.
func New(f *fetcher.Fetcher, rules domain.RuleSet, opts ...Option) (*Pipeline, error) {
	compiled, err := extractor.Compile(rules)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		fetcher:  f,
		rules:    rules,
		compiled: compiled,
		norm:     normalizer.NewNormalizer(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run processes URLs sequentially in declared order. Per-URL failures
// are recorded and the run continues; the batch always holds whatever
// records were produced. Cancellation stops new fetches and returns
// accumulated results with the context error.
func (p *Pipeline) Run(ctx context.Context, urls []string) (*domain.Batch, []URLError, error) {
	if len(urls) == 0 {
		return nil, nil, errors.New("no target urls")
	}

	batch := &domain.Batch{Fields: p.rules.FieldNames()}
	var failures []URLError

	for _, target := range urls {
		if err := ctx.Err(); err != nil {
			return batch, failures, err
		}

		if p.dedup != nil {
			seen, err := p.dedup.Seen(ctx, target)
			if err != nil {
				p.log.Warn().Err(err).Str("url", target).Msg("dedup check failed")
			} else if seen {
				p.log.Debug().Str("url", target).Msg("already harvested, skipping")
				continue
			}
		}

		res, err := p.fetcher.Fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return batch, failures, ctx.Err()
			}
			p.log.Warn().Err(err).Str("url", target).Msg("fetch failed")
			failures = append(failures, URLError{URL: target, Err: err})
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
		if err != nil {
			p.log.Warn().Err(err).Str("url", target).Msg("parse failed")
			failures = append(failures, URLError{URL: target, Err: fmt.Errorf("parse document: %w", err)})
			continue
		}

		raws := p.compiled.Extract(doc, target)
		for _, raw := range raws {
			batch.Append(p.norm.Normalize(raw, p.rules))
		}
		p.log.Info().Str("url", target).Int("records", len(raws)).
			Int("attempts", res.Attempts).Msg("harvested")

		if p.dedup != nil {
			if err := p.dedup.MarkSeen(ctx, target); err != nil {
				p.log.Warn().Err(err).Str("url", target).Msg("dedup mark failed")
			}
		}
	}

	return batch, failures, nil
}
