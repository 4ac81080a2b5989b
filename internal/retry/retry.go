// Package retry repairs a generated batch position by position: items that
// are missing or fail validation are regenerated one at a time, up to a fixed
// number of attempts, and dropped when every attempt fails.
package retry

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/vaisu-bhut/GeniQ/internal/generator"
	"github.com/vaisu-bhut/GeniQ/internal/metrics"
	"github.com/vaisu-bhut/GeniQ/internal/monitor"
	"github.com/vaisu-bhut/GeniQ/internal/prompt"
	"github.com/vaisu-bhut/GeniQ/internal/validation"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// DefaultMaxAttempts is the regeneration budget per position.
const DefaultMaxAttempts = 3

// Outcome is the result of repairing one batch.
type Outcome struct {
	Accepted      []models.Item
	Dropped       int
	Regenerations int
	// FirstFailures counts, per column, the positions whose first candidate
	// failed that column.
	FirstFailures map[string]int
}

// Controller runs the regeneration loop. A Controller holds no per-request
// state and may be shared.
type Controller struct {
	gen         contracts.Generator
	validator   *validation.Validator
	maxAttempts int
}

// New creates a Controller. maxAttempts <= 0 uses DefaultMaxAttempts.
func New(gen contracts.Generator, v *validation.Validator, maxAttempts int) *Controller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Controller{gen: gen, validator: v, maxAttempts: maxAttempts}
}

// MaxAttempts returns the per-position regeneration budget.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// Repair walks positions 0..req.Count()-1 in order. Extra batch items are
// ignored. A generator failure aborts with its error; cancellation aborts with
// the context error. Neither returns a partial outcome.
func (c *Controller) Repair(ctx context.Context, req models.GenerationRequest, batch []models.Item, mon *monitor.Monitor) (*Outcome, error) {
	requested := req.Count()
	out := &Outcome{
		Accepted:      make([]models.Item, 0, requested),
		FirstFailures: make(map[string]int),
	}
	single := prompt.Single(req)

	for i := 0; i < requested; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		firstSeen := false
		record := func(v models.Verdict) {
			if firstSeen {
				return
			}
			firstSeen = true
			for _, f := range v.Failures {
				out.FirstFailures[f.Column]++
			}
			if len(v.Failures) == 0 && !v.Valid && v.Column != "" {
				out.FirstFailures[v.Column]++
			}
		}

		if i < len(batch) {
			v := c.validator.Validate(req, batch[i])
			record(v)
			if v.Valid {
				out.Accepted = append(out.Accepted, v.Coerced)
				mon.Log(true)
				continue
			}
			log.Debug().Int("index", i).Str("reason", string(v.Reason)).Str("column", v.Column).Str("detail", v.Detail).
				Msg("Item failed validation, regenerating")
		} else {
			log.Debug().Int("index", i).Str("reason", string(contracts.KindSchemaMismatch)).
				Msg("Item missing from batch, regenerating")
		}

		item, err := c.regenerate(ctx, req, single, i, record, out)
		if err != nil {
			return nil, err
		}
		if item == nil {
			out.Dropped++
			mon.Log(false)
			log.Warn().Int("index", i).Str("reason", string(contracts.KindValidationExhausted)).
				Int("attempts", c.maxAttempts).Msg("Dropping item after exhausting regeneration attempts")
			continue
		}
		out.Accepted = append(out.Accepted, item)
		mon.Log(true)
	}
	return out, nil
}

// regenerate requests single replacements until one passes or the budget is
// spent. It returns nil, nil when the position must be dropped.
func (c *Controller) regenerate(ctx context.Context, req models.GenerationRequest, single string, index int,
	record func(models.Verdict), out *Outcome) (models.Item, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Regenerations++

		raw, err := c.gen.Generate(ctx, single)
		if err != nil {
			metrics.RegenerationsTotal.WithLabelValues("error").Inc()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, contracts.ErrGeneratorUnavailable) {
				return nil, err
			}
			return nil, contracts.NewError(contracts.KindGeneratorUnavailable, "regeneration failed", err)
		}

		items, err := generator.ExtractItems(raw)
		if err != nil || len(items) == 0 {
			metrics.RegenerationsTotal.WithLabelValues("malformed").Inc()
			reason := contracts.KindSchemaMismatch
			if err != nil {
				reason = contracts.KindMalformedGeneratorOutput
			}
			log.Debug().Int("index", index).Int("attempt", attempt).Str("reason", string(reason)).
				Msg("Regeneration returned no usable item")
			continue
		}

		v := c.validator.Validate(req, items[0])
		record(v)
		if v.Valid {
			metrics.RegenerationsTotal.WithLabelValues("accepted").Inc()
			return v.Coerced, nil
		}
		metrics.RegenerationsTotal.WithLabelValues("rejected").Inc()
		log.Debug().Int("index", index).Int("attempt", attempt).Str("reason", string(v.Reason)).
			Str("column", v.Column).Msg("Regenerated item failed validation")
	}
	return nil, nil
}
