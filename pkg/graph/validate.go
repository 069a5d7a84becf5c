package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/ratelimit"
)

// DefaultValidationScore is assigned to every relation when the validator
// cannot be reached; with it the threshold is skipped entirely so degraded
// validation never drops data.
const DefaultValidationScore = 0.5

// DefaultValidationThreshold drops relations the validator scores below it.
const DefaultValidationThreshold = 0.7

type validationVerdict struct {
	Index      int     `json:"index" jsonschema_description:"Index of the candidate relation being scored"`
	Confidence float64 `json:"confidence" jsonschema_description:"How well the passage supports the relation, 0.0 to 1.0"`
	Reason     string  `json:"reason" jsonschema_description:"One-sentence justification for the score"`
}

type validationResponse struct {
	Verdicts []validationVerdict `json:"verdicts" jsonschema_description:"One verdict per candidate, in any order"`
}

// ValidateStats reports validator outcomes for run counters.
type ValidateStats struct {
	Scored   int
	Dropped  int
	Degraded bool
	Retries  int
}

// Validator runs the optional second-pass scoring of extracted relations.
// Relations scoring below Threshold are dropped; a validator outage degrades
// to keeping everything at the default score.
type Validator struct {
	LLM      ai.LLM
	Limiter  *ratelimit.Registry
	Backoff  *ratelimit.BackoffPolicy
	Provider string

	Model     string
	Threshold float64
	Deadline  time.Duration
}

// Validate scores the relations against their source chunk texts and returns
// the surviving set. Dropped relations are metrics, never run failures.
func (v *Validator) Validate(
	ctx context.Context,
	relations []model.Relation,
	entityName func(uuid.UUID) string,
	chunkText func(uuid.UUID) string,
) ([]model.Relation, ValidateStats, error) {
	stats := ValidateStats{Scored: len(relations)}
	if len(relations) == 0 {
		return relations, stats, nil
	}

	threshold := v.Threshold
	if threshold <= 0 {
		threshold = DefaultValidationThreshold
	}

	scores, retries, err := v.score(ctx, relations, entityName, chunkText)
	stats.Retries = retries
	if err != nil {
		if errs.KindOf(err) == errs.KindCancelled {
			return nil, stats, err
		}
		// degrade: keep everything at the default score, skip the threshold
		logger.Warn("[Validate] Validator unavailable, keeping all relations", "count", len(relations), "err", err)
		stats.Degraded = true
		kept := make([]model.Relation, len(relations))
		for i, rel := range relations {
			rel.Confidence = DefaultValidationScore
			kept[i] = rel
		}
		return kept, stats, nil
	}

	kept := make([]model.Relation, 0, len(relations))
	for i, rel := range relations {
		score, ok := scores[i]
		if !ok {
			score = DefaultValidationScore
		}
		rel.Confidence = score
		if score < threshold {
			stats.Dropped++
			continue
		}
		kept = append(kept, rel)
	}
	logger.Debug("[Validate] Relations scored", "in", len(relations), "kept", len(kept), "threshold", threshold)
	return kept, stats, nil
}

func (v *Validator) score(
	ctx context.Context,
	relations []model.Relation,
	entityName func(uuid.UUID) string,
	chunkText func(uuid.UUID) string,
) (map[int]float64, int, error) {
	if v.LLM == nil {
		return nil, 0, fmt.Errorf("no validation model configured")
	}

	var listing strings.Builder
	for i, rel := range relations {
		snippet := chunkText(rel.SourceChunk)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		fmt.Fprintf(&listing, "[%d] %s --%s--> %s (source: %s)\n",
			i, entityName(rel.SourceID), rel.Type, entityName(rel.TargetID), snippet)
	}

	deadline := v.Deadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}

	var res validationResponse
	call := func(ctx context.Context) error {
		if v.Limiter != nil {
			if err := v.Limiter.Acquire(ctx, v.Provider, "chat"); err != nil {
				return err
			}
		}
		opts := []ai.GenerateOption{
			ai.WithSystemPrompts(fmt.Sprintf(ai.ValidatePrompt, listing.String())),
			ai.WithTemperature(0),
			ai.WithDeadline(deadline),
		}
		if v.Model != "" {
			opts = append(opts, ai.WithModel(v.Model))
		}
		return v.LLM.StructuredComplete(
			ctx,
			"validate_relations",
			"Score candidate knowledge-graph relations against their source passages.",
			"Score every candidate relation listed in the system prompt.",
			&res,
			opts...,
		)
	}

	backoff := v.Backoff
	if backoff == nil {
		backoff = ratelimit.DefaultBackoff()
	}
	retries, err := backoff.Do(ctx, "validate", call)
	if err != nil {
		return nil, retries, err
	}

	scores := make(map[int]float64, len(res.Verdicts))
	for _, verdict := range res.Verdicts {
		if verdict.Index < 0 || verdict.Index >= len(relations) {
			continue
		}
		scores[verdict.Index] = clamp01(verdict.Confidence)
	}
	return scores, retries, nil
}
