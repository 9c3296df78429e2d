package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"docmender/internal/application/common/logging"
	"docmender/internal/application/common/slogger"
	"docmender/internal/domain/entity"
	domainerrors "docmender/internal/domain/errors/domain"
	"docmender/internal/port/outbound"
)

// CorrectionEngine drives one correction through the token budget
// escalation ladder. Budget escalation is synchronous and internal: a
// truncated attempt immediately retries on the next rung, invisible to the
// queue-level delivery retry, which has its own independent exit condition.
type CorrectionEngine struct {
	corrector outbound.DocumentCorrector
	budgets   []int
	logger    logging.ApplicationLogger
}

// NewCorrectionEngine creates an engine over an ascending budget ladder.
func NewCorrectionEngine(corrector outbound.DocumentCorrector, budgets []int) (*CorrectionEngine, error) {
	if corrector == nil {
		return nil, errors.New("corrector cannot be nil")
	}
	if len(budgets) == 0 {
		return nil, errors.New("budget ladder cannot be empty")
	}
	previous := 0
	for i, budget := range budgets {
		if budget <= previous {
			return nil, fmt.Errorf("budget ladder must be strictly ascending, got %d at position %d", budget, i)
		}
		previous = budget
	}

	ladder := make([]int, len(budgets))
	copy(ladder, budgets)

	return &CorrectionEngine{
		corrector: corrector,
		budgets:   ladder,
		logger:    slogger.WithComponent("correction-engine"),
	}, nil
}

// Correct asks the external corrector to fix the document, escalating the
// token budget on truncation up to the top of the ladder. Non-truncation
// failures abort immediately: more budget cannot fix a refusal or an
// unparseable response. On success the returned document's id is
// overwritten with the input's id unconditionally, whatever the corrector
// returned.
func (e *CorrectionEngine) Correct(
	ctx context.Context,
	doc entity.Document,
	validationErrors []entity.ValidationError,
) (entity.Document, error) {
	start := time.Now()

	for attempt, budget := range e.budgets {
		resp, err := e.corrector.Correct(ctx, outbound.CorrectionRequest{
			Document:         doc,
			ValidationErrors: validationErrors,
			TokenBudget:      budget,
		})
		if err != nil {
			return entity.Document{}, err
		}

		if resp.Truncated {
			if attempt == len(e.budgets)-1 {
				return entity.Document{}, domainerrors.TruncationExhaustedError(e.budgets)
			}
			e.logger.Debug(ctx, "Correction truncated, escalating budget", logging.Fields{
				"document_id": doc.DocumentID,
				"budget":      budget,
				"next_budget": e.budgets[attempt+1],
			})
			continue
		}

		// Each rung's response is parsed independently; a parse failure is
		// an upstream failure for that rung, never a reason to escalate.
		payload, parseErr := parseCorrectedPayload(resp.RawText)
		if parseErr != nil {
			return entity.Document{}, domainerrors.UpstreamError("unparseable correction output", parseErr)
		}

		// Identity restoration: the corrected document is keyed on the
		// input's id, whatever id the corrector emitted. A corrected
		// payload stored under the wrong id silently destroys data.
		corrected, buildErr := entity.NewDocument(doc.DocumentID, payload)
		if buildErr != nil {
			return entity.Document{}, domainerrors.UpstreamError("invalid corrected document", buildErr)
		}
		if corrected.DocumentID != doc.DocumentID {
			return entity.Document{}, domainerrors.IdentityViolationError(doc.DocumentID, corrected.DocumentID)
		}

		e.logger.LogPerformance(ctx, "document correction", time.Since(start), logging.Fields{
			"document_id": doc.DocumentID,
			"budget":      budget,
			"attempts":    attempt + 1,
		})
		return corrected, nil
	}

	return entity.Document{}, domainerrors.TruncationExhaustedError(e.budgets)
}

// parseCorrectedPayload decodes the corrector's raw output into the field
// map, stripping surrounding code fences first. The id field in the output
// is not trusted and is discarded; the caller restores identity.
func parseCorrectedPayload(rawText string) (map[string]any, error) {
	cleaned := stripCodeFences(rawText)
	if strings.TrimSpace(cleaned) == "" {
		return nil, errors.New("empty correction output")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, leaving the body untouched.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		firstLine := strings.TrimSpace(trimmed[:newline])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{[") {
			trimmed = trimmed[newline+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
