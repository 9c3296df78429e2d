package outbound

import (
	"context"

	"docmender/internal/domain/entity"
)

// CorrectionRequest is one attempt to have the external generative model fix
// a document, bounded by a token budget.
type CorrectionRequest struct {
	Document         entity.Document
	ValidationErrors []entity.ValidationError
	TokenBudget      int
}

// CorrectionResponse is the raw outcome of one corrector call. Truncated
// means the model stopped because it hit the token budget; that is not a
// failure of the call, only a signal to the engine that the budget was too
// small. RawText is the model output before any fence stripping or parsing.
type CorrectionResponse struct {
	RawText   string
	Truncated bool
}

// DocumentCorrector is the boundary to the external generative model. An
// error return means the call itself failed (transport, refusal, malformed
// provider response); truncation is reported in-band on the response.
type DocumentCorrector interface {
	Correct(ctx context.Context, req CorrectionRequest) (CorrectionResponse, error)
}
