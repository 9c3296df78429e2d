package service

import (
	"context"
	"sync"
	"testing"

	"docmender/internal/domain/entity"
	domainerrors "docmender/internal/domain/errors/domain"
	"docmender/internal/port/outbound"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCorrector replays scripted responses and records the budget of every
// call.
type stubCorrector struct {
	mu        sync.Mutex
	responses []stubResponse
	budgets   []int
}

type stubResponse struct {
	resp outbound.CorrectionResponse
	err  error
}

func (s *stubCorrector) Correct(
	_ context.Context,
	req outbound.CorrectionRequest,
) (outbound.CorrectionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budgets = append(s.budgets, req.TokenBudget)
	if len(s.responses) == 0 {
		return outbound.CorrectionResponse{}, domainerrors.UpstreamError("stub exhausted", nil)
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next.resp, next.err
}

func success(rawText string) stubResponse {
	return stubResponse{resp: outbound.CorrectionResponse{RawText: rawText}}
}

func truncated() stubResponse {
	return stubResponse{resp: outbound.CorrectionResponse{Truncated: true}}
}

func failure(err error) stubResponse {
	return stubResponse{err: err}
}

func engineDocument(t *testing.T) entity.Document {
	t.Helper()
	doc, err := entity.NewDocument("doc-7", map[string]any{"amount": "broken"})
	require.NoError(t, err)
	return doc
}

func engineErrors() []entity.ValidationError {
	return []entity.ValidationError{{Field: "amount", Message: "must be a number"}}
}

func TestNewCorrectionEngine_Validation(t *testing.T) {
	corrector := &stubCorrector{}

	tests := []struct {
		name      string
		corrector outbound.DocumentCorrector
		budgets   []int
	}{
		{"nil corrector", nil, []int{100}},
		{"empty ladder", corrector, nil},
		{"descending ladder", corrector, []int{200, 100}},
		{"duplicate rung", corrector, []int{100, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCorrectionEngine(tt.corrector, tt.budgets)
			require.Error(t, err)
		})
	}
}

func TestCorrect_SuccessOnFirstRung(t *testing.T) {
	corrector := &stubCorrector{responses: []stubResponse{
		success(`{"document_id":"doc-7","amount":42}`),
	}}
	engine, err := NewCorrectionEngine(corrector, []int{100, 200, 400})
	require.NoError(t, err)

	doc, err := engine.Correct(context.Background(), engineDocument(t), engineErrors())
	require.NoError(t, err)

	assert.Equal(t, "doc-7", doc.DocumentID)
	amount, ok := doc.Field("amount")
	require.True(t, ok)
	assert.EqualValues(t, 42, amount)
	assert.Equal(t, []int{100}, corrector.budgets)
}

// Truncated on the first two rungs, success on the third: exactly three
// calls, each with the next budget, and a successful result.
func TestCorrect_EscalatesBudgetOnTruncation(t *testing.T) {
	corrector := &stubCorrector{responses: []stubResponse{
		truncated(),
		truncated(),
		success(`{"document_id":"doc-7","amount":42}`),
	}}
	engine, err := NewCorrectionEngine(corrector, []int{100, 200, 400})
	require.NoError(t, err)

	doc, err := engine.Correct(context.Background(), engineDocument(t), engineErrors())
	require.NoError(t, err)

	assert.Equal(t, "doc-7", doc.DocumentID)
	assert.Equal(t, []int{100, 200, 400}, corrector.budgets)
}

func TestCorrect_TruncationOnLastRungFails(t *testing.T) {
	corrector := &stubCorrector{responses: []stubResponse{
		truncated(), truncated(), truncated(),
	}}
	engine, err := NewCorrectionEngine(corrector, []int{100, 200, 400})
	require.NoError(t, err)

	_, err = engine.Correct(context.Background(), engineDocument(t), engineErrors())
	require.ErrorIs(t, err, domainerrors.ErrTruncationExhausted)
	assert.Equal(t, []int{100, 200, 400}, corrector.budgets)
}

// Non-truncation failures abort immediately; the remaining rungs are never
// tried because more budget cannot fix a refusal.
func TestCorrect_UpstreamFailureDoesNotEscalate(t *testing.T) {
	corrector := &stubCorrector{responses: []stubResponse{
		failure(domainerrors.UpstreamError("refused", nil)),
	}}
	engine, err := NewCorrectionEngine(corrector, []int{100, 200, 400})
	require.NoError(t, err)

	_, err = engine.Correct(context.Background(), engineDocument(t), engineErrors())
	require.ErrorIs(t, err, domainerrors.ErrUpstream)
	assert.Equal(t, []int{100}, corrector.budgets)
}

func TestCorrect_ParseFailureIsUpstreamNotTruncation(t *testing.T) {
	corrector := &stubCorrector{responses: []stubResponse{
		success("this is not json at all"),
	}}
	engine, err := NewCorrectionEngine(corrector, []int{100, 200})
	require.NoError(t, err)

	_, err = engine.Correct(context.Background(), engineDocument(t), engineErrors())
	require.ErrorIs(t, err, domainerrors.ErrUpstream)
	assert.Equal(t, []int{100}, corrector.budgets, "parse failure must not escalate")
}

// Identity restoration: whatever id the corrector returns, the output is
// keyed on the input's id.
func TestCorrect_RestoresIdentity(t *testing.T) {
	tests := []struct {
		name    string
		rawText string
	}{
		{"different id", `{"document_id":"doc-WRONG","amount":42}`},
		{"missing id", `{"amount":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrector := &stubCorrector{responses: []stubResponse{success(tt.rawText)}}
			engine, err := NewCorrectionEngine(corrector, []int{100})
			require.NoError(t, err)

			doc, err := engine.Correct(context.Background(), engineDocument(t), engineErrors())
			require.NoError(t, err)
			assert.Equal(t, "doc-7", doc.DocumentID)
			_, hasEmbeddedID := doc.Field("document_id")
			assert.False(t, hasEmbeddedID, "payload must not carry a shadow id field")
		})
	}
}

func TestCorrect_StripsCodeFences(t *testing.T) {
	corrector := &stubCorrector{responses: []stubResponse{
		success("```json\n{\"document_id\":\"doc-7\",\"amount\":42}\n```"),
	}}
	engine, err := NewCorrectionEngine(corrector, []int{100})
	require.NoError(t, err)

	doc, err := engine.Correct(context.Background(), engineDocument(t), engineErrors())
	require.NoError(t, err)
	amount, ok := doc.Field("amount")
	require.True(t, ok)
	assert.EqualValues(t, 42, amount)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"plain fences", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"fence glued to body", "```{\"a\":1}```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.input))
		})
	}
}
