package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docmender/internal/application/common/slogger"
	"docmender/internal/domain/entity"
	domainerrors "docmender/internal/domain/errors/domain"
	"docmender/internal/port/outbound"
)

const (
	finishReasonStop      = "STOP"
	finishReasonMaxTokens = "MAX_TOKENS"

	// Error body reads are capped so a misbehaving server cannot balloon
	// memory.
	maxErrorBodyBytes = 64 * 1024
)

// generateContentRequest is the generateContent wire request.
type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

// generateContentResponse is the generateContent wire response.
type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Correct sends one correction attempt to the model, bounded by the token
// budget on the request. A MAX_TOKENS finish is reported in-band as
// Truncated, never as an error; the caller decides whether to escalate.
func (c *Client) Correct(
	ctx context.Context,
	req outbound.CorrectionRequest,
) (outbound.CorrectionResponse, error) {
	prompt := buildCorrectionPrompt(req.Document, req.ValidationErrors)

	wireReq := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: &generationConfig{
			MaxOutputTokens:  req.TokenBudget,
			Temperature:      0,
			ResponseMIMEType: "application/json",
		},
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return outbound.CorrectionResponse{}, domainerrors.UpstreamError("failed to encode request", err)
	}

	endpoint := fmt.Sprintf("models/%s:generateContent", c.config.Model)
	httpReq, err := c.createRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return outbound.CorrectionResponse{}, domainerrors.UpstreamError("failed to build request", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return outbound.CorrectionResponse{}, domainerrors.TransportError("corrector call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return outbound.CorrectionResponse{}, classifyHTTPError(resp)
	}

	var wireResp generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return outbound.CorrectionResponse{}, domainerrors.UpstreamError("unparseable response body", err)
	}
	if wireResp.Error != nil {
		return outbound.CorrectionResponse{}, domainerrors.UpstreamError(
			fmt.Sprintf("API error %d (%s): %s", wireResp.Error.Code, wireResp.Error.Status, wireResp.Error.Message),
			nil,
		)
	}
	if len(wireResp.Candidates) == 0 {
		return outbound.CorrectionResponse{}, domainerrors.UpstreamError("response contained no candidates", nil)
	}

	result := wireResp.Candidates[0]
	text := collectText(result.Content)

	truncated := result.FinishReason == finishReasonMaxTokens
	if !truncated && result.FinishReason != finishReasonStop && result.FinishReason != "" {
		return outbound.CorrectionResponse{}, domainerrors.UpstreamError(
			"generation refused with finish reason "+result.FinishReason, nil)
	}

	slogger.Performance(ctx, "gemini correction call", time.Since(start), slogger.Fields{
		"document_id":   req.Document.DocumentID,
		"token_budget":  req.TokenBudget,
		"truncated":     truncated,
		"finish_reason": result.FinishReason,
	})

	return outbound.CorrectionResponse{RawText: text, Truncated: truncated}, nil
}

func collectText(c content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// classifyHTTPError maps a non-200 response onto the pipeline error
// taxonomy. Rate limits and server errors are transport-class so the queue
// retries them; everything else is an upstream refusal.
func classifyHTTPError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	detail := fmt.Sprintf("HTTP %d", resp.StatusCode)
	var wireResp generateContentResponse
	if json.Unmarshal(bodyBytes, &wireResp) == nil && wireResp.Error != nil {
		detail = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, wireResp.Error.Message)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return domainerrors.TransportError("corrector call", errors.New(detail))
	default:
		return domainerrors.UpstreamError("corrector refused the request: "+detail, nil)
	}
}

// buildCorrectionPrompt renders the document, its violations, and the
// output contract into a single instruction block.
func buildCorrectionPrompt(doc entity.Document, validationErrors []entity.ValidationError) string {
	raw, err := json.MarshalIndent(doc.ToRaw(), "", "  ")
	if err != nil {
		raw = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("You are a data repair assistant. The JSON document below failed schema validation.\n")
	b.WriteString("Fix every listed violation and return the complete corrected document.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Return only the corrected JSON object, no commentary.\n")
	b.WriteString("- Keep every field that is already valid unchanged.\n")
	b.WriteString("- Never change the document_id field.\n\n")
	b.WriteString("Validation errors:\n")
	for _, ve := range validationErrors {
		fmt.Fprintf(&b, "- %s: %s\n", ve.Field, ve.Message)
	}
	b.WriteString("\nDocument:\n")
	b.Write(raw)
	b.WriteString("\n")
	return b.String()
}
