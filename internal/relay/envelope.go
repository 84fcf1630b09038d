// Package relay moves classification requests from the discovery context to
// an inference context and brings exactly one reply back for each.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// Target addresses an execution context.
type Target string

// TargetInference is the context that owns the model.
const TargetInference Target = "inference"

// MessageType discriminates request payloads.
type MessageType string

// TypeClassify asks for a classification of Request.Text.
const TypeClassify MessageType = "classify"

// Envelope errors.
var (
	ErrUnroutable       = errors.New("envelope not addressed to this context")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMalformed        = errors.New("malformed response envelope")
	ErrCorrelation      = errors.New("response does not match request")
	errUnexpectedStatus = errors.New("unexpected HTTP status")
)

// Request is sent to an inference context.
type Request struct {
	ID     string      `json:"id"`
	Target Target      `json:"target"`
	Type   MessageType `json:"type"`
	Text   string      `json:"text"`
}

// NewClassifyRequest builds a classify request for the inference context.
func NewClassifyRequest(id, text string) Request {
	return Request{ID: id, Target: TargetInference, Type: TypeClassify, Text: text}
}

// Validate checks the addressing of an inbound request.
func (r Request) Validate() error {
	if r.Target != TargetInference {
		return fmt.Errorf("%w: %q", ErrUnroutable, r.Target)
	}
	if r.Type != TypeClassify {
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	return nil
}

// Response answers one Request: either Result or Error is set.
type Response struct {
	ID     string
	Result *domain.ClassificationResult
	Error  string
	// Kind names the failure kind when Error is set, so the discovery side
	// can rebuild the sentinel.
	Kind string
}

// ResultResponse answers req with a classification.
func ResultResponse(id string, result domain.ClassificationResult) Response {
	return Response{ID: id, Result: &result}
}

// ErrorResponse answers req with a failure payload.
func ErrorResponse(id string, err error) Response {
	return Response{ID: id, Error: err.Error(), Kind: kindCode(domain.Kind(err))}
}

// Outcome converts the envelope back into a result or a typed error.
func (r Response) Outcome() (domain.ClassificationResult, error) {
	if r.Error != "" {
		kind := kindFromCode(r.Kind)
		if kind == nil {
			kind = domain.ErrInferenceFailed
		}
		return domain.ClassificationResult{}, fmt.Errorf("%w: %s", kind, r.Error)
	}
	if r.Result == nil {
		return domain.ClassificationResult{}, fmt.Errorf("%w: %w", domain.ErrTransportFailed, ErrMalformed)
	}
	return *r.Result, nil
}

type resultWire struct {
	ID         string              `json:"id,omitempty"`
	Label      domain.Label        `json:"label"`
	Score      float64             `json:"score"`
	RawRanking []domain.LabelScore `json:"rawRanking"`
}

type errorWire struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type unionWire struct {
	ID         string              `json:"id"`
	Label      domain.Label        `json:"label"`
	Score      *float64            `json:"score"`
	RawRanking []domain.LabelScore `json:"rawRanking"`
	Error      string              `json:"error"`
	Kind       string              `json:"kind"`
}

// MarshalJSON writes {label, score, rawRanking} or {error}.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != "" || r.Result == nil {
		msg := r.Error
		if msg == "" {
			msg = ErrMalformed.Error()
		}
		return json.Marshal(errorWire{ID: r.ID, Error: msg, Kind: r.Kind})
	}

	ranking := r.Result.RawRanking
	if ranking == nil {
		ranking = []domain.LabelScore{}
	}
	return json.Marshal(resultWire{
		ID:         r.ID,
		Label:      r.Result.Label,
		Score:      r.Result.Score,
		RawRanking: ranking,
	})
}

// UnmarshalJSON accepts either response shape.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w unionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	*r = Response{ID: w.ID}
	switch {
	case w.Error != "":
		r.Error = w.Error
		r.Kind = w.Kind
	case w.Label != "" && w.Score != nil:
		r.Result = &domain.ClassificationResult{Label: w.Label, Score: *w.Score, RawRanking: w.RawRanking}
	default:
		return ErrMalformed
	}
	return nil
}

var kindCodes = []struct {
	kind error
	code string
}{
	{domain.ErrModelLoadFailed, "model_load_failed"},
	{domain.ErrInferenceFailed, "inference_failed"},
	{domain.ErrContextUnavailable, "context_unavailable"},
	{domain.ErrTransportFailed, "transport_failed"},
}

func kindCode(kind error) string {
	for _, k := range kindCodes {
		if k.kind == kind {
			return k.code
		}
	}
	return ""
}

func kindFromCode(code string) error {
	for _, k := range kindCodes {
		if k.code == code {
			return k.kind
		}
	}
	return nil
}
