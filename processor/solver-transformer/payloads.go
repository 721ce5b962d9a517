package solvertransformer

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/semstreams/message"
)

// TransformRequestType is the message type for transform requests.
var TransformRequestType = message.Type{Domain: "solver", Category: "transform-request", Version: "v1"}

// TransformResultType is the message type for transform results.
var TransformResultType = message.Type{Domain: "solver", Category: "transform-result", Version: "v1"}

// Result statuses.
const (
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
	StatusAbandoned  = "abandoned"
	StatusFailed     = "failed"
)

// Error kinds reported in TransformResult.ErrorKind.
const (
	ErrorKindTransport  = "STREAM_TRANSPORT_ERROR"
	ErrorKindIncomplete = "INCOMPLETE_DESCRIPTOR"
	ErrorKindBackend    = "BACKEND_ERROR"
	ErrorKindSource     = "SOURCE_ERROR"
	ErrorKindStore      = "STORE_ERROR"
)

// TransformRequest asks for one solver source to be restructured.
type TransformRequest struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name,omitempty"`
	Path      string `json:"path,omitempty"`
	Code      string `json:"code"`

	// Description is the problem statement sent with the code.
	Description string `json:"description,omitempty"`
	// DescriptionURL is fetched when Description is empty.
	DescriptionURL string `json:"description_url,omitempty"`
}

// Schema implements message.Payload.
func (r *TransformRequest) Schema() message.Type {
	return TransformRequestType
}

// Validate implements message.Payload.
func (r *TransformRequest) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *TransformRequest) MarshalJSON() ([]byte, error) {
	type Alias TransformRequest
	return json.Marshal((*Alias)(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TransformRequest) UnmarshalJSON(data []byte) error {
	type Alias TransformRequest
	return json.Unmarshal(data, (*Alias)(r))
}

// TransformResult reports the outcome of one request.
type TransformResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`

	Analysis     string `json:"analysis,omitempty"`
	Code         string `json:"code,omitempty"`
	Verification string `json:"verification,omitempty"`

	// DescriptorID is set once the descriptor has been stored.
	DescriptorID string `json:"descriptor_id,omitempty"`
	// Missing lists descriptor fields that could not be filled.
	Missing []string `json:"missing,omitempty"`

	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Schema implements message.Payload.
func (r *TransformResult) Schema() message.Type {
	return TransformResultType
}

// Validate implements message.Payload.
func (r *TransformResult) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *TransformResult) MarshalJSON() ([]byte, error) {
	type Alias TransformResult
	return json.Marshal((*Alias)(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TransformResult) UnmarshalJSON(data []byte) error {
	type Alias TransformResult
	return json.Unmarshal(data, (*Alias)(r))
}

func (r *TransformResult) fail(kind string, err error) *TransformResult {
	r.Status = StatusFailed
	r.ErrorKind = kind
	r.Error = err.Error()
	return r
}
