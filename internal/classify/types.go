package classify

// Label is the classification verdict for a piece of content.
// Unknown labels from the remote service are passed through unchanged.
type Label string

const (
	LabelAllow Label = "allow"
	LabelBlock Label = "block"
)

// Result is the outcome of classifying a single item.
// FailedOpen marks results synthesized locally after the transport
// exhausted its attempts; such results always carry confidence 0.
type Result struct {
	Fingerprint string  `json:"fingerprint"`
	Label       Label   `json:"label"`
	Confidence  float64 `json:"confidence"`
	FailedOpen  bool    `json:"failedOpen"`
}

// DefaultResult returns the fallback verdict for an item the response
// left unmapped. Not a failure marker.
func DefaultResult(fingerprint string) Result {
	return Result{
		Fingerprint: fingerprint,
		Label:       LabelAllow,
	}
}

// FailOpenResult returns the degraded-mode result used when the
// classifier could not be reached at all.
func FailOpenResult(fingerprint string) Result {
	return Result{
		Fingerprint: fingerprint,
		Label:       LabelAllow,
		FailedOpen:  true,
	}
}

// Post is a single item in an outbound batch payload.
type Post struct {
	Hash    string `json:"hash"`
	Content string `json:"content"`
}

// BatchPayload is the request body sent to the classifier endpoint.
// Post order is preserved so positional responses can be aligned.
type BatchPayload struct {
	Posts     []Post `json:"posts"`
	Timestamp int64  `json:"timestamp"`
}

// Entry is one classification in a remote response, before
// normalization. Missing fields default to allow / 0.
type Entry struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ToResult normalizes an entry into a Result for the given fingerprint.
func (e Entry) ToResult(fingerprint string) Result {
	label := e.Label
	if label == "" {
		label = LabelAllow
	}
	return Result{
		Fingerprint: fingerprint,
		Label:       label,
		Confidence:  e.Confidence,
	}
}
