package batch

import (
	"encoding/json"

	"github.com/maauso/clipgrab/internal/acquire"
)

// VideoRequest is one URL of a batch.
type VideoRequest struct {
	URL      string           `json:"url" yaml:"url"`
	Platform acquire.Platform `json:"platform" yaml:"platform"`
}

// ItemStatus is the outcome of one item.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
)

// ItemResult is the outcome of one VideoRequest. Build it with succeeded or
// failed so Status always agrees with the URL and Error fields.
type ItemResult struct {
	OriginalURL    string     `json:"original_url"`
	StoredVideoURL string     `json:"video_url,omitempty"`
	StoredClipURL  string     `json:"gif_url,omitempty"`
	Status         ItemStatus `json:"status"`
	Error          string     `json:"error,omitempty"`
}

func succeeded(originalURL, videoURL, clipURL string) ItemResult {
	return ItemResult{
		OriginalURL:    originalURL,
		StoredVideoURL: videoURL,
		StoredClipURL:  clipURL,
		Status:         ItemSuccess,
	}
}

func failed(originalURL, msg string) ItemResult {
	if msg == "" {
		msg = "unknown error"
	}
	return ItemResult{
		OriginalURL: originalURL,
		Status:      ItemFailed,
		Error:       msg,
	}
}

// OK reports whether the item succeeded.
func (r ItemResult) OK() bool {
	return r.Status == ItemSuccess
}

// BatchResult is the report of one ProcessBatch call. Results has one
// entry per submitted item, in submission order.
type BatchResult struct {
	TaskID  string
	Results []ItemResult
}

// TotalProcessed returns the number of items in the batch.
func (r BatchResult) TotalProcessed() int {
	return len(r.Results)
}

// Successful returns the number of succeeded items.
func (r BatchResult) Successful() int {
	n := 0
	for _, item := range r.Results {
		if item.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed items.
func (r BatchResult) Failed() int {
	return r.TotalProcessed() - r.Successful()
}

// MarshalJSON renders the report with its derived counts.
func (r BatchResult) MarshalJSON() ([]byte, error) {
	results := r.Results
	if results == nil {
		results = []ItemResult{}
	}
	return json.Marshal(struct {
		TaskID         string       `json:"task_id"`
		Results        []ItemResult `json:"results"`
		TotalProcessed int          `json:"total_processed"`
		Successful     int          `json:"successful"`
		Failed         int          `json:"failed"`
	}{
		TaskID:         r.TaskID,
		Results:        results,
		TotalProcessed: r.TotalProcessed(),
		Successful:     r.Successful(),
		Failed:         r.Failed(),
	})
}

// UnsupportedPlatformError is reported for items whose platform tag has no
// registered strategy.
type UnsupportedPlatformError struct {
	Platform acquire.Platform
}

func (e *UnsupportedPlatformError) Error() string {
	return "Unsupported platform: " + string(e.Platform)
}
