// Package server provides the HTTP API of the clip service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// VideoURL is one entry of a batch request.
type VideoURL struct {
	// URL is the public page or object URL of the video.
	URL string `json:"url" validate:"required"`
	// Platform is one of tiktok, youtube, douyin, gcs (or s3, object-store),
	// matched exactly. Unknown or missing platforms are accepted and reported
	// as failed items.
	Platform string `json:"platform"`
}

// ProcessBatchRequest is the HTTP request body for processing a batch.
type ProcessBatchRequest struct {
	// URLs are the videos to process, in order.
	URLs []VideoURL `json:"urls" validate:"required,dive"`
	// SheetName labels the batch, e.g. the spreadsheet tab it came from.
	SheetName string `json:"sheet_name"`
}

// ItemResponse is the outcome of one URL. Absent values render as null.
type ItemResponse struct {
	OriginalURL string  `json:"original_url"`
	VideoURL    *string `json:"video_url"`
	GIFURL      *string `json:"gif_url"`
	Status      string  `json:"status"`
	Error       *string `json:"error"`
}

// ProcessBatchResponse is the HTTP response for a processed batch.
type ProcessBatchResponse struct {
	TaskID         string         `json:"task_id"`
	Results        []ItemResponse `json:"results"`
	TotalProcessed int            `json:"total_processed"`
	Successful     int            `json:"successful"`
	Failed         int            `json:"failed"`
}

// StatusResponse is the HTTP response for a batch status query.
type StatusResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
