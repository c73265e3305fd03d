package acquire

import "context"

// Direct handles URLs that already point at a downloadable object.
type Direct struct{}

// NewDirectStrategy returns the strategy for object-store URLs.
func NewDirectStrategy() *Direct {
	return &Direct{}
}

// Acquire returns url unchanged as the source URL.
func (*Direct) Acquire(_ context.Context, url string) (Result, error) {
	return Result{SourceURL: url}, nil
}
