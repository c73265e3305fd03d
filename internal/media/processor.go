// Package media provides video-to-clip transcoding.
package media

import "context"

// ClipOpts configures clip generation.
type ClipOpts struct {
	// MaxDuration is the longest clip, in seconds. Longer sources are
	// truncated to [0, MaxDuration].
	MaxDuration float64
	// FPS is the output frame rate.
	FPS int
}

// DefaultClipOpts returns a 2 second, 3 fps clip configuration.
func DefaultClipOpts() ClipOpts {
	return ClipOpts{
		MaxDuration: 2,
		FPS:         3,
	}
}

// Transcoder turns a local video file into a short looping animated clip.
type Transcoder interface {
	// MakeClip reads the video at src and writes a looping GIF to dst.
	MakeClip(ctx context.Context, src, dst string, opts ClipOpts) error
}
