package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Static errors for media operations.
var (
	// ErrTranscodeFailed is returned when a clip cannot be produced.
	ErrTranscodeFailed = errors.New("media: transcode failed")
	// ErrInvalidClipOpts is returned when MaxDuration or FPS is not positive.
	ErrInvalidClipOpts = errors.New("media: max duration and fps must be positive")
	// ErrNoDuration is returned when the probe output carries no duration.
	ErrNoDuration = errors.New("media: duration not found in probe output")
	// ErrFFmpegNotInstalled is returned by VerifyInstalled when ffmpeg cannot be run.
	ErrFFmpegNotInstalled = errors.New("media: ffmpeg is not installed or not executable")
	// ErrFFprobeNotInstalled is returned by VerifyInstalled when ffprobe cannot be run.
	ErrFFprobeNotInstalled = errors.New("media: ffprobe is not installed or not executable")
)

// CommandRunner runs an external command and returns its stderr output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string) (stderr string, err error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string) (string, error) {
	// #nosec G204 - name is set by the application, not user input
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

// ProbeFunc returns ffprobe's JSON description of a media file.
type ProbeFunc func(ctx context.Context, path string) (string, error)

// FFmpegProcessor implements Transcoder using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath sits next to ffmpegPath unless set explicitly.
	ffprobePath string
	runner      CommandRunner
	probe       ProbeFunc
}

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithCommandRunner replaces the process runner (for testing).
func WithCommandRunner(r CommandRunner) Option {
	return func(p *FFmpegProcessor) {
		p.runner = r
	}
}

// WithFFprobePath overrides the ffprobe binary derived from the ffmpeg path.
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithProbe replaces the duration probe (for testing).
func WithProbe(fn ProbeFunc) Option {
	return func(p *FFmpegProcessor) {
		p.probe = fn
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobeFor(ffmpegPath),
		runner:      execRunner{},
	}
	p.probe = p.execProbe
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ffprobeFor returns the ffprobe binary that ships beside ffmpegPath:
// "/opt/ff/ffmpeg" gives "/opt/ff/ffprobe", "ffmpeg.exe" gives "ffprobe.exe".
// Unrecognised names fall back to "ffprobe" on PATH.
func ffprobeFor(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	if !strings.HasPrefix(base, "ffmpeg") {
		return "ffprobe"
	}
	return dir + "ffprobe" + strings.TrimPrefix(base, "ffmpeg")
}

// VerifyInstalled checks that ffmpeg and ffprobe can be executed.
func (p *FFmpegProcessor) VerifyInstalled(ctx context.Context) error {
	if _, err := p.runner.Run(ctx, p.ffmpegPath, []string{"-version"}); err != nil {
		return fmt.Errorf("%w: %w", ErrFFmpegNotInstalled, err)
	}
	if _, err := p.runner.Run(ctx, p.ffprobePath, []string{"-version"}); err != nil {
		return fmt.Errorf("%w: %w", ErrFFprobeNotInstalled, err)
	}
	return nil
}

// execProbe runs ffprobe under ctx and returns its JSON output.
func (p *FFmpegProcessor) execProbe(ctx context.Context, path string) (string, error) {
	args := append(ffmpeg.ConvertKwargsToCmdLineArgs(ffmpeg.KwArgs{
		"v":            "error",
		"show_format":  "",
		"show_streams": "",
		"of":           "json",
	}), path)

	// #nosec G204 - binary path comes from configuration
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "ffprobe cancelled")
		}
		return "", &FFmpegError{Args: append([]string{p.ffprobePath}, args...), Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// MakeClip writes a looping GIF of src to dst. Sources longer than
// opts.MaxDuration are cut to [0, MaxDuration] before resampling to opts.FPS.
func (p *FFmpegProcessor) MakeClip(ctx context.Context, src, dst string, opts ClipOpts) error {
	if opts.MaxDuration <= 0 || opts.FPS <= 0 {
		return fmt.Errorf("%w: %w (max=%g, fps=%d)", ErrTranscodeFailed, ErrInvalidClipOpts, opts.MaxDuration, opts.FPS)
	}

	duration, err := p.GetMediaDuration(ctx, src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}

	if err := p.runFFmpeg(ctx, clipArgs(src, dst, duration, opts)); err != nil {
		return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}
	return nil
}

// clipArgs builds the ffmpeg command line for a clip.
func clipArgs(src, dst string, duration float64, opts ClipOpts) []string {
	input := ffmpeg.KwArgs{}
	if duration > opts.MaxDuration {
		input["ss"] = "0"
		input["t"] = formatSeconds(opts.MaxDuration)
	}

	return ffmpeg.Input(src, input).
		Output(dst, ffmpeg.KwArgs{
			"vf":   fmt.Sprintf("fps=%d", opts.FPS),
			"loop": 0,
			"f":    "gif",
		}).
		OverWriteOutput().
		GetArgs()
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	stderr, err := p.runner.Run(ctx, p.ffmpegPath, args)
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "ffmpeg cancelled")
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr,
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// probeOutput is the subset of ffprobe's JSON output we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// GetMediaDuration returns the duration in seconds of a media file.
// The container duration is preferred; the first video stream's duration
// is used when the container does not report one.
func (p *FFmpegProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(err, "ffprobe cancelled")
	}

	out, err := p.probe(ctx, path)
	if err != nil {
		return 0, errors.Wrapf(err, "probe %s", path)
	}

	var data probeOutput
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return 0, errors.WithStack(err)
	}

	raw := strings.TrimSpace(data.Format.Duration)
	if raw == "" || raw == "N/A" {
		raw = ""
		for _, s := range data.Streams {
			if s.CodecType == "video" && s.Duration != "" && s.Duration != "N/A" {
				raw = s.Duration
				break
			}
		}
	}
	if raw == "" {
		return 0, ErrNoDuration
	}

	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse duration")
	}
	return duration, nil
}
