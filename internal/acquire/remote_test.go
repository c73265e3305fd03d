package acquire

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipgrab/internal/apify"
	"github.com/maauso/clipgrab/internal/fetch"
	"github.com/maauso/clipgrab/internal/storage"
)

// mockApifyClient is a testify mock of apify.Client.
type mockApifyClient struct {
	mock.Mock
}

func (m *mockApifyClient) RunTask(ctx context.Context, taskID string, input any) (string, error) {
	args := m.Called(ctx, taskID, input)
	return args.String(0), args.Error(1)
}

func (m *mockApifyClient) GetRun(ctx context.Context, runID string) (apify.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(apify.Run), args.Error(1)
}

func (m *mockApifyClient) DatasetItems(ctx context.Context, datasetID string) ([]apify.Item, error) {
	args := m.Called(ctx, datasetID)
	items, _ := args.Get(0).([]apify.Item)
	return items, args.Error(1)
}

// stubFetcher serves fixed bodies keyed by URL.
type stubFetcher struct {
	bodies  map[string]string
	headers []http.Header
	err     error
}

func (f *stubFetcher) Fetch(_ context.Context, url string, header http.Header) (io.ReadCloser, error) {
	f.headers = append(f.headers, header)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fetch.ErrDownloadFailed
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func newScratch(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func fastPolling() []RemoteOption {
	return []RemoteOption{WithPollInterval(time.Millisecond), WithMaxPollAttempts(5)}
}

const tiktokURL = "https://www.tiktok.com/@user/video/7300000000000000001"

func TestTikTok_Success(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}

	client.On("RunTask", ctx, "tiktok-task", mock.MatchedBy(func(in any) bool {
		ti, ok := in.(tiktokInput)
		return ok && len(ti.PostURLs) == 1 && ti.PostURLs[0] == tiktokURL &&
			ti.ResultsPerPage == 1 && ti.ShouldDownloadVideos && ti.TikTokMemoryMB == "default"
	})).Return("run-1", nil)
	client.On("GetRun", ctx, "run-1").Return(apify.Run{ID: "run-1", Status: apify.StatusRunning}, nil).Twice()
	client.On("GetRun", ctx, "run-1").Return(apify.Run{ID: "run-1", Status: apify.StatusSucceeded, DatasetID: "ds-1"}, nil).Once()
	client.On("DatasetItems", ctx, "ds-1").Return([]apify.Item{
		{"gcsMediaUrls": []any{"https://storage.googleapis.com/b/first.mp4", "https://storage.googleapis.com/b/second.mp4"}},
		{"gcsMediaUrls": []any{"https://storage.googleapis.com/b/other.mp4"}},
	}, nil)

	res, err := NewTikTokStrategy(client, "tiktok-task", fastPolling()...).Acquire(ctx, tiktokURL)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/b/first.mp4", res.SourceURL)
	assert.False(t, res.IsLocal())
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "GetRun", 3)
}

func TestTikTok_EmptyDataset(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}
	client.On("RunTask", ctx, "task", mock.Anything).Return("run-1", nil)
	client.On("GetRun", ctx, "run-1").Return(apify.Run{Status: apify.StatusSucceeded, DatasetID: "ds-1"}, nil)
	client.On("DatasetItems", ctx, "ds-1").Return([]apify.Item{}, nil)

	_, err := NewTikTokStrategy(client, "task", fastPolling()...).Acquire(ctx, tiktokURL)
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, "No items returned from remote task", err.Error())
}

func TestTikTok_MissingMediaURL(t *testing.T) {
	tests := []struct {
		name string
		item apify.Item
	}{
		{"field absent", apify.Item{"id": "1"}},
		{"empty list", apify.Item{"gcsMediaUrls": []any{}}},
		{"empty string", apify.Item{"gcsMediaUrls": []any{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			client := &mockApifyClient{}
			client.On("RunTask", ctx, "task", mock.Anything).Return("run-1", nil)
			client.On("GetRun", ctx, "run-1").Return(apify.Run{Status: apify.StatusSucceeded, DatasetID: "ds"}, nil)
			client.On("DatasetItems", ctx, "ds").Return([]apify.Item{tt.item}, nil)

			_, err := NewTikTokStrategy(client, "task", fastPolling()...).Acquire(ctx, tiktokURL)
			assert.ErrorIs(t, err, ErrMissingMediaURL)
		})
	}
}

func TestRemoteTask_RunFailed(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}
	client.On("RunTask", ctx, "task", mock.Anything).Return("run-9", nil)
	client.On("GetRun", ctx, "run-9").Return(apify.Run{ID: "run-9", Status: apify.StatusFailed, Error: "Actor crashed"}, nil)

	_, err := NewTikTokStrategy(client, "task", fastPolling()...).Acquire(ctx, tiktokURL)

	var rte *RemoteTaskError
	require.ErrorAs(t, err, &rte)
	assert.Equal(t, "FAILED", rte.Status)
	assert.Contains(t, err.Error(), "Actor crashed")
	client.AssertNotCalled(t, "DatasetItems", mock.Anything, mock.Anything)
}

func TestRemoteTask_PollTimeout(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}
	client.On("RunTask", ctx, "task", mock.Anything).Return("run-1", nil)
	client.On("GetRun", ctx, "run-1").Return(apify.Run{Status: apify.StatusRunning}, nil)

	_, err := NewTikTokStrategy(client, "task", WithPollInterval(time.Millisecond), WithMaxPollAttempts(3)).Acquire(ctx, tiktokURL)
	assert.ErrorIs(t, err, ErrPollTimeout)
	client.AssertNumberOfCalls(t, "GetRun", 3)
}

func TestRemoteTask_PollHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	client := &mockApifyClient{}
	client.On("RunTask", mock.Anything, "task", mock.Anything).Return("run-1", nil)
	client.On("GetRun", mock.Anything, "run-1").Return(apify.Run{Status: apify.StatusRunning}, nil)

	start := time.Now()
	_, err := NewTikTokStrategy(client, "task", WithPollInterval(time.Hour)).Acquire(ctx, tiktokURL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRemoteTask_SubmitFailed(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}
	client.On("RunTask", ctx, "task", mock.Anything).Return("", apify.ErrSubmitFailed)

	_, err := NewTikTokStrategy(client, "task").Acquire(ctx, tiktokURL)
	assert.ErrorIs(t, err, apify.ErrSubmitFailed)
	client.AssertNotCalled(t, "GetRun", mock.Anything, mock.Anything)
}

func TestYouTube_DownloadsToScratch(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}
	client.On("RunTask", ctx, "yt-task", mock.MatchedBy(func(in any) bool {
		yi, ok := in.(youtubeInput)
		return ok && yi.Quality == "480" && yi.Proxy.UseApifyProxy && !yi.UseFfmpeg &&
			len(yi.StartURLs) == 1 && yi.StartURLs[0] == "https://youtube.com/shorts/abc"
	})).Return("run-2", nil)
	client.On("GetRun", ctx, "run-2").Return(apify.Run{Status: apify.StatusSucceeded, DatasetID: "ds-2"}, nil)
	client.On("DatasetItems", ctx, "ds-2").Return([]apify.Item{{"downloadUrl": "https://dl.example/abc.mp4"}}, nil)

	f := &stubFetcher{bodies: map[string]string{"https://dl.example/abc.mp4": "video-bytes"}}
	scratch := newScratch(t)

	res, err := NewYouTubeStrategy(client, "yt-task", f, scratch, fastPolling()...).Acquire(ctx, "https://youtube.com/shorts/abc")
	require.NoError(t, err)
	require.True(t, res.IsLocal())
	assert.Empty(t, res.SourceURL)

	data, err := os.ReadFile(res.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
}

func TestYouTube_ErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}
	client.On("RunTask", ctx, "yt-task", mock.Anything).Return("run-2", nil)
	client.On("GetRun", ctx, "run-2").Return(apify.Run{Status: apify.StatusSucceeded, DatasetID: "ds-2"}, nil)
	client.On("DatasetItems", ctx, "ds-2").Return([]apify.Item{{"title": "no url"}}, nil)

	_, err := NewYouTubeStrategy(client, "yt-task", &stubFetcher{}, newScratch(t), fastPolling()...).
		Acquire(ctx, "https://youtube.com/shorts/abc")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to download YouTube Shorts video: "))
	assert.ErrorIs(t, err, ErrMissingMediaURL)
}

func TestYouTube_DownloadFailure(t *testing.T) {
	ctx := context.Background()
	client := &mockApifyClient{}
	client.On("RunTask", ctx, "yt-task", mock.Anything).Return("run-2", nil)
	client.On("GetRun", ctx, "run-2").Return(apify.Run{Status: apify.StatusSucceeded, DatasetID: "ds-2"}, nil)
	client.On("DatasetItems", ctx, "ds-2").Return([]apify.Item{{"downloadUrl": "https://dl.example/gone.mp4"}}, nil)

	f := &stubFetcher{err: errors.Join(fetch.ErrDownloadFailed, errors.New("status 404"))}
	_, err := NewYouTubeStrategy(client, "yt-task", f, newScratch(t), fastPolling()...).
		Acquire(ctx, "https://youtube.com/shorts/abc")
	assert.ErrorIs(t, err, fetch.ErrDownloadFailed)
}

func TestDirect(t *testing.T) {
	res, err := NewDirectStrategy().Acquire(context.Background(), "https://storage.googleapis.com/b/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, Result{SourceURL: "https://storage.googleapis.com/b/v.mp4"}, res)
}
