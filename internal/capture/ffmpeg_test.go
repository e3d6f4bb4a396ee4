package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}
}

// testClip renders a short synthetic clip with ffmpeg's test source.
func testClip(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=10",
		"-frames:v", strconv.Itoa(frames), "-pix_fmt", "yuv420p", path)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func TestOpenFFmpegMissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenFFmpeg(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestOpenFFmpegMissingCamera(t *testing.T) {
	t.Parallel()

	_, err := OpenFFmpeg(context.Background(), "/dev/video97", Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestOpenFFmpegSinkUnwritable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := OpenFFmpegSink(filepath.Join(blocker, "out.mp4"), StreamInfo{}, 85)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSinkUnavailable))
}

func TestFFmpegRoundTrip(t *testing.T) {
	requireFFmpeg(t)

	clip := testClip(t, 12)
	src, err := OpenFFmpeg(context.Background(), clip, Config{})
	require.NoError(t, err)

	info := src.Info()
	assert.Equal(t, 160, info.Width)
	assert.Equal(t, 120, info.Height)
	assert.InDelta(t, 10, info.FrameRate(), 0.01)

	out := filepath.Join(t.TempDir(), "nested", "out.mp4")
	sink, err := OpenFFmpegSink(out, info, 85)
	require.NoError(t, err)

	read := 0
	for {
		f, err := src.Read(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		read++
		assert.Equal(t, uint64(read), f.Seq)

		w, h, err := f.Size()
		require.NoError(t, err)
		assert.Equal(t, 160, w)
		assert.Equal(t, 120, h)

		require.NoError(t, sink.Write(f))
	}
	assert.Equal(t, 12, read)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	require.NoError(t, sink.Close())

	probed, err := probe(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 160, probed.Width)
}

func TestFFmpegSourceClosedRead(t *testing.T) {
	requireFFmpeg(t)

	src, err := OpenFFmpeg(context.Background(), testClip(t, 5), Config{})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = src.Read(context.Background())
	assert.Error(t, err)
}

func TestFFmpegSinkWithoutFrames(t *testing.T) {
	requireFFmpeg(t)

	out := filepath.Join(t.TempDir(), "empty.mp4")
	sink, err := OpenFFmpegSink(out, StreamInfo{Width: 160, Height: 120, FPS: 10}, 80)
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	assert.NoFileExists(t, out)
}
