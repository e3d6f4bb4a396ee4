package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// probe reads the first video stream's metadata with ffprobe.
func probe(ctx context.Context, path string) (StreamInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return StreamInfo{}, fmt.Errorf("no video stream found")
	}

	s := out.Streams[0]
	fps := parseRate(s.AvgFrameRate)
	if fps == 0 {
		fps = parseRate(s.RFrameRate)
	}
	return StreamInfo{Width: s.Width, Height: s.Height, FPS: fps}, nil
}

// parseRate parses an ffprobe rational such as "30000/1001". Malformed or
// zero-denominator rates yield 0.
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
