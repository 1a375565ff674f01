package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"media-animator/internal/convert"
)

// probeOutput mirrors the subset of `ffprobe -of json` that is read.
type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads frame rate, frame count and size of the first video stream.
func (t *Toolchain) Probe(ctx context.Context, path string) (convert.VideoInfo, error) {
	args := buildProbeArgs(path)
	res, err := t.runner.Run(ctx, command{Name: t.ffprobePath, Args: args})
	log := CommandLog{
		Command:  t.ffprobePath,
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
	}
	if err != nil {
		return convert.VideoInfo{}, &ToolError{
			Stage:      "probe",
			Message:    "ffprobe could not read the file",
			CommandLog: log,
			Err:        err,
		}
	}

	info, err := parseProbe(res.Stdout)
	if err != nil {
		return convert.VideoInfo{}, &ToolError{
			Stage:      "probe",
			Message:    "unexpected ffprobe output",
			CommandLog: log,
			Err:        err,
		}
	}
	info.Path = path
	return info, nil
}

func parseProbe(data []byte) (convert.VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return convert.VideoInfo{}, err
	}
	if len(out.Streams) == 0 {
		return convert.VideoInfo{}, fmt.Errorf("no video stream")
	}

	s := out.Streams[0]
	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}

	frames, err := strconv.Atoi(strings.TrimSpace(s.NbFrames))
	if err != nil || frames <= 0 {
		// Containers such as webm or mkv do not store a frame count.
		duration := parseFloat(s.Duration)
		if duration <= 0 {
			duration = parseFloat(out.Format.Duration)
		}
		frames = int(math.Round(duration * fps))
	}

	return convert.VideoInfo{
		NativeFPS:   fps,
		TotalFrames: frames,
		Width:       s.Width,
		Height:      s.Height,
	}, nil
}

// parseRate parses rationals such as "30000/1001"; "0/0" yields 0.
func parseRate(raw string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return parseFloat(num)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		path,
	}
}
