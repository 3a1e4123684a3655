package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult holds the measured audio properties.
type ProbeResult struct {
	DurationSeconds int
	Bitrate         int
}

// Prober measures exact duration and bitrate of a local audio file.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// FFProbe shells out to ffprobe and parses its JSON output.
type FFProbe struct {
	// Path is the ffprobe binary, usually just "ffprobe".
	Path string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe implements Prober.
func (p FFProbe) Probe(ctx context.Context, path string) (ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, p.Path, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe execution failed for %s: %w\nffprobe error: %s", path, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return ProbeResult{}, fmt.Errorf("unmarshal ffprobe output for %s: %w", path, err)
	}
	if probeData.Format.Duration == "" {
		return ProbeResult{}, fmt.Errorf("duration not found in ffprobe output for %s", path)
	}
	seconds, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("parse duration %q: %w", probeData.Format.Duration, err)
	}

	result := ProbeResult{DurationSeconds: int(seconds)}
	if probeData.Format.BitRate != "" {
		if bitrate, err := strconv.Atoi(probeData.Format.BitRate); err == nil {
			result.Bitrate = bitrate
		}
	}
	return result, nil
}
