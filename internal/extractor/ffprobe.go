package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/franz/media-librarian/internal/util"
)

// ProbeInfo is the part of ffprobe's JSON the catalog uses
type ProbeInfo struct {
	Streams  []ProbeStream  `json:"streams"`
	Format   *ProbeFormat   `json:"format"`
	Chapters []ProbeChapter `json:"chapters"`
}

// IntOrString can unmarshal both integers and strings from JSON
type IntOrString struct {
	Value int
}

// UnmarshalJSON implements custom unmarshaling for IntOrString
func (i *IntOrString) UnmarshalJSON(data []byte) error {
	var intVal int
	if err := json.Unmarshal(data, &intVal); err == nil {
		i.Value = intVal
		return nil
	}

	var strVal string
	if err := json.Unmarshal(data, &strVal); err != nil {
		return err
	}
	// "N/A" and friends read as 0
	i.Value, _ = strconv.Atoi(strVal)
	return nil
}

// ProbeStream is one stream of the container
type ProbeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	SampleRate   IntOrString       `json:"sample_rate"`
	Channels     int               `json:"channels"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	Disposition  map[string]int    `json:"disposition"`
}

// ProbeFormat is the container metadata
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// ProbeChapter is one chapter marker
type ProbeChapter struct {
	StartTime string            `json:"start_time"`
	Tags      map[string]string `json:"tags"`
}

// FFprobe runs ffprobe
type FFprobe struct {
	Binary string
}

// Probe executes ffprobe on path. A non-zero exit or a file without
// streams is util.ErrUnplayable.
func (p *FFprobe) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_chapters",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe %s: %s: %w", path, strings.TrimSpace(string(exitErr.Stderr)), util.ErrUnplayable)
		}
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	info, err := ParseProbe(output)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return info, nil
}

// ParseProbe decodes ffprobe JSON output
func ParseProbe(output []byte) (*ProbeInfo, error) {
	var info ProbeInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(info.Streams) == 0 {
		return nil, fmt.Errorf("no streams: %w", util.ErrUnplayable)
	}
	return &info, nil
}

// Available checks if the binary is in PATH
func (p *FFprobe) Available() bool {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

// Entry flattens the probe into catalog keys
func (info *ProbeInfo) Entry() map[string]any {
	e := make(map[string]any)
	var video, audio, subtitle int64
	var languages []string
	for _, s := range info.Streams {
		switch s.CodecType {
		case "video":
			// cover art is an attached picture, not a video
			if s.Disposition["attached_pic"] == 1 {
				continue
			}
			video++
			if _, ok := e["width"]; !ok && s.Width > 0 {
				e["width"] = int64(s.Width)
				e["height"] = int64(s.Height)
				if fps := frameRate(s.AvgFrameRate); fps > 0 {
					e["fps"] = fps
				}
			}
		case "audio":
			audio++
		case "subtitle":
			subtitle++
		}
		if lang := s.Tags["language"]; lang != "" {
			languages = append(languages, lang)
		}
	}
	e["video_count"] = video
	e["audio_count"] = audio
	e["subtitle_count"] = subtitle
	e["chapter_count"] = int64(len(info.Chapters))
	if len(languages) > 0 {
		e["language"] = strings.Join(languages, ";")
	}

	if f := info.Format; f != nil {
		if d, err := strconv.ParseFloat(f.Duration, 64); err == nil {
			e["duration"] = int64(d)
		}
		if n, err := strconv.ParseInt(f.Size, 10, 64); err == nil {
			e["size"] = n
		}
		for k, v := range f.Tags {
			key := strings.ToLower(k)
			if _, ok := e[key]; !ok && v != "" {
				e[key] = v
			}
		}
	}
	return e
}

func frameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
