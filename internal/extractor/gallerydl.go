package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// gallery-dl message types in --dump-json output
const (
	galleryMessageDirectory = 2
	galleryMessageURL       = 3
)

// GalleryDL runs gallery-dl
type GalleryDL struct {
	Binary    string
	ExtraArgs []string
}

func (g *GalleryDL) binary() string {
	if g.Binary == "" {
		return "gallery-dl"
	}
	return g.Binary
}

// Available checks if the binary is in PATH
func (g *GalleryDL) Available() bool {
	_, err := exec.LookPath(g.binary())
	return err == nil
}

// Entries lists the files of a gallery URL. Directory messages carry
// metadata shared by the file messages that follow them.
func (g *GalleryDL) Entries(ctx context.Context, url string, fn EntryFunc) error {
	args := append([]string{"--dump-json"}, g.ExtraArgs...)
	args = append(args, url)
	cmd := exec.CommandContext(ctx, g.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := stderr.String()
			return &Error{Class: Classify(msg), Program: g.binary(), URL: url, Stderr: strings.TrimSpace(msg), Err: err}
		}
		return &Error{Class: Prefix, Program: g.binary(), URL: url, Err: err}
	}
	return ParseGallery(out, fn)
}

// ParseGallery decodes gallery-dl --dump-json output
func ParseGallery(out []byte, fn EntryFunc) error {
	var messages []json.RawMessage
	if err := json.Unmarshal(out, &messages); err != nil {
		return fmt.Errorf("failed to parse gallery-dl output: %w", err)
	}

	shared := Entry{}
	for _, raw := range messages {
		var msg []json.RawMessage
		if err := json.Unmarshal(raw, &msg); err != nil || len(msg) < 2 {
			continue
		}
		var kind int
		if err := json.Unmarshal(msg[0], &kind); err != nil {
			continue
		}
		switch kind {
		case galleryMessageDirectory:
			shared = Entry{}
			if err := json.Unmarshal(msg[1], &shared); err != nil {
				return fmt.Errorf("failed to parse gallery-dl directory: %w", err)
			}
		case galleryMessageURL:
			if len(msg) < 3 {
				continue
			}
			var url string
			if err := json.Unmarshal(msg[1], &url); err != nil {
				continue
			}
			e := Entry{}
			for k, v := range shared {
				e[k] = v
			}
			var meta Entry
			if err := json.Unmarshal(msg[2], &meta); err == nil {
				for k, v := range meta {
					e[k] = v
				}
			}
			e["url"] = url
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}
