package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Entry is one decoded extractor record, keyed the way the program emits it
type Entry map[string]any

// EntryFunc receives entries as they are decoded; an error stops the run
type EntryFunc func(Entry) error

// YTDLP runs yt-dlp
type YTDLP struct {
	Binary    string
	ExtraArgs []string
}

func (y *YTDLP) binary() string {
	if y.Binary == "" {
		return "yt-dlp"
	}
	return y.Binary
}

// Available checks if the binary is in PATH
func (y *YTDLP) Available() bool {
	_, err := exec.LookPath(y.binary())
	return err == nil
}

// Entries lists the entries of a playlist URL without downloading. Each
// line of output is one JSON object.
func (y *YTDLP) Entries(ctx context.Context, url string, fn EntryFunc) error {
	args := append([]string{"--flat-playlist", "--dump-json", "--no-warnings"}, y.ExtraArgs...)
	args = append(args, url)
	return runJSONLines(ctx, y.binary(), url, args, func(raw []byte) error {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("failed to parse yt-dlp output: %w", err)
		}
		return fn(e)
	})
}

// Download fetches url into dir and returns the metadata of the result,
// with the final file under "filepath"
func (y *YTDLP) Download(ctx context.Context, url, dir string) (Entry, error) {
	args := append([]string{
		"--no-warnings",
		"--no-simulate",
		"--dump-json",
		"--paths", dir,
		"--output", "%(extractor_key)s/%(uploader,channel)s/%(title).180B_%(id)s.%(ext)s",
	}, y.ExtraArgs...)
	args = append(args, url)

	var entry Entry
	err := runJSONLines(ctx, y.binary(), url, args, func(raw []byte) error {
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &Error{Class: Unrecoverable, Program: y.binary(), URL: url, Stderr: "no output"}
	}
	if _, ok := entry["filepath"]; !ok {
		if fn, ok := entry["_filename"]; ok {
			entry["filepath"] = fn
		}
	}
	return entry, nil
}

// runJSONLines streams stdout line by line and classifies a failed exit
func runJSONLines(ctx context.Context, bin, url string, args []string, line func([]byte) error) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return &Error{Class: Prefix, Program: bin, URL: url, Err: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	var lineErr error
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		if lineErr = line(raw); lineErr != nil {
			break
		}
	}
	if lineErr != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return lineErr
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out := stderr.String()
			return &Error{Class: Classify(out), Program: bin, URL: url, Stderr: strings.TrimSpace(out), Err: err}
		}
		return err
	}
	return scanner.Err()
}
