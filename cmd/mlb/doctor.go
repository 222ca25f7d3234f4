package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/media-librarian/internal/fileops"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/units"
	"github.com/franz/media-librarian/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [DATABASE]",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure mlb can operate correctly.

This command checks:
- External tools (ffprobe, yt-dlp, gallery-dl, the player, the trash command)
- SQLite version and full-text tokenizer
- Database accessibility and integrity
- The keep directory (writable, free space)

Use this command to troubleshoot issues before running other mlb commands.`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

// tool is an external binary and where its version sits in the first
// line of its version output
type tool struct {
	name     string
	binary   string
	args     []string
	field    int
	required bool
	purpose  string
}

func doctorTools() []tool {
	player := GetConfigString("player", "mpv")
	return []tool{
		{name: "ffprobe", binary: "ffprobe", args: []string{"-version"}, field: 2, purpose: "stream counts and durations of local media"},
		{name: "yt-dlp", binary: GetConfigString("yt_dlp", "yt-dlp"), args: []string{"--version"}, field: 0, purpose: "tube-add, tube-update and download"},
		{name: "gallery-dl", binary: GetConfigString("gallery_dl", "gallery-dl"), args: []string{"--version"}, field: 0, purpose: "image galleries"},
		{name: "player", binary: player, args: []string{"--version"}, field: 1, required: true, purpose: "watch and listen"},
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	util.InfoLog("=== MLB Doctor - System Diagnostics ===")
	util.InfoLog("")

	var results []checkResult
	for _, t := range doctorTools() {
		results = append(results, checkTool(ctx, t))
	}
	results = append(results, checkTrash(viper.GetString("trash_cmd")))
	results = append(results, checkSQLite())

	if len(args) == 1 {
		results = append(results, checkDatabase(ctx, args[0])...)
		results = append(results, checkDiskSpace(filepath.Dir(args[0]), "database"))
	}

	if keep := viper.GetString("keep_dir"); keep != "" {
		results = append(results, checkKeepDirectory(keep))
		results = append(results, checkDiskSpace(keep, "keep directory"))
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running mlb.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! System is ready for mlb operations.")
	}
	return nil
}

// checkTool runs the version command of an external binary
func checkTool(ctx context.Context, t tool) checkResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	argv := strings.Fields(t.binary)
	if len(argv) == 0 {
		return checkResult{name: t.name, warning: true, message: "not configured"}
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return checkResult{
			name:    t.name,
			error:   t.required,
			warning: !t.required,
			message: fmt.Sprintf("%s not found (needed for %s)", argv[0], t.purpose),
		}
	}

	output, err := exec.CommandContext(ctx, path, append(argv[1:], t.args...)...).CombinedOutput()
	if err != nil {
		// xdg-open and open have no version flag; being on PATH is enough
		return checkResult{name: t.name, message: path}
	}
	return checkResult{name: t.name, message: fmt.Sprintf("%s version %s", argv[0], versionField(string(output), t.field))}
}

// versionField picks a whitespace separated field of the first line
func versionField(output string, field int) string {
	first, _, _ := strings.Cut(output, "\n")
	parts := strings.Fields(first)
	if field < len(parts) {
		return parts[field]
	}
	return "unknown"
}

// checkTrash reports which trash command deletions will use
func checkTrash(configured string) checkResult {
	candidates := fileops.DefaultTrashCommands
	if configured != "" {
		candidates = []string{configured}
	}
	for _, c := range candidates {
		argv := strings.Fields(c)
		if len(argv) == 0 {
			continue
		}
		if path, err := exec.LookPath(argv[0]); err == nil {
			return checkResult{name: "Trash", message: path}
		}
	}
	if configured != "" {
		return checkResult{name: "Trash", error: true, message: fmt.Sprintf("%s not found", configured)}
	}
	return checkResult{name: "Trash", warning: true, message: "no trash command found, deleted files are unlinked"}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}
	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database accessibility, integrity and search
func checkDatabase(ctx context.Context, dbPath string) []checkResult {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []checkResult{{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}}
		}
		return []checkResult{{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}}
	}

	if !info.Mode().IsRegular() {
		return []checkResult{{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return []checkResult{{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}}
	}
	defer db.Close()

	if err := db.CheckIntegrity(ctx); err != nil {
		return []checkResult{{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}}
	}

	media, _ := db.QueryInt(ctx, "SELECT COUNT(*) FROM media WHERE COALESCE(time_deleted, 0) = 0")
	playlists, _ := db.QueryInt(ctx, "SELECT COUNT(*) FROM playlists WHERE COALESCE(time_deleted, 0) = 0")
	results := []checkResult{{
		name:    "Database",
		message: fmt.Sprintf("%s (%s, %d media, %d playlists)", dbPath, units.Bytes(info.Size()), media, playlists),
	}}

	switch tok := db.Tokenizer(ctx); tok {
	case "trigram":
		results = append(results, checkResult{name: "Full-text search", message: "trigram tokenizer"})
	case "":
		results = append(results, checkResult{name: "Full-text search", warning: true, message: "no FTS index, searches fall back to LIKE"})
	default:
		results = append(results, checkResult{name: "Full-text search", warning: true, message: fmt.Sprintf("%s tokenizer, substring matches need whole words", tok)})
	}
	return results
}

// checkKeepDirectory verifies the keep directory is writable
func checkKeepDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Keep directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Keep directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Keep directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Keep directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".mlb_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Keep directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	msg := fmt.Sprintf("%s (writable)", path)
	if util.IsNetworkPath(path) {
		msg = fmt.Sprintf("%s (writable, network filesystem)", path)
	}
	return checkResult{name: "Keep directory", message: msg}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	availGB := float64(availBytes) / (1024 * 1024 * 1024)
	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// Warn if less than 10GB available or >90% used
	warning := false
	warningMsg := ""
	if availGB < 10 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", units.Bytes(int64(availBytes)), warningMsg),
	}
}
