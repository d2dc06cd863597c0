package git

import (
	"context"
	"crypto/sha1"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"percipio.com/growbench/lib/logger"
)

const commandTimeout = 5 * time.Second

type CommitInfo struct {
	Hash      string
	ShortHash string
	Branch    string
	Message   string
	Timestamp time.Time
	RepoName  string
	RefName   string
}

// GetCommitInfo describes the revision of the working directory dir (the
// process working directory when empty). With useGit false, or when git is
// not usable, callers get a timestamp-derived pseudo revision via
// TimestampInfo instead.
func GetCommitInfo(ctx context.Context, dir string, useGit bool) (*CommitInfo, error) {
	if !useGit {
		return TimestampInfo(time.Now()), nil
	}

	hash, err := execGitCommand(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get commit hash: %w", err)
	}

	remoteURL, remoteErr := execGitCommand(ctx, dir, "config", "--get", "remote.origin.url")
	if remoteErr != nil {
		logger.Debug("No remote URL: %v", remoteErr)
		remoteURL = "unknown"
	}

	branch, err := execGitCommand(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = "detached"
	}
	message, _ := execGitCommand(ctx, dir, "log", "-1", "--format=%s")

	timestamp := time.Now()
	authorTime, err := execGitCommand(ctx, dir, "log", "-1", "--format=%aI")
	if err == nil {
		parsed, parseErr := time.Parse(time.RFC3339, authorTime)
		if parseErr == nil {
			timestamp = parsed
		}
	}

	return &CommitInfo{
		Hash:      hash,
		ShortHash: shorten(hash),
		Branch:    branch,
		Message:   message,
		RepoName:  parseRepoName(remoteURL),
		RefName:   remoteURL,
		Timestamp: timestamp,
	}, nil
}

func execGitCommand(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// TimestampInfo derives a pseudo revision from t for runs outside a
// repository.
func TimestampInfo(t time.Time) *CommitInfo {
	h := sha1.New()
	h.Write([]byte(fmt.Sprintf("%d", t.UnixNano())))
	fullHash := fmt.Sprintf("%x", h.Sum(nil))

	return &CommitInfo{
		Hash:      fullHash,
		ShortHash: fullHash[:8],
		Branch:    "timestamp",
		Message:   "Timestamp-based run " + t.Format("20060102-150405"),
		Timestamp: t,
	}
}

func shorten(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func parseRepoName(remoteURL string) string {
	remoteURL = strings.TrimSpace(remoteURL)
	remoteURL = strings.TrimSuffix(remoteURL, ".git")
	remoteURL = strings.ReplaceAll(remoteURL, ":", "/")
	parts := strings.Split(remoteURL, "/")
	if len(parts) >= 2 && parts[len(parts)-2] != "" {
		return fmt.Sprintf("%s/%s", parts[len(parts)-2], parts[len(parts)-1])
	}
	return "unknown"
}
