package settings

import (
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// GetGitCommit returns a short commit id for the running build. Development
// mode reads the working tree's .git directly so the id tracks uncommitted
// checkouts; release builds fall back to the module build info.
func GetGitCommit() string {
	if os.Getenv("DEVELOPMENT_MODE") != "true" {
		return GitVersion()
	}

	gitDir, err := resolveGitDir(".git")
	if err != nil {
		log.Printf("Can't locate git metadata: %v", err)
		return ""
	}
	commit, err := readHeadCommit(gitDir)
	if err != nil {
		log.Printf("Can't read git HEAD: %v", err)
		return ""
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return commit
}

// resolveGitDir follows a `gitdir:` pointer file, which is how linked
// worktrees and submodules store their metadata location.
func resolveGitDir(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return path, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	_, target, found := strings.Cut(string(data), ":")
	if !found {
		return "", os.ErrInvalid
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(".", target)
	}
	return target, nil
}

func readHeadCommit(gitDir string) (string, error) {
	headData, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", err
	}
	head := strings.TrimSpace(string(headData))

	ref, isSymbolic := strings.CutPrefix(head, "ref: ")
	if !isSymbolic {
		return head, nil
	}
	refData, err := os.ReadFile(filepath.Join(gitDir, strings.TrimSpace(ref)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(refData)), nil
}

// BuildInfo reports the version and release pair surfaced on /health.
func BuildInfo() (string, string) {
	return GitVersion(), GetGitCommit()
}

// GitVersion resolves a human-readable build version: the module version for
// tagged builds, otherwise the VCS revision stamped by the toolchain.
func GitVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return ""
	}
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}

	var rev, modified string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if rev == "" {
		return ""
	}
	if modified == "true" {
		return rev + "-dirty"
	}
	return rev
}
