// Package gitdiff extracts staged changes from a git repository as unified
// diffs suitable for feeding into a commit-message prompt.
package gitdiff

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

// FileChange is one staged file with its rendered diff.
type FileChange struct {
	Path       string
	Status     string // "added", "modified", "deleted", "renamed"
	Binary     bool
	Diff       string // empty for binary files
	Insertions int
	Deletions  int
}

// Changes is the full staged changeset.
type Changes struct {
	Files     []FileChange
	Truncated bool
}

// Stats summarizes a changeset.
type Stats struct {
	Files      int
	Insertions int
	Deletions  int
}

// Stats computes aggregate counts over all files.
func (c Changes) Stats() Stats {
	s := Stats{Files: len(c.Files)}
	for _, f := range c.Files {
		s.Insertions += f.Insertions
		s.Deletions += f.Deletions
	}
	return s
}

// Empty reports whether nothing is staged.
func (c Changes) Empty() bool {
	return len(c.Files) == 0
}

const diffContextLines = 3

// StagedChanges collects staged files from the repository containing dir and
// renders a unified diff per file. Diff text is capped at maxBytes in total;
// files past the cap are listed without diff text and Truncated is set.
func StagedChanges(dir string, maxBytes int) (Changes, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return Changes{}, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Changes{}, fmt.Errorf("failed to open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return Changes{}, fmt.Errorf("failed to read git status: %w", err)
	}

	headTree, err := headTree(repo)
	if err != nil {
		return Changes{}, err
	}

	var paths []string
	for path, fileStatus := range status {
		if isStaged(fileStatus.Staging) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	var changes Changes
	budget := maxBytes
	for _, path := range paths {
		fileStatus := status[path]
		change, err := buildChange(repo, headTree, path, fileStatus.Staging)
		if err != nil {
			return Changes{}, err
		}
		if !change.Binary && change.Diff != "" {
			if budget <= 0 {
				change.Diff = ""
				changes.Truncated = true
			} else if len(change.Diff) > budget {
				change.Diff = change.Diff[:budget]
				changes.Truncated = true
				budget = 0
			} else {
				budget -= len(change.Diff)
			}
		}
		changes.Files = append(changes.Files, change)
	}
	return changes, nil
}

// Branch returns the current branch name, or a short SHA for detached HEAD.
// An unborn HEAD (fresh repository) returns "".
func Branch(dir string) string {
	repo, err := openRepo(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	hash := head.Hash().String()
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// Commit creates a commit from the index with the given message. Author
// identity comes from the repository configuration.
func Commit(dir, message string) (string, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to open worktree: %w", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}
	return hash.String(), nil
}

func openRepo(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}
	return repo, nil
}

// headTree returns the HEAD commit tree, or nil for an unborn HEAD.
func headTree(repo *git.Repository) (*object.Tree, error) {
	head, err := repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD tree: %w", err)
	}
	return tree, nil
}

func isStaged(code git.StatusCode) bool {
	switch code {
	case git.Added, git.Modified, git.Deleted, git.Renamed, git.Copied:
		return true
	}
	return false
}

func statusLabel(code git.StatusCode) string {
	switch code {
	case git.Added:
		return "added"
	case git.Deleted:
		return "deleted"
	case git.Renamed:
		return "renamed"
	case git.Copied:
		return "copied"
	default:
		return "modified"
	}
}

func buildChange(repo *git.Repository, headTree *object.Tree, path string, code git.StatusCode) (FileChange, error) {
	change := FileChange{Path: path, Status: statusLabel(code)}

	oldContent, err := headContent(headTree, path)
	if err != nil {
		return FileChange{}, err
	}
	var newContent []byte
	if code != git.Deleted {
		newContent, err = indexContent(repo, path)
		if err != nil {
			return FileChange{}, err
		}
	}

	if isBinary(oldContent) || isBinary(newContent) {
		change.Binary = true
		return change, nil
	}

	diff, err := unifiedDiff(path, string(oldContent), string(newContent))
	if err != nil {
		return FileChange{}, fmt.Errorf("failed to diff %s: %w", path, err)
	}
	change.Diff = diff
	change.Insertions, change.Deletions = countDiffLines(diff)
	return change, nil
}

// headContent returns the file content at HEAD, or nil if the file does not
// exist there.
func headContent(tree *object.Tree, path string) ([]byte, error) {
	if tree == nil {
		return nil, nil
	}
	file, err := tree.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s from HEAD: %w", path, err)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from HEAD: %w", path, err)
	}
	return []byte(content), nil
}

// indexContent returns the staged blob content for path.
func indexContent(repo *git.Repository, path string) ([]byte, error) {
	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	entry, err := idx.Entry(path)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in index: %w", path, err)
	}
	blob, err := repo.BlobObject(entry.Hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load staged blob for %s: %w", path, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read staged blob for %s: %w", path, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged blob for %s: %w", path, err)
	}
	return content, nil
}

func unifiedDiff(path, oldContent, newContent string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  diffContextLines,
	}
	return difflib.GetUnifiedDiffString(diff)
}

func countDiffLines(diff string) (insertions, deletions int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			insertions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return insertions, deletions
}

func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0
}
