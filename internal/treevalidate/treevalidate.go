// Package treevalidate implements the file-count-ratio sanity check shared
// by merge-ri and the Final Merge Executor (spec.md §4.2.5, §8 property 4):
// any successful merge whose richer parent has more than MinRicherFiles
// files must keep at least MinKeepRatio of them, checked before any ref
// moves.
package treevalidate

import (
	"context"
	"errors"

	"github.com/re-cinq/plango/internal/gitadapter"
)

// MinRicherFiles and MinKeepRatio are the thresholds spec.md §8 property 4
// fixes: the check only engages once the richer side exceeds
// MinRicherFiles, and the result must retain at least MinKeepRatio of that
// side's file count.
const (
	MinRicherFiles = 10
	MinKeepRatio   = 0.80
)

// ErrAborted is returned when the ratio check fails.
var ErrAborted = errors.New("resulting tree file count ratio below 0.80 of the richer side")

// CheckRatio compares the file count at result against the richer of
// source and target (all resolvable as git refs or commits in repoPath)
// and returns ErrAborted if result keeps fewer than MinKeepRatio of the
// richer side's files, once that side exceeds MinRicherFiles.
func CheckRatio(ctx context.Context, repoPath, result, source, target string) error {
	repo := gitadapter.New(repoPath).Repository()

	resultCount, err := repo.ListTreeFileCount(ctx, repoPath, result)
	if err != nil {
		return err
	}
	sourceCount, err := repo.ListTreeFileCount(ctx, repoPath, source)
	if err != nil {
		return err
	}
	targetCount, err := repo.ListTreeFileCount(ctx, repoPath, target)
	if err != nil {
		return err
	}

	richer := sourceCount
	if targetCount > richer {
		richer = targetCount
	}
	if richer <= MinRicherFiles {
		return nil
	}
	if float64(resultCount)/float64(richer) < MinKeepRatio {
		return ErrAborted
	}
	return nil
}
