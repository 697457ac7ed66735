package transaction

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"

	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

// Commit swaps the staged files of tx into the project and saves the
// lockfile last. Each step is a single rename or unlink, so a crash leaves
// every file either in its old or its new state. Once the first step runs
// the commit ignores cancellation. A failure midway returns
// domain.ErrCommitFailed listing the files already swapped; the staging
// directory is kept until the next transaction on the project.
func (e *Engine) Commit(ctx context.Context, tx *domain.Transaction) error {
	if tx.State != domain.TxStaged {
		return tx.Transition(domain.TxCommitted)
	}
	if err := ctx.Err(); err != nil {
		return zerr.With(errors.Join(domain.ErrTransactionCancelled, err), "transaction", tx.ID.String())
	}

	ctx = context.WithoutCancel(ctx)
	_, span := e.tracer.Start(ctx, "commit", ports.WithAttribute("transaction", tx.ID.String()))
	defer span.End()

	for _, op := range tx.Ops {
		if !domain.IsProjectPath(op.Path) {
			return e.commitFailed(span, tx, nil, zerr.With(domain.ErrUnsafePath, "path", op.Path))
		}
	}

	swapped := make([]string, 0, len(tx.Ops))
	for _, op := range tx.Ops {
		if e.beforeSwap != nil {
			if err := e.beforeSwap(op); err != nil {
				return e.commitFailed(span, tx, swapped, err)
			}
		}
		if err := apply(tx.Root, op); err != nil {
			return e.commitFailed(span, tx, swapped, err)
		}
		swapped = append(swapped, op.Path)
	}

	if err := e.store.Save(tx.Root, tx.Next); err != nil {
		return e.commitFailed(span, tx, swapped, err)
	}
	if err := tx.Transition(domain.TxCommitted); err != nil {
		return err
	}

	for _, op := range tx.Ops {
		if op.Kind == domain.OpDelete {
			prune(tx.Root, path.Dir(op.Path))
		}
	}
	if err := os.RemoveAll(tx.StagingDir); err != nil {
		e.logger.Warn("failed to remove staging directory " + tx.StagingDir + ": " + err.Error())
	}
	span.SetAttribute("swapped", len(swapped))
	return nil
}

// Rollback discards the staging directory. Live files and the lockfile are
// never touched before commit, so nothing else needs undoing.
func (e *Engine) Rollback(tx *domain.Transaction) error {
	if err := tx.Transition(domain.TxRolledBack); err != nil {
		return err
	}
	if tx.StagingDir == "" {
		return nil
	}
	if err := os.RemoveAll(tx.StagingDir); err != nil {
		return fsError(err, "failed to remove staging directory", tx.StagingDir)
	}
	return nil
}

func (e *Engine) commitFailed(span ports.Span, tx *domain.Transaction, swapped []string, cause error) error {
	var err error = zerr.With(errors.Join(domain.ErrCommitFailed, cause), "transaction", tx.ID.String())
	err = zerr.With(err, "swapped", swapped)
	err = zerr.With(err, "staging", tx.StagingDir)
	span.RecordError(err)
	return err
}

// apply performs one commit step.
func apply(root string, op domain.FileOp) error {
	if !domain.IsProjectPath(op.Path) {
		return zerr.With(domain.ErrUnsafePath, "path", op.Path)
	}
	target := filepath.Join(root, filepath.FromSlash(op.Path))
	switch op.Kind {
	case domain.OpWrite, domain.OpMerge:
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", op.Path)
		}
		if err := os.Rename(op.Staged, target); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to move staged file into place"), "path", op.Path)
		}
	case domain.OpDelete:
		if err := os.Remove(target); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return zerr.With(zerr.Wrap(err, "failed to delete file"), "path", op.Path)
		}
	}
	return nil
}

// prune removes dir and its parents while they are empty, stopping at the
// project's working directory.
func prune(root, dir string) {
	for dir != "." && dir != domain.CompakDirName && dir != path.Join(domain.CompakDirName, domain.PackagesDirName) {
		if os.Remove(filepath.Join(root, filepath.FromSlash(dir))) != nil {
			return
		}
		dir = path.Dir(dir)
	}
}
