package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/pack"
)

// Result carries the outcome of an operation run off the caller's goroutine
type Result[T any] struct {
	Value T
	Err   error
}

// runAsync runs fn on its own goroutine and delivers exactly one result on the
// returned buffered channel. A context cancelled before fn starts skips it.
func runAsync[T any](ctx context.Context, op string, fn func(ctx context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("operation", op).Msg("Background operation panicked")
				var zero T
				out <- Result[T]{Value: zero, Err: domain.NewAppError(domain.ErrInternal, op+" failed unexpectedly", 500, nil)}
			}
		}()

		if err := ctx.Err(); err != nil {
			var zero T
			out <- Result[T]{Value: zero, Err: err}
			return
		}
		v, err := fn(ctx)
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}

// ImportPackAsync runs ImportPack in the background
func (a *App) ImportPackAsync(ctx context.Context, archivePath string, opts pack.ImportOptions) <-chan Result[*domain.InstalledPack] {
	return runAsync(ctx, "import", func(ctx context.Context) (*domain.InstalledPack, error) {
		return a.ImportPack(ctx, archivePath, opts)
	})
}

// BackupAsync runs Backup in the background
func (a *App) BackupAsync(ctx context.Context, dest string) <-chan Result[*domain.BackupManifest] {
	return runAsync(ctx, "backup", func(ctx context.Context) (*domain.BackupManifest, error) {
		return a.Backup(ctx, dest)
	})
}

// RestoreAsync runs Restore in the background
func (a *App) RestoreAsync(ctx context.Context, archivePath string) <-chan Result[*domain.RestoreResult] {
	return runAsync(ctx, "restore", func(ctx context.Context) (*domain.RestoreResult, error) {
		return a.Restore(ctx, archivePath)
	})
}

// ValidateOrderAsync runs ValidateOrder in the background
func (a *App) ValidateOrderAsync(ctx context.Context, orderNumber, packID string) <-chan Result[domain.LicenseValidation] {
	return runAsync(ctx, "validate order", func(ctx context.Context) (domain.LicenseValidation, error) {
		return a.ValidateOrder(ctx, orderNumber, packID), nil
	})
}
