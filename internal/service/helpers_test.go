package service

import (
	"context"
	"errors"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// mockTx satisfies pgx.Tx for services whose repositories are mocked.
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// failingCommitTx is a mockTx whose commit is lost.
type failingCommitTx struct{ mockTx }

func (f *failingCommitTx) Commit(_ context.Context) error {
	return errors.New("connection lost on commit")
}
