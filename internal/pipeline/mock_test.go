package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/clearcoast/claims-cli/pkg/codesearch"
	"github.com/clearcoast/claims-cli/pkg/judge"
)

// --- Judge Mock ---

type mockJudge struct {
	mock.Mock
}

func (m *mockJudge) Complete(ctx context.Context, req judge.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// --- Codesearch Mock ---

type mockCodeSearch struct {
	mock.Mock
}

func (m *mockCodeSearch) Search(ctx context.Context, vocab codesearch.Vocabulary, query string) ([]codesearch.Candidate, error) {
	args := m.Called(ctx, vocab, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]codesearch.Candidate), args.Error(1)
}
