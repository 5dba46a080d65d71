package graph

import (
	"context"
	"strings"
	"sync"
)

// MemoryClient is an in-memory Session used to unit test the writer, reader
// and schema catalog without a running graph database.
//
// Queries are answered from canned results registered with OnQuery, matched
// by exact statement text (case-insensitive). Mutations succeed unless a
// failure rule registered with FailMutationsContaining matches.
type MemoryClient struct {
	mu        sync.Mutex
	mutations []string
	queries   []string
	results   map[string]Result
	queryErrs map[string]error
	failRules []failRule
	mutErr    error
	affected  int64
	closed    bool
}

type failRule struct {
	substr string
	err    error
}

// NewMemoryClient returns a client whose mutations report affected rows as
// unknown (-1), matching NebulaGraph.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		results:   make(map[string]Result),
		queryErrs: make(map[string]error),
		affected:  -1,
	}
}

// OnQuery registers the result returned for stmt.
func (m *MemoryClient) OnQuery(stmt string, res Result) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[normalizeStmt(stmt)] = res
	return m
}

// OnQueryError makes stmt fail with err.
func (m *MemoryClient) OnQueryError(stmt string, err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErrs[normalizeStmt(stmt)] = err
	return m
}

// FailMutationsContaining rejects every mutation whose text contains substr.
func (m *MemoryClient) FailMutationsContaining(substr string, err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRules = append(m.failRules, failRule{substr: substr, err: err})
	return m
}

// WithMutationError fails every mutation with err.
func (m *MemoryClient) WithMutationError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutErr = err
	return m
}

// WithAffected sets the rows-affected count reported by successful mutations.
func (m *MemoryClient) WithAffected(n int64) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.affected = n
	return m
}

func (m *MemoryClient) ExecuteMutation(_ context.Context, stmt string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mutations = append(m.mutations, stmt)
	if m.mutErr != nil {
		return 0, m.mutErr
	}
	for _, r := range m.failRules {
		if strings.Contains(stmt, r.substr) {
			return 0, r.err
		}
	}
	return m.affected, nil
}

func (m *MemoryClient) ExecuteQuery(_ context.Context, stmt string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, stmt)
	key := normalizeStmt(stmt)
	if err, ok := m.queryErrs[key]; ok {
		return Result{}, err
	}
	return m.results[key], nil
}

func (m *MemoryClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Mutations returns a copy of every mutation statement executed, in order.
func (m *MemoryClient) Mutations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.mutations...)
}

// Queries returns a copy of every query statement executed, in order.
func (m *MemoryClient) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Closed reports whether Close was called.
func (m *MemoryClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func normalizeStmt(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
