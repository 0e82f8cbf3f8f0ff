package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDatasource struct {
	pingErrs []error
	pings    int
	closed   int
}

func (f *fakeDatasource) Query(context.Context, string, []any, int) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}

func (f *fakeDatasource) Ping(context.Context) error {
	f.pings++
	if len(f.pingErrs) >= f.pings {
		return f.pingErrs[f.pings-1]
	}
	return nil
}

func (f *fakeDatasource) Close() error                                        { f.closed++; return nil }
func (f *fakeDatasource) ListTables(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeDatasource) Dialect() string                                     { return "postgres" }

func registerFake(t *testing.T, typ string, ds *fakeDatasource) {
	t.Helper()
	Register(AdapterRegistration{
		Info: AdapterInfo{Type: typ, DisplayName: "Fake", Dialect: "postgres"},
		Factory: func(context.Context, Config) (Datasource, error) {
			return ds, nil
		},
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, typ)
		registryMu.Unlock()
	})
}

func TestOpen_RetriesTransientPingFailure(t *testing.T) {
	ds := &fakeDatasource{pingErrs: []error{errors.New("dial tcp: connection refused")}}
	registerFake(t, "fake-transient", ds)

	got, err := Open(context.Background(), "fake-transient", Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, ds, got)
	assert.Equal(t, 2, ds.pings)
	assert.Equal(t, 1, ds.closed, "failed attempt must release its connection")
}

func TestOpen_PermanentFailureNotRetried(t *testing.T) {
	ds := &fakeDatasource{pingErrs: []error{errors.New("password authentication failed")}}
	registerFake(t, "fake-auth", ds)

	_, err := Open(context.Background(), "fake-auth", Config{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open fake-auth datasource")
	assert.Equal(t, 1, ds.pings)
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(context.Background(), "oracle", Config{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not compiled in")
}

func TestRegisteredAdapters_Sorted(t *testing.T) {
	registerFake(t, "zz-fake", &fakeDatasource{})
	registerFake(t, "aa-fake", &fakeDatasource{})

	assert.True(t, IsRegistered("zz-fake"))
	infos := RegisteredAdapters()
	for i := 1; i < len(infos); i++ {
		assert.LessOrEqual(t, infos[i-1].Type, infos[i].Type)
	}
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, MaxQueryLimit, EffectiveLimit(0))
	assert.Equal(t, MaxQueryLimit, EffectiveLimit(-3))
	assert.Equal(t, MaxQueryLimit, EffectiveLimit(MaxQueryLimit+1))
	assert.Equal(t, 25, EffectiveLimit(25))
}
