package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	fb, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	return store.New(fb)
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// Tests in this file share the mock keyring and must not run in parallel.

func TestResolve_Precedence(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	st := newStore(t)
	p := &Provider{Store: st, Getenv: envMap(map[string]string{EnvAPIKey: " env-key "})}

	key, src, err := p.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
	assert.Equal(t, SourceEnv, src)

	require.NoError(t, st.SaveSecretKey(ctx, "file-key"))
	key, src, err = p.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)
	assert.Equal(t, SourceFile, src)

	require.NoError(t, keyring.Set(KeyringService, KeyringAPIKey, "ring-key"))
	key, src, err = p.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ring-key", key)
	assert.Equal(t, SourceKeyring, src)

	p.DisableKeyring = true
	_, src, err = p.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceFile, src)
}

func TestResolve_MissingIsAuthError(t *testing.T) {
	keyring.MockInit()
	p := &Provider{Store: newStore(t), Getenv: envMap(nil)}
	_, _, err := p.Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthentication(err))
}

func TestSetAndClear(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	st := newStore(t)
	p := &Provider{Store: st, Getenv: envMap(nil)}

	src, err := p.Set(ctx, "  new-key ")
	require.NoError(t, err)
	assert.Equal(t, SourceKeyring, src)
	key, _, err := p.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-key", key)

	_, err = p.Set(ctx, " ")
	assert.True(t, core.IsValidation(err))

	require.NoError(t, st.SaveSecretKey(ctx, "file-key"))
	require.NoError(t, p.Clear(ctx))
	_, _, err = p.Resolve(ctx)
	assert.True(t, core.IsAuthentication(err))
}

func TestSet_FallsBackToFileWhenKeyringFails(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)
	ctx := context.Background()
	st := newStore(t)
	p := &Provider{Store: st, Getenv: envMap(nil)}

	src, err := p.Set(ctx, "disk-key")
	require.NoError(t, err)
	assert.Equal(t, SourceFile, src)

	key, src, err := p.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "disk-key", key)
	assert.Equal(t, SourceFile, src)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", Mask("abcd"))
	assert.Equal(t, "*****6789", Mask("012346789"))
}
