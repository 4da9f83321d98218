package rpc

import (
	"errors"
	"testing"

	consul "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHealth はテスト用のConsulヘルスチェックAPI。
type fakeHealth struct {
	entries []*consul.ServiceEntry
	err     error
	// passingOnly は最後の呼び出しで指定された値。
	passingOnly bool
}

func (f *fakeHealth) Service(_, _ string, passingOnly bool, _ *consul.QueryOptions) ([]*consul.ServiceEntry, *consul.QueryMeta, error) {
	f.passingOnly = passingOnly
	return f.entries, &consul.QueryMeta{}, f.err
}

// TestStaticResolver はStaticResolverを検証する。
func TestStaticResolver(t *testing.T) {
	t.Parallel()

	r := StaticResolver{"auth": "http://auth:3001"}

	base, err := r.Resolve(t.Context(), "auth")
	require.NoError(t, err)
	assert.Equal(t, "http://auth:3001", base)

	_, err = r.Resolve(t.Context(), "billing")
	assert.ErrorIs(t, err, ErrUnknownService)
}

// TestConsulResolver はConsulResolverを検証する。
func TestConsulResolver(t *testing.T) {
	t.Parallel()

	t.Run("正常なインスタンスをラウンドロビンで返すこと", func(t *testing.T) {
		t.Parallel()

		health := &fakeHealth{entries: []*consul.ServiceEntry{
			{Node: &consul.Node{Address: "10.0.0.1"}, Service: &consul.AgentService{Address: "auth-1", Port: 3001}},
			{Node: &consul.Node{Address: "10.0.0.2"}, Service: &consul.AgentService{Port: 3001}},
		}}
		r := &ConsulResolver{health: health}

		first, err := r.Resolve(t.Context(), "auth")
		require.NoError(t, err)
		second, err := r.Resolve(t.Context(), "auth")
		require.NoError(t, err)
		third, err := r.Resolve(t.Context(), "auth")
		require.NoError(t, err)

		assert.Equal(t, "http://auth-1:3001", first)
		assert.Equal(t, "http://10.0.0.2:3001", second)
		assert.Equal(t, first, third)
		assert.True(t, health.passingOnly)
	})

	t.Run("インスタンスが無い場合はErrUnknownServiceが返ること", func(t *testing.T) {
		t.Parallel()

		r := &ConsulResolver{health: &fakeHealth{}}
		_, err := r.Resolve(t.Context(), "billing")
		assert.ErrorIs(t, err, ErrUnknownService)
	})

	t.Run("Consulへの問い合わせ失敗がエラーとして返ること", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection refused")
		r := &ConsulResolver{health: &fakeHealth{err: cause}}
		_, err := r.Resolve(t.Context(), "auth")
		assert.ErrorIs(t, err, cause)
	})
}
