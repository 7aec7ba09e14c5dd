package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSecretCachesCLILookups(t *testing.T) {
	calls := 0
	var gotArgs []string
	client := NewDopplerClient("onboarding", "prd").WithRunner(func(ctx context.Context, args ...string) ([]byte, error) {
		calls++
		gotArgs = args
		return []byte("s3cret\n"), nil
	})

	value, err := client.GetSecret("REGTANK_TEST_ONLY_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	value, err = client.GetSecret("REGTANK_TEST_ONLY_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"secrets", "get", "REGTANK_TEST_ONLY_SECRET", "--project", "onboarding", "--config", "prd", "--plain"}, gotArgs)
}

func TestGetSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("REGTANK_TEST_ONLY_SECRET", "from-env")
	client := NewDopplerClient("onboarding", "dev").WithRunner(func(ctx context.Context, args ...string) ([]byte, error) {
		t.Fatal("cli should not be called")
		return nil, nil
	})

	assert.Equal(t, "from-env", client.GetSecretWithFallback("REGTANK_TEST_ONLY_SECRET", "fallback"))
}

func TestGetSecretWithFallbackOnError(t *testing.T) {
	client := NewDopplerClient("onboarding", "dev").WithRunner(func(ctx context.Context, args ...string) ([]byte, error) {
		return nil, errors.New("not logged in")
	})

	assert.Equal(t, "fallback", client.GetSecretWithFallback("REGTANK_TEST_ONLY_SECRET", "fallback"))
}
