package secretmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvideVaultDisabledWithoutAddr(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	client, err := ProvideVault()
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestProvideVault(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("VAULT_TOKEN", "dev-only-token")
	client, err := ProvideVault()
	require.NoError(t, err)
	require.NotNil(t, client)
}
