package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSecretsRoundTrip verifies encrypt-then-decrypt recovers the secrets
// and the file lands with 0600 permissions.
func TestSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"AGENT_API_KEY": "sk-test-12345",
		"OTHER_TOKEN":   "xyz",
	}

	require.NoError(t, EncryptSecretsFile(dir, "correct horse", secrets))
	assert.True(t, SecretsFileExists(dir))

	info, err := os.Stat(SecretsFilePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := DecryptSecretsFile(dir, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

// TestSecretsWrongPassword verifies the error does not distinguish a wrong
// password from a corrupted file.
func TestSecretsWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "right", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(dir, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

// TestSecretsPermissionRepair verifies loose permissions are tightened
// before the file is read.
func TestSecretsPermissionRepair(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"K": "v"}))
	require.NoError(t, os.Chmod(SecretsFilePath(dir), 0o644))

	_, err := DecryptSecretsFile(dir, "pw")
	require.NoError(t, err)

	info, err := os.Stat(SecretsFilePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// TestSecretsTruncatedFile verifies a file too short to hold the header is
// rejected before any crypto work.
func TestSecretsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(SecretsFilePath(dir), []byte("tiny"), 0o600))

	_, err := DecryptSecretsFile(dir, "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted or invalid format")
}

// TestSecretsMissingFile verifies decryption of an absent file reports the
// stat failure.
func TestSecretsMissingFile(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, SecretsFileExists(dir))

	_, err := DecryptSecretsFile(dir, "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat secrets file")
}

// TestGetSecretPrecedence verifies the in-memory store wins over the
// environment, and the environment backs it up.
func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("DEMO_SECRET", "from-env")

	val, err := GetSecret("DEMO_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)

	SetDecryptedSecrets(map[string]string{"DEMO_SECRET": "from-store"})
	val, err = GetSecret("DEMO_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-store", val)
}

// TestGetSecretEmptyStoreValue verifies an empty stored value falls through
// to the environment.
func TestGetSecretEmptyStoreValue(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"DEMO_SECRET": ""})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("DEMO_SECRET", "from-env")

	val, err := GetSecret("DEMO_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)
}

// TestGetSecretMissing verifies the not-found error names the secret.
func TestGetSecretMissing(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Setenv("NO_SUCH_SECRET", "")

	_, err := GetSecret("NO_SUCH_SECRET")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NO_SUCH_SECRET not found")
}

// TestSecretMutation verifies in-memory set, list, and delete.
func TestSecretMutation(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	assert.Empty(t, GetDecryptedSecretNames())

	SetSecret("A", "1")
	SetSecret("B", "2")
	names := GetDecryptedSecretNames()
	assert.ElementsMatch(t, []string{"A", "B"}, names)

	DeleteSecret("A")
	assert.Equal(t, []string{"B"}, GetDecryptedSecretNames())
}
