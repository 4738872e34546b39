package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCheckCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account","client_email":"bot@proj.iam.gserviceaccount.com","project_id":"proj"}`), 0600))

	sa, err := CheckCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "bot@proj.iam.gserviceaccount.com", sa.ClientEmail)
	assert.Equal(t, "proj", sa.ProjectID)

	other := filepath.Join(dir, "client.json")
	require.NoError(t, os.WriteFile(other, []byte(`{"installed":{}}`), 0600))
	_, err = CheckCredentials(other)
	assert.Error(t, err)

	_, err = CheckCredentials(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestOAuthConfigForcesLocalRedirect(t *testing.T) {
	dir := t.TempDir()
	secret := `{"installed":{"client_id":"id","client_secret":"secret","redirect_uris":["http://localhost"],
		"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClientSecretsFile), []byte(secret), 0600))

	a := &Authenticator{ConfigDir: dir}
	cfg, err := a.OAuthConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:"+LocalhostAuthPort, cfg.RedirectURL)
	assert.ElementsMatch(t, Scopes, cfg.Scopes)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", TokenFile)
	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	tok, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
}
