package accounts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/priority-ride/internal/models"
)

func keys(as []models.Account) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Key)
	}
	return out
}

func TestRegistryOrderAndFillers(t *testing.T) {
	r, err := New(
		models.Account{Key: "matthew", Name: "Matthew"},
		models.Account{Key: "tomas"},
		models.Account{Key: "joshua", Name: "Joshua"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"matthew", "tomas", "joshua"}, keys(r.List()))
	assert.Equal(t, []string{"matthew", "joshua"}, keys(r.Fillers("tomas")))
	assert.Equal(t, []string{"matthew", "tomas", "joshua"}, keys(r.Fillers("nobody")))

	a, ok := r.Get("tomas")
	require.True(t, ok)
	assert.Equal(t, "tomas", a.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
	_, err = r.Lookup("missing")
	assert.True(t, errors.Is(err, ErrUnknownAccount))
	assert.Equal(t, "matthew", r.DefaultKey())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := New(models.Account{Key: "a"}, models.Account{Key: "a"})
	assert.Error(t, err)
	_, err = New(models.Account{Key: " "})
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	env := []string{
		"USER_MATTHEW_NAME=Matthew",
		"USER_MATTHEW_AUTH_TOKEN=tok-m",
		"USER_MATTHEW_USER_ID=111",
		"USER_CHARLES_NAME=Charles",
		"USER_CHARLES_AUTH_TOKEN=tok-c",
		"USER_CHARLES_USER_ID=222",
		"DEFAULT_USER=matthew",
		"PATH=/usr/bin",
	}
	r, err := FromEnv(env)
	require.NoError(t, err)
	assert.Equal(t, []string{"charles", "matthew"}, keys(r.List()))
	assert.Equal(t, "matthew", r.DefaultKey())

	m, ok := r.Get("matthew")
	require.True(t, ok)
	assert.Equal(t, "tok-m", m.Credentials.AuthToken)
	assert.Equal(t, int64(111), m.Credentials.UserID)

	r, err = FromEnv(append(env, "ACCOUNTS=matthew,charles"))
	require.NoError(t, err)
	assert.Equal(t, []string{"matthew", "charles"}, keys(r.List()))
}

func TestFromEnvErrors(t *testing.T) {
	_, err := FromEnv([]string{"USER_A_AUTH_TOKEN=t", "USER_A_USER_ID=abc"})
	assert.Error(t, err)

	_, err = FromEnv([]string{"USER_A_NAME=A", "USER_A_USER_ID=1"})
	assert.Error(t, err)

	_, err = FromEnv([]string{"USER_A_AUTH_TOKEN=t", "USER_A_USER_ID=1", "DEFAULT_USER=zed"})
	assert.True(t, errors.Is(err, ErrUnknownAccount))
}
