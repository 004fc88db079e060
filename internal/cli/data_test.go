package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestData_SetGetRemove(t *testing.T) {
	dir := t.TempDir()

	out, _, err := executeRoot(t, "--store", dir, "data", "set", "mail/config/G", `{"guild_id":"G","tickets":[]}`)
	require.NoError(t, err)
	assert.Equal(t, "wrote mail/config/G (cache=true file=true)\n", out)

	out, _, err = executeRoot(t, "--store", dir, "data", "get", "mail/config/G")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"guild_id\": \"G\",\n  \"tickets\": []\n}\n", out)

	out, _, err = executeRoot(t, "--store", dir, "data", "rm", "mail/config/G")
	require.NoError(t, err)
	assert.Contains(t, out, "removed mail/config/G")

	_, _, err = executeRoot(t, "--store", dir, "data", "get", "mail/config/G")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "document not found")

	_, _, err = executeRoot(t, "--store", dir, "data", "rm", "mail/config/G")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestData_SetRejectsInvalidJSON(t *testing.T) {
	_, _, err := executeRoot(t, "--store", t.TempDir(), "data", "set", "bot/config", `{dev:true`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestData_GetJSON(t *testing.T) {
	dir := t.TempDir()
	_, _, err := executeRoot(t, "--store", dir, "data", "set", "command/ping", `{"reply":"Hi"}`)
	require.NoError(t, err)

	out, _, err := executeRoot(t, "--store", dir, "--format", "json", "data", "get", "command/ping")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   DocumentResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "command/ping", resp.Data.ID)
	assert.JSONEq(t, `{"reply":"Hi"}`, string(resp.Data.Value))
}

func TestData_List(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"mail/archive/G/20", "mail/archive/G/10", "mail/config/G", "bot/config"} {
		_, _, err := executeRoot(t, "--store", dir, "data", "set", id, `{}`)
		require.NoError(t, err)
	}

	out, _, err := executeRoot(t, "--store", dir, "data", "ls", "mail")
	require.NoError(t, err)
	assert.Equal(t, "mail/archive/G/10\nmail/archive/G/20\nmail/config/G\n", out)

	out, _, err = executeRoot(t, "--store", dir, "--format", "json", "data", "ls", "mail/archive/G")
	require.NoError(t, err)
	var resp struct {
		Data ListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"mail/archive/G/10", "mail/archive/G/20"}, resp.Data.IDs)
}

func TestData_ListMissingDirectory(t *testing.T) {
	_, _, err := executeRoot(t, "--store", t.TempDir(), "data", "ls", "nothing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "directory not found")
}

func TestData_SQLiteStore(t *testing.T) {
	dsn := "sqlite://" + t.TempDir() + "/bot.db"

	_, _, err := executeRoot(t, "--store", dsn, "data", "set", "bot/config", `{"mail_interval":30}`)
	require.NoError(t, err)

	out, _, err := executeRoot(t, "--store", dsn, "data", "ls", "bot")
	require.NoError(t, err)
	assert.Equal(t, "bot/config\n", out)
}
