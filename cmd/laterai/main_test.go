package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laterai/internal/config"
	"laterai/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCMD()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_LoginCaptureList(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BADGERDB_PATH", t.TempDir())
	t.Setenv("LOG_LEVEL", "panic")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := run(t, "capture", "--text", "hello")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	out, err := run(t, "signup", "--email", "me@example.com", "--password", "long enough")
	require.NoError(t, err)
	assert.Contains(t, out, "Created account me@example.com")

	_, err = run(t, "login", "--email", "me@example.com", "--password", "long enough")
	require.NoError(t, err)

	out, err = run(t, "capture", "--text", "remember the milk", "--title", "Groceries")
	require.NoError(t, err)
	assert.Contains(t, out, `"Groceries"`)

	out, err = run(t, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Groceries")
	id := strings.Fields(lines[1])[0]

	out, err = run(t, "star", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Starred "+id)

	out, err = run(t, "list", "--starred")
	require.NoError(t, err)
	assert.Contains(t, out, "Groceries")

	_, err = run(t, "delete", id)
	require.NoError(t, err)
	_, err = run(t, "delete", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = run(t, "logout")
	require.NoError(t, err)
	_, err = run(t, "list")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCLI_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "list")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestNewLogger(t *testing.T) {
	log := newLogger(config.Config{LogLevel: "debug", LogFormat: "text"}, os.Stderr)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	log = newLogger(config.Config{LogLevel: "loud"}, os.Stderr)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

func TestPrintItems(t *testing.T) {
	var out bytes.Buffer
	printItems(&out, []domain.SavedItem{{
		ID: "i1", Title: "Go", Category: domain.CategoryTechnology, Tags: []string{"go", "lang"}, IsStarred: true,
	}})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"i1", "*", "Technology", "Go", "go,lang"}, strings.Fields(lines[1]))
}
