package verify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangyou/bvm/internal/testutil"
	"github.com/liangyou/bvm/pkg/models"
)

var fixedNow = time.Date(2024, time.August, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(opts ...Option) *Verifier {
	v := New(opts...)
	v.now = func() time.Time { return fixedNow }
	return v
}

func TestVerifySuccessPopulatesMetadata(t *testing.T) {
	t.Parallel()

	path := testutil.ValidBlender(t, t.TempDir(), "4.2.0", "a51f293548ad")
	v := newTestVerifier()

	got, err := v.Verify(context.Background(), models.Installation{Path: path, IsActive: true})
	require.NoError(t, err)
	assert.True(t, got.IsValid)
	assert.True(t, got.IsActive, "verification must not touch the active flag")
	assert.Equal(t, "4.2.0", got.Version)
	assert.Equal(t, "4.2", got.BigVersion)
	assert.Equal(t, "a51f293548ad", got.BuildHash)
	assert.Equal(t, "2024-07-16 06:29:21", got.BuildDate)
	assert.Equal(t, fixedNow, got.VerifiedAt)
}

func TestVerifyIsIdempotentForUnchangedBinary(t *testing.T) {
	t.Parallel()

	path := testutil.ValidBlender(t, t.TempDir(), "3.6.5", "bbbb2222")
	v := newTestVerifier()

	first, err := v.Verify(context.Background(), models.Installation{Path: path})
	require.NoError(t, err)
	second, err := v.Verify(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVerifyFirstBannerWins(t *testing.T) {
	t.Parallel()

	path := testutil.FakeBlender(t, t.TempDir(),
		testutil.Banner("4.2.0", "first111"),
		testutil.Banner("4.1.0", "second22"),
	)
	got, err := newTestVerifier().Verify(context.Background(), models.Installation{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "4.2.0", got.Version)
	assert.Equal(t, "first111", got.BuildHash)
}

func TestVerifyMissingPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	v := newTestVerifier()

	_, err := v.Verify(context.Background(), models.Installation{Path: filepath.Join(dir, "blender")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = v.Verify(context.Background(), models.Installation{Path: dir})
	assert.ErrorIs(t, err, ErrNotFound, "a directory is not an executable")
}

// 失败的校验会清空上一次成功时的显示字段，不保留旧的版本信息。
func TestVerifyFailureClearsStaleMetadata(t *testing.T) {
	t.Parallel()

	path := testutil.FakeBlender(t, t.TempDir(), "Blender quit")
	stale := models.Installation{
		Path:       path,
		Version:    "4.2.0",
		BigVersion: "4.2",
		BuildHash:  "a51f293548ad",
		BuildDate:  "2024-07-16",
		IsValid:    true,
		VerifiedAt: fixedNow,
	}

	got, err := newTestVerifier().Verify(context.Background(), stale)
	require.ErrorIs(t, err, ErrInvalid)
	assert.False(t, got.IsValid)
	assert.Empty(t, got.Version)
	assert.Empty(t, got.BigVersion)
	assert.Empty(t, got.BuildHash)
	assert.Empty(t, got.BuildDate)
	assert.True(t, got.VerifiedAt.IsZero())
	assert.Equal(t, path, got.Path)
}

func TestVerifyBannerOnStderrAndNonZeroExit(t *testing.T) {
	t.Parallel()

	path := testutil.Script(t, t.TempDir(), `
echo "Read prefs: failed" 1>&2
echo "`+testutil.Banner("4.0.2", "9be62e85b727")+`" 1>&2
exit 3
`)
	got, err := newTestVerifier().Verify(context.Background(), models.Installation{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "4.0.2", got.Version)
}

func TestVerifyPassesBatchArguments(t *testing.T) {
	t.Parallel()

	path := testutil.Script(t, t.TempDir(), `
if [ "$1" = "-b" ] && [ "$2" = "--factory-startup" ]; then
  echo "`+testutil.Banner("4.2.0", "abcd1234")+`"
fi
`)
	_, err := newTestVerifier().Verify(context.Background(), models.Installation{Path: path})
	require.NoError(t, err)

	_, err = newTestVerifier(WithArgs("--version")).Verify(context.Background(), models.Installation{Path: path})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifySpawnFailureIsInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	notExecutable := filepath.Join(dir, "blender")
	require.NoError(t, os.WriteFile(notExecutable, []byte("#!/bin/sh\necho hi\n"), 0o644))

	_, err := newTestVerifier().Verify(context.Background(), models.Installation{Path: notExecutable})
	assert.ErrorIs(t, err, ErrInvalid)

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte{0x00, 0x01, 0x02, 0x03}, 0o755))
	_, err = newTestVerifier().Verify(context.Background(), models.Installation{Path: garbage})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyOutputIsBounded(t *testing.T) {
	t.Parallel()

	path := testutil.Script(t, t.TempDir(), `
i=0
while [ $i -lt 200 ]; do echo "padding line $i"; i=$((i+1)); done
echo "`+testutil.Banner("4.2.0", "abcd1234")+`"
`)
	_, err := newTestVerifier(WithMaxOutput(256)).Verify(context.Background(), models.Installation{Path: path})
	assert.ErrorIs(t, err, ErrInvalid)

	got, err := newTestVerifier().Verify(context.Background(), models.Installation{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "abcd1234", got.BuildHash)
}

func TestVerifyTimeoutIsInvalid(t *testing.T) {
	t.Parallel()

	path := testutil.HangingBlender(t, t.TempDir())
	v := newTestVerifier(WithTimeout(300 * time.Millisecond))

	start := time.Now()
	got, err := v.Verify(context.Background(), models.Installation{Path: path})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid), err.Error())
	assert.True(t, errors.Is(err, ErrTimeout), err.Error())
	assert.False(t, got.IsValid)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestVerifyCallerCancellation(t *testing.T) {
	t.Parallel()

	path := testutil.HangingBlender(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := newTestVerifier(WithTimeout(10 * time.Second)).Verify(ctx, models.Installation{Path: path})
	require.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	v := New()
	assert.Equal(t, 3*time.Second, v.timeout)
	assert.Equal(t, "-b --factory-startup", strings.Join(v.args, " "))
	assert.IsType(t, BlenderMatcher{}, v.matcher)

	v = FromConfig(models.Config{VerifyTimeout: time.Second, MaxOutput: 10}, nil)
	assert.Equal(t, time.Second, v.timeout)
	assert.Equal(t, 10, v.maxOutput)
}

func TestVerifyLogsTerminateFailure(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	path := testutil.ValidBlender(t, t.TempDir(), "4.2.0", "a51f293548ad")

	v := newTestVerifier(WithLogger(logger))
	_, err := v.Verify(context.Background(), models.Installation{Path: path})
	require.NoError(t, err)
	assert.Empty(t, logs.String(), "reaped process group is not a termination failure")

	v.kill = func(*exec.Cmd) error { return errors.New("operation not permitted") }
	got, err := v.Verify(context.Background(), models.Installation{Path: path})
	require.NoError(t, err)
	assert.True(t, got.IsValid)
	assert.Contains(t, logs.String(), "terminate probe")
	assert.Contains(t, logs.String(), "operation not permitted")
}
