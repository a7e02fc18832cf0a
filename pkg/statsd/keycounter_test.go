package statsd

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsagg/internal/fixtures"
)

func TestKeyCounterFlushTopKeys(t *testing.T) {
	t.Parallel()
	kc := NewKeyCounter(time.Second, 50, "", fixtures.NewTestLogger(t))
	out := new(bytes.Buffer)
	kc.stdout = out

	kc.Observe([]string{"a", "b", "b", "c", "c", "c"})
	kc.Observe([]string{"d"})

	now := time.Date(2020, time.March, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, kc.Flush(now))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Wed Mar 04 2020 05:06:07 GMT+0000 (UTC) count=3 key=c", lines[0])
	assert.Equal(t, "Wed Mar 04 2020 05:06:07 GMT+0000 (UTC) count=2 key=b", lines[1])
}

func TestKeyCounterTieBreakAndRoundUp(t *testing.T) {
	t.Parallel()
	kc := NewKeyCounter(time.Second, 10, "", fixtures.NewTestLogger(t))
	out := new(bytes.Buffer)
	kc.stdout = out

	kc.Observe([]string{"z", "y", "x"})
	require.NoError(t, kc.Flush(time.Unix(0, 0).UTC()))
	assert.True(t, strings.HasSuffix(out.String(), " count=1 key=x\n"))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestKeyCounterFlushClears(t *testing.T) {
	t.Parallel()
	kc := NewKeyCounter(time.Second, 100, "", fixtures.NewTestLogger(t))
	out := new(bytes.Buffer)
	kc.stdout = out

	kc.Observe([]string{"a"})
	require.NoError(t, kc.Flush(time.Unix(0, 0).UTC()))
	out.Reset()
	require.NoError(t, kc.Flush(time.Unix(0, 0).UTC()))
	assert.Empty(t, out.String())
}

func TestKeyCounterAppendsToLog(t *testing.T) {
	t.Parallel()
	dir, err := ioutil.TempDir("", "keycounter")
	require.NoError(t, err)
	logPath := filepath.Join(dir, "keys.log")

	kc := NewKeyCounter(time.Second, 100, logPath, fixtures.NewTestLogger(t))
	kc.Observe([]string{"a"})
	require.NoError(t, kc.Flush(time.Unix(0, 0).UTC()))
	kc.Observe([]string{"b"})
	require.NoError(t, kc.Flush(time.Unix(0, 0).UTC()))

	data, err := ioutil.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "key=a"))
	assert.True(t, strings.HasSuffix(lines[1], "key=b"))
}
