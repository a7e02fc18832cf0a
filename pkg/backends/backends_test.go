package backends

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/fixtures"
)

type recordingPublisher struct {
	flush  []string
	status []string
}

func (p *recordingPublisher) OnFlush(backend string, h statsagg.FlushHandler) {
	p.flush = append(p.flush, backend)
}

func (p *recordingPublisher) OnStatus(backend string, h statsagg.StatusHandler) {
	p.status = append(p.status, backend)
}

func TestNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"console", "graphite", "null", "redis"}, Names())
}

func TestInitBackendUnknown(t *testing.T) {
	t.Parallel()
	p := &recordingPublisher{}
	err := InitBackend("nope", time.Now(), viper.New(), fixtures.NewTestLogger(t), p)
	require.Error(t, err)
	assert.Empty(t, p.flush)
}

func TestInitBackendSubscribes(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"console", "graphite", "null"} {
		p := &recordingPublisher{}
		require.NoError(t, InitBackend(name, time.Now(), viper.New(), fixtures.NewTestLogger(t), p), name)
		assert.Equal(t, []string{name}, p.flush, name)
	}
}

func TestInitBackendInvalidConfig(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("graphite", map[string]interface{}{"mode": "tags"})
	err := InitBackend("graphite", time.Now(), v, fixtures.NewTestLogger(t), &recordingPublisher{})
	assert.Error(t, err)
}
