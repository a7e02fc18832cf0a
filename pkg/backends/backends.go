package backends

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/util"
	"github.com/atlassian/statsagg/pkg/backends/console"
	"github.com/atlassian/statsagg/pkg/backends/graphite"
	"github.com/atlassian/statsagg/pkg/backends/null"
	"github.com/atlassian/statsagg/pkg/backends/redis"
)

// All known backends.
var backends = map[string]statsagg.BackendInitFunc{
	console.BackendName:  console.Init,
	graphite.BackendName: graphite.Init,
	null.BackendName:     null.Init,
	redis.BackendName:    redis.Init,
}

// Names returns the names of all known backends.
func Names() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitBackend initialises the named backend and subscribes it to p. The backend receives the
// section of v named after it. An unknown name, or a backend failing to initialise, is an error.
func InitBackend(name string, startup time.Time, v *viper.Viper, logger logrus.FieldLogger, p statsagg.Publisher) error {
	f, found := backends[name]
	if !found {
		return fmt.Errorf("unknown backend %q", name)
	}
	logger = logger.WithField("backend", name)
	if err := f(startup, util.GetSubViper(v, name), logger, p); err != nil {
		return fmt.Errorf("could not init backend %q: %v", name, err)
	}
	logger.Info("Initialised backend")
	return nil
}
