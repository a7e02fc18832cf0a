package statsagg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	t.Parallel()
	input := map[string]string{
		"my metric/name!":      "my_metric-name",
		"foo.bar":              "foo.bar",
		"a  \t b":              "a_b",
		"a/b/c":                "a-b-c",
		"gorets-1_2.x":         "gorets-1_2.x",
		"ünïcödé":              "ncd",
		"":                     "",
		" ! ":                  "__",
		"x.minutely":           "x.minutely",
		"#$%^&*()[]{}<>?;'\"": "",
	}
	for raw, expected := range input {
		assert.Equal(t, expected, SanitizeKey(raw), raw)
	}
}

func TestSanitizeKeyIdempotent(t *testing.T) {
	t.Parallel()
	input := []string{
		"my metric/name!",
		"  leading and trailing  ",
		"tabs\tand\nnewlines",
		"slashes//and\\backslashes",
		"mixed ünïcödé / ✓ keys",
		"already.clean-key_1",
	}
	for _, raw := range input {
		once := SanitizeKey(raw)
		assert.Equal(t, once, SanitizeKey(once), raw)
	}
}
