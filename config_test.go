package eventproc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	o := DefaultOptions()
	o.Namespace = "ns"
	o.EventHubName = "hub"
	o.ConsumerGroup = "group"

	return o
}

func TestDefaultOptionsValidate(t *testing.T) {
	o := validOptions()
	require.NoError(t, o.Validate())
}

func TestValidateRequiresScope(t *testing.T) {
	o := validOptions()
	o.Namespace = ""
	assert.Error(t, o.Validate())

	o = validOptions()
	o.EventHubName = ""
	assert.Error(t, o.Validate())

	o = validOptions()
	o.ConsumerGroup = ""
	assert.Error(t, o.Validate())
}

func TestValidateRejectsNonPositiveUpdateInterval(t *testing.T) {
	o := validOptions()
	o.UpdateInterval = 0
	assert.Error(t, o.Validate())
}

func TestValidateEnforcesExpirationMargin(t *testing.T) {
	o := validOptions()
	o.UpdateInterval = 10 * time.Second
	o.OwnershipExpiration = 20 * time.Second // < 3x
	assert.Error(t, o.Validate())

	o.OwnershipExpiration = 30 * time.Second // == 3x, allowed
	assert.NoError(t, o.Validate())
}

func TestSetDefaultsFillsZeroFields(t *testing.T) {
	o := Options{Namespace: "ns", EventHubName: "hub", ConsumerGroup: "group"}
	o.setDefaults()

	assert.Equal(t, DefaultOptions().UpdateInterval, o.UpdateInterval)
	assert.Equal(t, DefaultOptions().OwnershipExpiration, o.OwnershipExpiration)
	assert.Equal(t, DefaultOptions().Reader.PrefetchCount, o.Reader.PrefetchCount)
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.warnings = append(l.warnings, msg)
}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Fatal(string, ...any) {}

func TestValidateWithWarningsBelowRecommendedMargin(t *testing.T) {
	o := validOptions()
	o.UpdateInterval = 10 * time.Second
	o.OwnershipExpiration = 30 * time.Second // meets hard minimum, below recommended 5x

	l := &recordingLogger{}
	o.ValidateWithWarnings(l)
	assert.Len(t, l.warnings, 1)
}

func TestValidateWithWarningsAtRecommendedMargin(t *testing.T) {
	o := validOptions()
	o.UpdateInterval = 10 * time.Second
	o.OwnershipExpiration = 50 * time.Second

	l := &recordingLogger{}
	o.ValidateWithWarnings(l)
	assert.Empty(t, l.warnings)
}

func TestTestOptionsValidates(t *testing.T) {
	o := TestOptions()
	o.Namespace, o.EventHubName, o.ConsumerGroup = "ns", "hub", "group"
	require.NoError(t, o.Validate())
}
