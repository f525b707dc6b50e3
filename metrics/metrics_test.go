package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageForwardedAndDroppedIncrementDistinctSeries(t *testing.T) {
	s := New()

	before := testutil.ToFloat64(messagesTotal.WithLabelValues("client_to_server", "forwarded"))
	s.MessageForwarded("client_to_server")
	after := testutil.ToFloat64(messagesTotal.WithLabelValues("client_to_server", "forwarded"))
	assert.Equal(t, before+1, after)

	droppedBefore := testutil.ToFloat64(messagesTotal.WithLabelValues("server_to_client", "dropped"))
	s.MessageDropped("server_to_client")
	droppedAfter := testutil.ToFloat64(messagesTotal.WithLabelValues("server_to_client", "dropped"))
	assert.Equal(t, droppedBefore+1, droppedAfter)
}

func TestObjectCreatedAndDestroyedAreLabeledByInterface(t *testing.T) {
	s := New()

	createdBefore := testutil.ToFloat64(objectsTotal.WithLabelValues("wl_surface", "created"))
	s.ObjectCreated("wl_surface")
	require.Equal(t, createdBefore+1, testutil.ToFloat64(objectsTotal.WithLabelValues("wl_surface", "created")))

	destroyedBefore := testutil.ToFloat64(objectsTotal.WithLabelValues("wl_surface", "destroyed"))
	s.ObjectDestroyed("wl_surface")
	require.Equal(t, destroyedBefore+1, testutil.ToFloat64(objectsTotal.WithLabelValues("wl_surface", "destroyed")))
}

func TestSinkZeroValueIsUsable(t *testing.T) {
	var s Sink
	assert.NotPanics(t, func() {
		s.MessageForwarded("client_to_server")
		s.ObjectCreated("wl_seat")
	})
}
