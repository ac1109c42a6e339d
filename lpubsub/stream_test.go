package lpubsub_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/lanterm/lpubsub"
	"github.com/stretchr/testify/require"
)

func TestStream_Publish_panicsOnCalledTwice(t *testing.T) {
	t.Parallel()

	s := lpubsub.NewStream[int]()
	s.Publish(1)

	require.Panics(t, func() {
		s.Publish(1)
	})
}

func TestStream_Wait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := lpubsub.NewStream[string]()
	go s.Publish("a")

	v, next, err := s.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", v)
	require.Same(t, s.Next, next)

	cancel()
	_, same, err := next.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Same(t, next, same)
}
