package saga

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompensator_UnwindsInReverseOrder(t *testing.T) {
	nop := zerolog.Nop()
	c := NewCompensator(&nop)

	var order []string
	for _, name := range []string{"delete audio", "delete image", "third"} {
		name := name
		c.Push(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	assert.Equal(t, []string{"delete audio", "delete image", "third"}, c.Steps())

	failed := c.Unwind(context.Background())
	assert.Zero(t, failed)
	assert.Equal(t, []string{"third", "delete image", "delete audio"}, order)
	assert.Zero(t, c.Len(), "stack is emptied")

	assert.Zero(t, c.Unwind(context.Background()), "second unwind is a no-op")
	assert.Len(t, order, 3)
}

func TestCompensator_FailuresAreLoggedAndSwallowed(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c := NewCompensator(&logger)

	var hooked []string
	c.OnFailure(func(step string, err error) { hooked = append(hooked, step) })

	ran := 0
	c.Push("delete audio", func(ctx context.Context) error { ran++; return nil })
	c.Push("delete image", func(ctx context.Context) error { ran++; return errors.New("disk on fire") })
	c.Push("panicky", func(ctx context.Context) error { ran++; panic("boom") })

	failed := c.Unwind(context.Background())
	assert.Equal(t, 2, failed)
	assert.Equal(t, 3, ran, "a failing step does not stop the unwind")
	assert.Equal(t, []string{"panicky", "delete image"}, hooked)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "delete image", entry["step"])
	assert.Equal(t, "disk on fire", entry["error"])
}

func TestTracker_HappyPaths(t *testing.T) {
	withImage := NewTracker()
	for _, s := range []State{StateAudioSaved, StateImageSaved, StateAlbumResolved, StateSongInserted, StateCommitted} {
		require.NoError(t, withImage.Advance(s))
	}
	assert.Equal(t, StateCommitted, withImage.Current())
	assert.Len(t, withImage.History(), 6)

	existingAlbum := NewTracker()
	for _, s := range []State{StateAudioSaved, StateAlbumResolved, StateSongInserted, StateCommitted} {
		require.NoError(t, existingAlbum.Advance(s))
	}
	assert.True(t, existingAlbum.Current().IsTerminal())
}

func TestTracker_InvalidTransitions(t *testing.T) {
	tr := NewTracker()
	assert.Error(t, tr.Advance(StateSongInserted))
	assert.Equal(t, StateStart, tr.Current())

	require.NoError(t, tr.Advance(StateAudioSaved))
	require.NoError(t, tr.Advance(StateAborted))
	assert.Error(t, tr.Advance(StateAlbumResolved), "terminal states are final")
	assert.Equal(t, []State{StateStart, StateAudioSaved, StateAborted}, tr.History())
}
