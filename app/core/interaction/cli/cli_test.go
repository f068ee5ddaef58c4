package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

func TestStartParsesLinesIntoCommands(t *testing.T) {
	in := strings.NewReader("tasks\n\n/done 12\ncompleted all\nexit\n/help\n")
	var out bytes.Buffer
	ch := NewChannel(in, &out)

	var got []types.Command
	err := ch.Start(context.Background(), func(ctx context.Context, cmd types.Command) {
		got = append(got, cmd)
		require.NoError(t, cmd.Reply.Respond(ctx, reply.Plain("handled "+cmd.Name)))
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "tasks", got[0].Name)
	assert.Equal(t, []string{"12"}, got[1].Args)
	assert.Equal(t, []string{"all"}, got[2].Args)
	for _, cmd := range got {
		assert.Equal(t, LocalChatID, cmd.ChatID)
	}
	assert.Contains(t, out.String(), "handled done\n")
	assert.NotContains(t, out.String(), "handled help")
}

func TestStartStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := NewChannel(strings.NewReader("tasks\n"), &bytes.Buffer{})

	called := false
	require.NoError(t, ch.Start(ctx, func(context.Context, types.Command) { called = true }))
	assert.False(t, called)
}
