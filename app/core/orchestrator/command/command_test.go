package command

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgcopilot/app/core/orchestrator/db"
	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

const operatorChat int64 = 9001

type capturedResponder struct {
	replies []reply.Text
}

func (r *capturedResponder) Respond(_ context.Context, text reply.Text) error {
	r.replies = append(r.replies, text)
	return nil
}

func (r *capturedResponder) last() string {
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1].String()
}

type fakeAccount struct {
	users map[int64]types.UserInfo
	chats map[int64]types.ChatInfo
	sent  map[int64]string
	err   error
}

func (a *fakeAccount) ResolveUser(_ context.Context, id int64) (types.UserInfo, error) {
	u, ok := a.users[id]
	if !ok {
		return types.UserInfo{}, errors.New("user not found")
	}
	return u, nil
}

func (a *fakeAccount) ResolveChat(_ context.Context, id int64) (types.ChatInfo, error) {
	c, ok := a.chats[id]
	if !ok {
		return types.ChatInfo{}, errors.New("chat not found")
	}
	return c, nil
}

func (a *fakeAccount) Send(_ context.Context, chatID int64, text string) error {
	if a.err != nil {
		return a.err
	}
	a.sent[chatID] = text
	return nil
}

type fixture struct {
	d       *Dispatcher
	store   *task.Store
	clock   time.Time
	account *fakeAccount
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	f := &fixture{
		clock: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		account: &fakeAccount{
			users: map[int64]types.UserInfo{},
			chats: map[int64]types.ChatInfo{},
			sent:  map[int64]string{},
		},
	}
	f.store = task.NewStore(database).WithClock(func() time.Time { return f.clock })
	manager := task.NewManager(f.store, nil, task.ManagerOptions{}, nil)
	f.d = New(manager, f.account, Options{AuthorizedChatID: operatorChat, Location: time.UTC}, nil)
	f.d.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) add(t *testing.T, sender, content string) int64 {
	t.Helper()
	id, err := f.store.Add(context.Background(), task.Task{ChatID: 77, MessageID: 1, Sender: sender, Content: content, DetectedAt: f.clock})
	require.NoError(t, err)
	return id
}

func (f *fixture) run(t *testing.T, name string, args ...string) string {
	t.Helper()
	r := &capturedResponder{}
	err := f.d.Handle(context.Background(), types.Command{Name: name, Args: args, ChatID: operatorChat, Reply: r})
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	return r.last()
}

func TestUnauthorizedChatIsDenied(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "Alice", "pay invoice")

	r := &capturedResponder{}
	err := f.d.Handle(context.Background(), types.Command{Name: "done", Args: []string{"1"}, ChatID: 1234, Reply: r})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, msgUnauthorized, r.last())

	got, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusNew, got.Status)
}

func TestDoneMarksTaskAndRemovesItFromPending(t *testing.T) {
	f := newFixture(t)
	f.add(t, "Alice", "first")
	id := f.add(t, "Bob", "second")

	out := f.run(t, "done", strconv.FormatInt(id, 10))
	assert.Equal(t, "✅ Task 2 marked as done!", out)

	pending, err := f.store.Pending(context.Background())
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, id, p.ID)
	}
}

func TestDoneUsageAndMissingTask(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run(t, "done"), "/done 123")
	assert.Contains(t, f.run(t, "done", "abc"), "/done 123")
	assert.Equal(t, "Task 42 does not exist.", f.run(t, "done", "42"))
}

func TestTasksListsPendingWithPreview(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "🎉 No pending tasks right now!", f.run(t, "tasks"))

	long := strings.Repeat("x", 60)
	f.add(t, "Alice", "short one")
	f.add(t, "Bob", long)

	out := f.run(t, "tasks")
	assert.Contains(t, out, "1. (ID: 1) 🔴 [from Alice] short one\n")
	assert.Contains(t, out, "2. (ID: 2) 🔴 [from Bob] "+strings.Repeat("x", 50)+"...\n")
	assert.NotContains(t, out, "short one...")
}

func TestCompletedRanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yesterdayID := f.add(t, "Alice", "done yesterday")
	todayID := f.add(t, "Bob", "done today")

	f.clock = time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)
	_, err := f.store.UpdateStatus(ctx, yesterdayID, task.StatusDone)
	require.NoError(t, err)
	f.clock = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err = f.store.UpdateStatus(ctx, todayID, task.StatusDone)
	require.NoError(t, err)
	f.clock = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	today := f.run(t, "completed", "today")
	assert.Contains(t, today, "Completed tasks (today)")
	assert.Contains(t, today, "done today")
	assert.NotContains(t, today, "done yesterday")

	yesterday := f.run(t, "completed", "Yesterday")
	assert.Contains(t, yesterday, "done yesterday (done 2026-03-09)")
	assert.NotContains(t, yesterday, "done today")

	all := f.run(t, "completed")
	assert.Contains(t, all, "done yesterday")
	assert.Contains(t, all, "done today")

	assert.Contains(t, f.run(t, "completed", "last-week"), "Invalid argument")
}

func TestCompletedEmptyDayIsSpecific(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "🎉 No tasks completed on 2026-03-09.", f.run(t, "completed", "yesterday"))
	assert.Equal(t, "🎉 No completed tasks yet!", f.run(t, "completed"))
}

func TestHelpAndUnknown(t *testing.T) {
	f := newFixture(t)
	help := f.run(t, "help")
	for _, cmd := range []string{"/tasks", "/completed today", "/done <id>", "/send <chat_id> <text>"} {
		assert.Contains(t, help, cmd)
	}
	assert.Equal(t, help, f.run(t, "start"))
	assert.Equal(t, msgUnknownCommand, f.run(t, "frobnicate"))
}

func TestHelpListsRegisteredCommands(t *testing.T) {
	f := newFixture(t)
	f.d.Register("ping", func(context.Context, []string) reply.Text { return reply.Plain("pong") })

	help := f.run(t, "help")
	assert.Contains(t, help, "/ping")
	assert.Contains(t, help, "/help - show this message")
	assert.Less(t, strings.Index(help, "/chatinfo"), strings.Index(help, "/tasks"))
	assert.Contains(t, f.d.Commands(), "ping")
}

func TestAccountCommands(t *testing.T) {
	f := newFixture(t)
	f.account.users[5] = types.UserInfo{ID: 5, FirstName: "Ada", LastName: "L", Handle: "ada"}
	f.account.chats[-100] = types.ChatInfo{ID: -100, Title: "Team"}

	user := f.run(t, "userinfo", "5")
	assert.Contains(t, user, "Name: Ada L")
	assert.Contains(t, user, "Username: @ada")
	assert.Contains(t, f.run(t, "userinfo", "6"), "Could not find user 6")
	assert.Contains(t, f.run(t, "userinfo"), "Usage: /userinfo <user_id>")

	chat := f.run(t, "chatinfo", "-100")
	assert.Contains(t, chat, "Title: Team")
	assert.Contains(t, chat, "Type: group")

	assert.Equal(t, "📨 Message sent to 5.", f.run(t, "send", "5", "hello", "there"))
	assert.Equal(t, "hello there", f.account.sent[5])
	assert.Contains(t, f.run(t, "send", "5"), "Usage: /send")

	f.account.err = errors.New("peer flood")
	assert.Contains(t, f.run(t, "send", "5", "x"), "Failed to send message to 5: peer flood")
}

func TestAccountCommandsWithoutAccount(t *testing.T) {
	d := New(nil, nil, Options{AuthorizedChatID: operatorChat}, nil)
	assert.Equal(t, msgNoAccount, d.Execute(context.Background(), "userinfo", []string{"5"}).String())
}

func TestDoneResultFormatting(t *testing.T) {
	assert.Equal(t, "✅ Task 3 marked as done!", DoneResult(3, nil).String())
	assert.Equal(t, "Task 3 does not exist.", DoneResult(3, task.ErrNotFound).String())
	assert.Equal(t, "Failed to update task 3: boom", DoneResult(3, errors.New("boom")).String())
}

func TestZeroAuthorizedChatRejectsAll(t *testing.T) {
	d := New(nil, nil, Options{}, nil)
	assert.ErrorIs(t, d.Authorize(0), ErrUnauthorized)
	assert.ErrorIs(t, d.Authorize(123), ErrUnauthorized)
}
