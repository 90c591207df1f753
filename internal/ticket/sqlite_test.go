package ticket

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tk := &Ticket{
		Title:          "Upload kaputt",
		Description:    "PDF upload fails",
		SourceMetadata: Metadata{"locale": "de"},
	}
	require.NoError(t, s.Create(ctx, tk))
	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, StatusNew, tk.Status)
	assert.Equal(t, PriorityNormal, tk.Priority)

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Upload kaputt", got.Title)
	assert.Equal(t, "de", got.Locale())
	assert.Empty(t, got.EscalationPath)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStore_Update(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tk := &Ticket{Title: "t"}
	require.NoError(t, s.Create(ctx, tk))

	status := StatusInvestigating
	agent := "autopatch-architect"
	meta := Metadata{"error_count": 2}
	require.NoError(t, s.Update(ctx, tk.ID, Update{Status: &status, AssignedAgent: &agent, SourceMetadata: meta}))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInvestigating, got.Status)
	assert.Equal(t, "autopatch-architect", got.AssignedAgent)
	assert.Equal(t, 2, got.SourceMetadata.ErrorCount())
	assert.Equal(t, PriorityNormal, got.Priority)

	err = s.Update(ctx, "missing", Update{Status: &status})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []Status{StatusNew, StatusResolved, StatusInvestigating} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		require.NoError(t, s.Create(ctx, &Ticket{Title: string(st), Status: st}))
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].Title)

	open, err := s.List(ctx, Filter{Statuses: []Status{StatusNew, StatusInvestigating}})
	require.NoError(t, err)
	require.Len(t, open, 2)

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_MessagesAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	tk := &Ticket{Title: "t"}
	require.NoError(t, s.Create(ctx, tk))

	require.NoError(t, s.AppendMessage(ctx, &Message{TicketID: tk.ID, AuthorType: AuthorCustomer, Body: "first"}))
	s.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, s.AppendMessage(ctx, &Message{
		TicketID: tk.ID, AuthorType: AuthorSupport, Body: "note",
		InternalOnly: true, Metadata: map[string]any{"kind": "autopatch_plan"},
	}))
	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	require.NoError(t, s.AppendMessage(ctx, &Message{TicketID: tk.ID, AuthorType: AuthorCustomer, Body: "MISSING_MESSAGE: x"}))

	msgs, err := s.Messages(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Body)
	assert.True(t, msgs[1].InternalOnly)
	assert.Equal(t, "autopatch_plan", msgs[1].Kind())

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "MISSING_MESSAGE: x", got.LatestMessage)
	assert.Contains(t, got.Text(), "MISSING_MESSAGE")
}

func TestSQLiteStore_HasRecentMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	tk := &Ticket{Title: "t"}
	require.NoError(t, s.Create(ctx, tk))
	require.NoError(t, s.AppendMessage(ctx, &Message{TicketID: tk.ID, AuthorType: AuthorSupport, Body: "hello"}))

	ok, err := s.HasRecentMessage(ctx, tk.ID, AuthorSupport, "hello", base.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasRecentMessage(ctx, tk.ID, AuthorSupport, "hello", base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.HasRecentMessage(ctx, tk.ID, AuthorSystem, "hello", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_Escalation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tk := &Ticket{Title: "t"}
	require.NoError(t, s.Create(ctx, tk))
	require.NoError(t, s.AppendEscalation(ctx, tk.ID, EscalationEntry{Agent: "support-agent", Status: "new"}))
	require.NoError(t, s.AppendEscalation(ctx, tk.ID, EscalationEntry{Agent: "escalation-agent", Status: "investigating"}))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, got.EscalationPath, 2)
	assert.Equal(t, "escalation-agent", got.EscalationPath[1].Agent)
	assert.False(t, got.EscalationPath[0].Timestamp.IsZero())

	err = s.AppendEscalation(ctx, "missing", EscalationEntry{Agent: "x"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStore_Events(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	tk := &Ticket{Title: "t"}
	require.NoError(t, s.Create(ctx, tk))

	ev, err := s.LatestEvent(ctx, tk.ID, "telegram_approval")
	require.NoError(t, err)
	assert.Nil(t, ev)

	require.NoError(t, s.RecordEvent(ctx, &Event{TicketID: tk.ID, Kind: "telegram_approval", Payload: map[string]any{"approved": false}}))
	s.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, s.RecordEvent(ctx, &Event{TicketID: tk.ID, Kind: "telegram_approval", Payload: map[string]any{"approved": true}}))

	ev, err = s.LatestEvent(ctx, tk.ID, "telegram_approval")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, true, ev.Payload["approved"])
	assert.Equal(t, base.Add(time.Minute), ev.CreatedAt)
}
