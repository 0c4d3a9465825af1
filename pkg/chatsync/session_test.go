package chatsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campusride/pkg/logger"
	"campusride/pkg/models"
	"campusride/pkg/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	msgs     []models.Message
	seq      int64
	sendErr  error
	listErr  error
	listHits atomic.Int32

	// afterList runs once the list has been read, before it is returned.
	afterList func()
}

func (f *fakeStore) add(rideID uuid.UUID, content string) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m := models.Message{ID: uuid.New(), RideID: rideID, Content: content, Seq: f.seq, Body: models.TextBody{}}
	f.msgs = append(f.msgs, m)
	return m
}

func (f *fakeStore) GetMessages(_ context.Context, rideID, _ uuid.UUID) ([]models.Message, error) {
	f.listHits.Add(1)
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := make([]models.Message, len(f.msgs))
	copy(out, f.msgs)
	hook := f.afterList
	f.afterList = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *fakeStore) GetMessage(_ context.Context, _, id uuid.UUID) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return models.Message{}, services.ErrNotFound
}

func (f *fakeStore) SendMessage(_ context.Context, rideID, senderID uuid.UUID, content string) (models.Message, error) {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return models.Message{}, err
	}
	m := f.add(rideID, content)
	m.SenderID = senderID
	return m, nil
}

type chanFeed struct {
	ch  chan Event
	err error
}

func (f *chanFeed) Subscribe(context.Context, uuid.UUID) (<-chan Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

type collector struct {
	mu      sync.Mutex
	updates []Update
}

func (c *collector) add(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func open(t *testing.T, store *fakeStore, feed Feed, interval time.Duration, c *collector) (*Session, uuid.UUID) {
	t.Helper()
	rideID := uuid.New()
	opts := Options{PollInterval: interval}
	if c != nil {
		opts.OnUpdate = c.add
	}
	s, err := Open(context.Background(), rideID, uuid.New(), store, feed, opts, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, rideID
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestOpenLoadsHistoryInSeqOrder(t *testing.T) {
	store := &fakeStore{}
	ride := uuid.New()
	a := store.add(ride, "a")
	b := store.add(ride, "b")
	store.msgs = []models.Message{b, a}

	s, _ := open(t, store, nil, time.Hour, nil)
	assert.Equal(t, []string{"a", "b"}, contents(s.Messages()))
}

func TestOpenAccessDenied(t *testing.T) {
	store := &fakeStore{listErr: services.ErrAccessDenied}
	_, err := Open(context.Background(), uuid.New(), uuid.New(), store, nil, Options{}, logger.Discard())
	assert.ErrorIs(t, err, services.ErrAccessDenied)
}

func TestSendThenRealtimeEchoKeepsOneCopy(t *testing.T) {
	store := &fakeStore{}
	feed := &chanFeed{ch: make(chan Event, 1)}
	c := &collector{}
	s, rideID := open(t, store, feed, time.Hour, c)

	m, err := s.Send(context.Background(), "on my way")
	require.NoError(t, err)
	assert.Equal(t, Sent, s.State())

	feed.ch <- Event{Action: ActionInsert, RideID: rideID, MessageID: m.ID}

	// Flush the listener with a second, distinct notification.
	other := store.add(rideID, "from the other side")
	feed.ch <- Event{Action: ActionInsert, RideID: rideID, MessageID: other.ID}

	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"on my way", "from the other side"}, contents(s.Messages()))
	require.Eventually(t, func() bool { return c.len() == 2 }, time.Second, 5*time.Millisecond)
}

func TestListenerAppendsAndRemoves(t *testing.T) {
	store := &fakeStore{}
	feed := &chanFeed{ch: make(chan Event, 4)}
	s, rideID := open(t, store, feed, time.Hour, nil)

	m := store.add(rideID, "hello")
	feed.ch <- Event{Action: ActionInsert, RideID: uuid.New(), MessageID: m.ID}
	feed.ch <- Event{Action: ActionInsert, RideID: rideID, MessageID: m.ID}
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, time.Second, 5*time.Millisecond)

	feed.ch <- Event{Action: ActionDelete, RideID: rideID, MessageID: m.ID}
	require.Eventually(t, func() bool { return len(s.Messages()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestPollerRecoversMissedMessages(t *testing.T) {
	store := &fakeStore{}
	feed := &chanFeed{err: errors.New("realtime unavailable")}
	c := &collector{}
	s, rideID := open(t, store, feed, 10*time.Millisecond, c)

	store.add(rideID, "missed by realtime")

	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.len() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestRefreshDetectsSameCountDifferentContent(t *testing.T) {
	store := &fakeStore{}
	ride := uuid.New()
	store.add(ride, "original")
	s, _ := open(t, store, nil, time.Hour, nil)
	require.Len(t, s.Messages(), 1)

	store.mu.Lock()
	store.msgs = nil
	store.mu.Unlock()
	store.add(ride, "replacement")

	assert.True(t, s.Refresh(context.Background()))
	assert.Equal(t, []string{"replacement"}, contents(s.Messages()))
	assert.False(t, s.Refresh(context.Background()), "unchanged list is not replaced")
}

func TestRefreshKeepsMessageSentDuringRead(t *testing.T) {
	store := &fakeStore{}
	ride := uuid.New()
	store.add(ride, "a")
	c := &collector{}
	s, _ := open(t, store, nil, time.Hour, c)

	store.mu.Lock()
	store.afterList = func() {
		_, err := s.Send(context.Background(), "b")
		require.NoError(t, err)
	}
	store.mu.Unlock()

	assert.False(t, s.Refresh(context.Background()))
	assert.Equal(t, []string{"a", "b"}, contents(s.Messages()))
	require.Equal(t, 1, c.len())
	assert.Equal(t, Appended, c.updates[0].Kind)

	assert.False(t, s.Refresh(context.Background()))
	assert.Equal(t, []string{"a", "b"}, contents(s.Messages()))
}

func TestRefreshClearsDeletedHistory(t *testing.T) {
	store := &fakeStore{}
	store.add(uuid.New(), "gone")
	s, _ := open(t, store, nil, time.Hour, nil)
	require.Len(t, s.Messages(), 1)

	store.mu.Lock()
	store.msgs = nil
	store.mu.Unlock()

	assert.True(t, s.Refresh(context.Background()))
	assert.Empty(t, s.Messages())
}

func TestRefreshFailureKeepsState(t *testing.T) {
	store := &fakeStore{}
	store.add(uuid.New(), "kept")
	s, _ := open(t, store, nil, time.Hour, nil)

	store.mu.Lock()
	store.listErr = errors.New("timeout")
	store.mu.Unlock()

	assert.False(t, s.Refresh(context.Background()))
	assert.Equal(t, []string{"kept"}, contents(s.Messages()))
}

func TestFailedSendRestoresDraft(t *testing.T) {
	store := &fakeStore{sendErr: errors.New("network down")}
	s, _ := open(t, store, nil, time.Hour, nil)

	_, err := s.Send(context.Background(), "see you at 5")
	require.Error(t, err)
	assert.Equal(t, Failed, s.State())
	assert.Equal(t, "see you at 5", s.Draft())
	assert.Empty(t, s.Messages())

	store.mu.Lock()
	store.sendErr = nil
	store.mu.Unlock()

	_, err = s.Send(context.Background(), s.Draft())
	require.NoError(t, err)
	assert.Equal(t, Sent, s.State())
	assert.Empty(t, s.Draft())
}

func TestCloseStopsPollerAndListener(t *testing.T) {
	store := &fakeStore{}
	feed := &chanFeed{ch: make(chan Event)}
	s, _ := open(t, store, feed, 5*time.Millisecond, nil)

	require.Eventually(t, func() bool { return store.listHits.Load() > 2 }, time.Second, 5*time.Millisecond)
	s.Close()
	hits := store.listHits.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, hits, store.listHits.Load())

	_, err := s.Send(context.Background(), "too late")
	assert.ErrorIs(t, err, ErrClosed)
	s.Close()
}

func TestFingerprint(t *testing.T) {
	a := models.Message{ID: uuid.New(), Seq: 1}
	b := models.Message{ID: uuid.New(), Seq: 2}
	c := models.Message{ID: uuid.New(), Seq: 2}

	assert.Equal(t, Fingerprint([]models.Message{a, b}), Fingerprint([]models.Message{a, b}))
	assert.NotEqual(t, Fingerprint([]models.Message{a, b}), Fingerprint([]models.Message{a, c}))
	assert.NotEqual(t, Fingerprint([]models.Message{a, b}), Fingerprint([]models.Message{b, a}))
}
