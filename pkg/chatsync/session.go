// Package chatsync keeps one open chat in step with the store. Realtime
// notifications deliver new messages quickly; a poller re-reads the full list
// on an interval and repairs anything the realtime path missed.
package chatsync

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"time"

	"campusride/pkg/logger"
	"campusride/pkg/models"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const DefaultPollInterval = 4 * time.Second

var (
	ErrSendInFlight = errors.New("a message is already being sent")
	ErrClosed       = errors.New("chat session closed")
)

type SendState int

const (
	Idle SendState = iota
	Sending
	Sent
	Failed
)

func (s SendState) String() string {
	switch s {
	case Sending:
		return "sending"
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	}
	return "idle"
}

// Store is the server-side chat contract the session reads and writes through.
type Store interface {
	GetMessages(ctx context.Context, rideID, userID uuid.UUID) ([]models.Message, error)
	GetMessage(ctx context.Context, rideID, messageID uuid.UUID) (models.Message, error)
	SendMessage(ctx context.Context, rideID, senderID uuid.UUID, content string) (models.Message, error)
}

type UpdateKind string

const (
	Appended UpdateKind = "append"
	Removed  UpdateKind = "remove"
	Snapshot UpdateKind = "snapshot"
)

// Update describes one change to the local collection. Snapshot carries the
// full list; Appended and Removed carry the affected message.
type Update struct {
	Kind     UpdateKind       `json:"kind"`
	RideID   uuid.UUID        `json:"ride_id"`
	Messages []models.Message `json:"messages"`
}

type Options struct {
	PollInterval time.Duration
	OnUpdate     func(Update)
}

// Session owns the ordered, deduplicated message list of one ride for one
// viewer. All mutations go through mu.
type Session struct {
	rideID uuid.UUID
	userID uuid.UUID
	store  Store
	log    *logger.Logger

	interval time.Duration
	onUpdate func(Update)

	mu       sync.Mutex
	messages []models.Message
	ids      map[uuid.UUID]struct{}
	sum      uint64
	state    SendState
	draft    string
	closed   bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open loads the current history and starts the listener and the poller. Only
// an access denial aborts; any other load failure starts from an empty list
// that the poller fills in later.
func Open(ctx context.Context, rideID, userID uuid.UUID, store Store, feed Feed, opts Options, log *logger.Logger) (*Session, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	s := &Session{
		rideID:   rideID,
		userID:   userID,
		store:    store,
		log:      log.Component("chatsync").WithField("ride_id", rideID),
		interval: opts.PollInterval,
		onUpdate: opts.OnUpdate,
		ids:      make(map[uuid.UUID]struct{}),
	}

	msgs, err := store.GetMessages(ctx, rideID, userID)
	if err != nil {
		if isAccessDenied(err) {
			return nil, err
		}
		s.log.WithError(err).Warn("initial load failed, waiting for poll")
	} else {
		s.replaceLocked(msgs)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if feed != nil {
		events, err := feed.Subscribe(runCtx, rideID)
		if err != nil {
			s.log.WithError(err).Warn("realtime subscribe failed, relying on poll")
		} else {
			s.wg.Add(1)
			go s.listen(runCtx, events)
		}
	}

	s.wg.Add(1)
	go s.poll(runCtx)

	return s, nil
}

func (s *Session) RideID() uuid.UUID { return s.rideID }

// Messages returns a copy of the local list ordered by seq.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) State() SendState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft is the text of the last failed send, kept so it can be retried.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Send posts content through the store. On failure the session moves to
// Failed and keeps content as the draft; nothing is added locally.
func (s *Session) Send(ctx context.Context, content string) (models.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	if s.state == Sending {
		s.mu.Unlock()
		return models.Message{}, ErrSendInFlight
	}
	s.state = Sending
	s.draft = content
	s.mu.Unlock()

	m, err := s.store.SendMessage(ctx, s.rideID, s.userID, content)

	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.mu.Unlock()
		return models.Message{}, err
	}
	s.state = Sent
	s.draft = ""
	added := s.insertLocked(m)
	s.mu.Unlock()

	if added {
		s.emit(Update{Kind: Appended, RideID: s.rideID, Messages: []models.Message{m}})
	}
	return m, nil
}

// Close stops the listener and the poller together and waits for both.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Session) listen(ctx context.Context, events <-chan Event) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.log.Warn("realtime feed ended, relying on poll")
				return
			}
			s.apply(ctx, ev)
		}
	}
}

func (s *Session) apply(ctx context.Context, ev Event) {
	if ev.RideID != s.rideID {
		return
	}
	switch ev.Action {
	case ActionInsert:
		if s.has(ev.MessageID) {
			return
		}
		m, err := s.store.GetMessage(ctx, s.rideID, ev.MessageID)
		if err != nil {
			s.log.WithError(err).Debugf("fetch of notified message %s failed", ev.MessageID)
			return
		}
		s.mu.Lock()
		added := s.insertLocked(m)
		s.mu.Unlock()
		if added {
			s.emit(Update{Kind: Appended, RideID: s.rideID, Messages: []models.Message{m}})
		}
	case ActionDelete:
		s.mu.Lock()
		m, removed := s.removeLocked(ev.MessageID)
		s.mu.Unlock()
		if removed {
			s.emit(Update{Kind: Removed, RideID: s.rideID, Messages: []models.Message{m}})
		}
	}
}

func (s *Session) poll(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh re-reads the full list and replaces local state when its
// fingerprint differs. Local messages newer than both the read and the local
// list at the start of the read arrived while it was in flight and are kept.
// A failed read keeps what is already held.
func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	before := s.lastSeqLocked()
	s.mu.Unlock()

	msgs, err := s.store.GetMessages(ctx, s.rideID, s.userID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.WithError(err).Debugf("poll failed")
		}
		return false
	}
	sortBySeq(msgs)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	merged := s.mergeNewerLocked(msgs, before)
	if Fingerprint(merged) == s.sum {
		s.mu.Unlock()
		return false
	}
	s.replaceLocked(merged)
	snapshot := make([]models.Message, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()

	s.emit(Update{Kind: Snapshot, RideID: s.rideID, Messages: snapshot})
	return true
}

// mergeNewerLocked returns fetched plus the local messages whose seq is past
// both the last fetched one and floor.
func (s *Session) mergeNewerLocked(fetched []models.Message, floor int64) []models.Message {
	last := floor
	if n := len(fetched); n > 0 && fetched[n-1].Seq > last {
		last = fetched[n-1].Seq
	}
	merged := make([]models.Message, 0, len(fetched)+1)
	merged = append(merged, fetched...)
	for _, m := range s.messages {
		if m.Seq > last {
			merged = append(merged, m)
		}
	}
	return merged
}

func (s *Session) lastSeqLocked() int64 {
	if n := len(s.messages); n > 0 {
		return s.messages[n-1].Seq
	}
	return 0
}

func (s *Session) has(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Session) insertLocked(m models.Message) bool {
	if _, ok := s.ids[m.ID]; ok {
		return false
	}
	s.ids[m.ID] = struct{}{}
	i := sort.Search(len(s.messages), func(i int) bool { return s.messages[i].Seq > m.Seq })
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
	s.sum = Fingerprint(s.messages)
	return true
}

func (s *Session) removeLocked(id uuid.UUID) (models.Message, bool) {
	if _, ok := s.ids[id]; !ok {
		return models.Message{}, false
	}
	delete(s.ids, id)
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.sum = Fingerprint(s.messages)
			return m, true
		}
	}
	return models.Message{}, false
}

func (s *Session) replaceLocked(msgs []models.Message) {
	sortBySeq(msgs)
	s.messages = s.messages[:0]
	s.ids = make(map[uuid.UUID]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := s.ids[m.ID]; dup {
			continue
		}
		s.ids[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
	s.sum = Fingerprint(s.messages)
}

func (s *Session) emit(u Update) {
	if s.onUpdate != nil {
		s.onUpdate(u)
	}
}

func sortBySeq(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
}

// Fingerprint hashes the id and seq of every message in order. Two lists with
// the same length but different content hash differently.
func Fingerprint(msgs []models.Message) uint64 {
	h := xxhash.New()
	var seq [8]byte
	for _, m := range msgs {
		h.Write(m.ID[:])
		binary.BigEndian.PutUint64(seq[:], uint64(m.Seq))
		h.Write(seq[:])
	}
	return h.Sum64()
}
