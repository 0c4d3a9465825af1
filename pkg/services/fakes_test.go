package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"campusride/pkg/broker"
	"campusride/pkg/cache"
	"campusride/pkg/events"
	"campusride/pkg/logger"
	"campusride/pkg/models"
	"campusride/pkg/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memDB backs every fake repository so the services see one consistent
// store. Failures are injected per method name.
type memDB struct {
	mu       sync.Mutex
	rides    map[uuid.UUID]models.Ride
	requests []models.RideRequest
	messages []models.Message
	profiles map[uuid.UUID]models.Profile
	seq      int64
	base     time.Time
	fail     map[string]error
	calls    map[string]int
}

func newMemDB() *memDB {
	return &memDB{
		rides:    make(map[uuid.UUID]models.Ride),
		profiles: make(map[uuid.UUID]models.Profile),
		base:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (db *memDB) hit(method string) error {
	db.calls[method]++
	return db.fail[method]
}

func (db *memDB) addProfile(name, phone string) uuid.UUID {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := uuid.New()
	db.profiles[id] = models.Profile{ID: id, FullName: name, PhoneNumber: phone, Role: models.RoleStudent}
	return id
}

// withPrivate fills the fields only the profile's owner may see.
func withPrivate(p models.Profile) models.Profile {
	p.Email = p.ID.String()[:8] + "@uni.edu"
	p.StudentID = "2021-" + p.ID.String()[:4]
	return p
}

func (db *memDB) addRide(owner uuid.UUID, rideTime time.Time) models.Ride {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq++
	r := models.Ride{
		ID:          uuid.New(),
		OwnerID:     owner,
		Origin:      "Campus",
		Destination: "Airport",
		RideTime:    rideTime,
		CreatedAt:   db.base.Add(time.Duration(db.seq) * time.Second),
	}
	db.rides[r.ID] = r
	return r
}

func (db *memDB) total(method string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.calls[method]
}

func (db *memDB) messageCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.messages)
}

// chat

type memChat struct{ *memDB }

func (c memChat) RideOwner(_ context.Context, rideID uuid.UUID) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit("RideOwner"); err != nil {
		return uuid.Nil, err
	}
	r, ok := c.rides[rideID]
	if !ok {
		return uuid.Nil, sql.ErrNoRows
	}
	return r.OwnerID, nil
}

func (c memChat) HasRequest(_ context.Context, rideID, userID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit("HasRequest"); err != nil {
		return false, err
	}
	for _, rr := range c.requests {
		if rr.RideID == rideID && rr.RequesterID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (c memChat) HasSentMessage(_ context.Context, rideID, userID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit("HasSentMessage"); err != nil {
		return false, err
	}
	for _, m := range c.messages {
		if m.RideID == rideID && m.SenderID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (c memChat) collect(method string, keep func(models.Ride) bool) ([]models.Ride, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(method); err != nil {
		return nil, err
	}
	var out []models.Ride
	for _, r := range c.rides {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (c memChat) sent(rideID, userID uuid.UUID) bool {
	for _, m := range c.messages {
		if m.RideID == rideID && m.SenderID == userID {
			return true
		}
	}
	return false
}

func (c memChat) requestBy(rideID, userID uuid.UUID, status models.RequestStatus) bool {
	for _, rr := range c.requests {
		if rr.RideID == rideID && rr.RequesterID == userID && (status == "" || rr.Status == status) {
			return true
		}
	}
	return false
}

func (c memChat) requestedByOthers(r models.Ride) bool {
	for _, rr := range c.requests {
		if rr.RideID == r.ID && rr.RequesterID != r.OwnerID {
			return true
		}
	}
	return false
}

func (c memChat) ChatRides(_ context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return c.collect("ChatRides", func(r models.Ride) bool {
		return r.OwnerID == userID || c.sent(r.ID, userID) || c.requestBy(r.ID, userID, "")
	})
}

func (c memChat) OwnedRides(_ context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return c.collect("OwnedRides", func(r models.Ride) bool { return r.OwnerID == userID })
}

func (c memChat) MessagedRides(_ context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return c.collect("MessagedRides", func(r models.Ride) bool {
		return r.OwnerID != userID && c.sent(r.ID, userID)
	})
}

func (c memChat) AcceptedRides(_ context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return c.collect("AcceptedRides", func(r models.Ride) bool {
		return r.OwnerID != userID && c.requestBy(r.ID, userID, models.StatusAccepted)
	})
}

func (c memChat) RequestedRides(_ context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return c.collect("RequestedRides", func(r models.Ride) bool {
		return c.requestBy(r.ID, userID, "") || (r.OwnerID == userID && c.requestedByOthers(r))
	})
}

func (c memChat) LatestRequesters(_ context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[uuid.UUID]uuid.UUID{}
	if err := c.hit("LatestRequesters"); err != nil {
		return out, err
	}
	for _, id := range rideIDs {
		for _, rr := range c.requests {
			if rr.RideID == id && rr.RequesterID != c.rides[id].OwnerID {
				out[id] = rr.RequesterID
			}
		}
	}
	return out, nil
}

func (c memChat) LatestSenders(_ context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[uuid.UUID]uuid.UUID{}
	if err := c.hit("LatestSenders"); err != nil {
		return out, err
	}
	for _, id := range rideIDs {
		for _, m := range c.messages {
			if m.RideID == id && m.SenderID != c.rides[id].OwnerID {
				out[id] = m.SenderID
			}
		}
	}
	return out, nil
}

// messages

type memMessages struct{ *memDB }

func (m memMessages) Insert(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("Insert"); err != nil {
		return models.Message{}, err
	}
	m.seq++
	msg.ID = uuid.New()
	msg.Seq = m.seq
	msg.CreatedAt = m.base.Add(time.Duration(m.seq) * time.Second)
	kind, phone, shared := msg.Columns()
	msg.Body = models.BodyFromColumns(kind, phone, shared)
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m memMessages) Get(_ context.Context, rideID, id uuid.UUID) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.RideID == rideID && msg.ID == id {
			return msg, nil
		}
	}
	return models.Message{}, sql.ErrNoRows
}

func (m memMessages) ListByRide(_ context.Context, rideID uuid.UUID) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("ListByRide"); err != nil {
		return nil, err
	}
	out := []models.Message{}
	for _, msg := range m.messages {
		if msg.RideID == rideID {
			msg.Sender = nil
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m memMessages) LatestByRides(_ context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]models.Message{}
	if err := m.hit("LatestByRides"); err != nil {
		return out, err
	}
	for _, id := range rideIDs {
		for _, msg := range m.messages {
			if msg.RideID == id {
				msg.Sender = nil
				out[id] = msg
			}
		}
	}
	return out, nil
}

func (m memMessages) Delete(_ context.Context, rideID, id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.RideID == rideID && msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// profiles

type memProfiles struct{ *memDB }

func (p memProfiles) Get(_ context.Context, id uuid.UUID) (models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.hit("ProfileGet"); err != nil {
		return models.Profile{}, err
	}
	prof, ok := p.profiles[id]
	if !ok {
		return models.Profile{}, sql.ErrNoRows
	}
	return prof, nil
}

func (p memProfiles) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[uuid.UUID]models.Profile{}
	if err := p.hit("GetMany"); err != nil {
		return out, err
	}
	for _, id := range ids {
		if prof, ok := p.profiles[id]; ok {
			out[id] = prof
		}
	}
	return out, nil
}

func (p memProfiles) Update(_ context.Context, id uuid.UUID, req models.UpdateProfileRequest) (models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[id]
	if !ok {
		return models.Profile{}, sql.ErrNoRows
	}
	if req.StudentID != nil {
		for other, q := range p.profiles {
			if other != id && q.StudentID == *req.StudentID {
				return models.Profile{}, repository.ErrDuplicate
			}
		}
		prof.StudentID = *req.StudentID
	}
	if req.FullName != nil {
		prof.FullName = *req.FullName
	}
	if req.Department != nil {
		prof.Department = *req.Department
	}
	if req.Gender != nil {
		prof.Gender = *req.Gender
	}
	if req.PhoneNumber != nil {
		prof.PhoneNumber = *req.PhoneNumber
	}
	p.profiles[id] = prof
	return prof, nil
}

func (p memProfiles) List(_ context.Context, limit, offset int) ([]models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []models.Profile{}
	for _, prof := range p.profiles {
		out = append(out, prof)
	}
	return out, nil
}

func (p memProfiles) PromoteToAdmin(_ context.Context, studentID string) (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, prof := range p.profiles {
		if prof.StudentID == studentID {
			prof.Role = models.RoleAdmin
			p.profiles[id] = prof
			return id, nil
		}
	}
	return uuid.Nil, sql.ErrNoRows
}

// requests

type memRequests struct{ *memDB }

func (r memRequests) Create(_ context.Context, rideID, requesterID uuid.UUID, message string) (models.RideRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rr := range r.requests {
		if rr.RideID == rideID && rr.RequesterID == requesterID {
			return models.RideRequest{}, repository.ErrDuplicate
		}
	}
	r.seq++
	rr := models.RideRequest{
		ID:          uuid.New(),
		RideID:      rideID,
		RequesterID: requesterID,
		Message:     message,
		Status:      models.StatusPending,
		CreatedAt:   r.base.Add(time.Duration(r.seq) * time.Second),
	}
	rr.UpdatedAt = rr.CreatedAt
	r.requests = append(r.requests, rr)
	return rr, nil
}

func (r memRequests) find(match func(models.RideRequest) bool) (models.RideRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rr := range r.requests {
		if match(rr) {
			return rr, nil
		}
	}
	return models.RideRequest{}, sql.ErrNoRows
}

func (r memRequests) Get(_ context.Context, rideID, requesterID uuid.UUID) (models.RideRequest, error) {
	return r.find(func(rr models.RideRequest) bool { return rr.RideID == rideID && rr.RequesterID == requesterID })
}

func (r memRequests) GetByID(_ context.Context, id uuid.UUID) (models.RideRequest, error) {
	return r.find(func(rr models.RideRequest) bool { return rr.ID == id })
}

func (r memRequests) filter(match func(models.RideRequest) bool) []models.RideRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.RideRequest{}
	for _, rr := range r.requests {
		if match(rr) {
			out = append(out, rr)
		}
	}
	return out
}

func (r memRequests) ListForRide(_ context.Context, rideID uuid.UUID) ([]models.RideRequest, error) {
	return r.filter(func(rr models.RideRequest) bool { return rr.RideID == rideID }), nil
}

func (r memRequests) ListByRequester(_ context.Context, requesterID uuid.UUID) ([]models.RideRequest, error) {
	return r.filter(func(rr models.RideRequest) bool { return rr.RequesterID == requesterID }), nil
}

func (r memRequests) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.RequestStatus) (models.RideRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rr := range r.requests {
		if rr.ID == id && rr.Status == from {
			r.requests[i].Status = to
			return r.requests[i], nil
		}
	}
	return models.RideRequest{}, sql.ErrNoRows
}

func (r memRequests) UpdatePendingMessage(_ context.Context, id uuid.UUID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rr := range r.requests {
		if rr.ID == id && rr.Status == models.StatusPending {
			r.requests[i].Message = message
		}
	}
	return nil
}

// rides

type memRides struct{ *memDB }

func (r memRides) Create(_ context.Context, ownerID uuid.UUID, req models.CreateRideRequest) (models.Ride, error) {
	ride := r.addRide(ownerID, req.RideTime)
	r.mu.Lock()
	defer r.mu.Unlock()
	ride.Origin, ride.Destination, ride.Notes = req.Origin, req.Destination, req.Notes
	r.rides[ride.ID] = ride
	return ride, nil
}

func (r memRides) GetByID(_ context.Context, id uuid.UUID) (models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok {
		return models.Ride{}, sql.ErrNoRows
	}
	return ride, nil
}

func (r memRides) List(_ context.Context, filter models.RideFilter) ([]models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Ride{}
	for _, ride := range r.rides {
		if ride.RideTime.After(filter.After) {
			out = append(out, ride)
		}
	}
	return out, nil
}

func (r memRides) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Ride{}
	for _, ride := range r.rides {
		if ride.OwnerID == ownerID {
			out = append(out, ride)
		}
	}
	return out, nil
}

func (r memRides) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rides[id]; !ok {
		return 0, nil
	}
	r.dropRide(id)
	return 1, nil
}

// dropRide mirrors the ON DELETE CASCADE of the schema.
func (r memRides) dropRide(id uuid.UUID) (msgs, reqs int64) {
	delete(r.rides, id)
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.RideID == id {
			msgs++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	keptReqs := r.requests[:0]
	for _, rr := range r.requests {
		if rr.RideID == id {
			reqs++
			continue
		}
		keptReqs = append(keptReqs, rr)
	}
	r.requests = keptReqs
	return msgs, reqs
}

func (r memRides) DeleteExpired(_ context.Context, before time.Time) (models.CleanupResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res models.CleanupResult
	for id, ride := range r.rides {
		if ride.RideTime.Before(before) {
			msgs, reqs := r.dropRide(id)
			res.Rides++
			res.Messages += msgs
			res.Requests += reqs
		}
	}
	return res, nil
}

// notifier

type recordedNotice struct {
	action string
	ev     broker.MessageEvent
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (n *fakeNotifier) PublishMessage(_ context.Context, action string, ev broker.MessageEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, recordedNotice{action: action, ev: ev})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

// env wires every service over one memDB.
type env struct {
	db       *memDB
	mr       *miniredis.Miniredis
	redis    *cache.Redis
	notifier *fakeNotifier
	events   *events.Recorder

	access   AccessResolver
	roster   RosterService
	chat     ChatService
	phone    PhoneService
	rides    RideService
	requests RequestService
	profiles ProfileService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.New(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	db := newMemDB()
	log := logger.Discard()
	e := &env{db: db, mr: mr, redis: rc, notifier: &fakeNotifier{}, events: &events.Recorder{}}

	chatRepo := memChat{db}
	msgRepo := memMessages{db}
	profRepo := memProfiles{db}
	reqRepo := memRequests{db}
	rideRepo := memRides{db}

	e.access = NewAccessResolver(chatRepo, log)
	e.roster = NewRosterService(chatRepo, msgRepo, profRepo, rc, time.Minute, log)
	e.chat = NewChatService(e.access, msgRepo, profRepo, chatRepo, e.roster, e.notifier, log)
	e.phone = NewPhoneService(e.chat, chatRepo, reqRepo, profRepo, e.events, log)
	e.rides = NewRideService(rideRepo, e.roster, rc, e.events, log)
	e.requests = NewRequestService(rideRepo, reqRepo, e.chat, e.roster, e.events, log)
	e.profiles = NewProfileService(profRepo)
	return e
}

func (e *env) future() time.Time {
	return time.Now().Add(48 * time.Hour)
}
