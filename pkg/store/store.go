package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"annotated/pkg/logger"
	"annotated/pkg/models"
	"annotated/pkg/telemetry"
	"annotated/pkg/utils"
)

// ErrNotFound is returned when a session or annotation id is unknown.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned for mutations issued after Close.
var ErrClosed = errors.New("store closed")

// Data is the persisted structure: one JSON document holding every session
// and annotation, rewritten wholesale on each mutation.
type Data struct {
	Sessions    map[string]*models.Session    `json:"sessions"`
	Annotations map[string]*models.Annotation `json:"annotations"`
}

func emptyData() *Data {
	return &Data{
		Sessions:    map[string]*models.Session{},
		Annotations: map[string]*models.Annotation{},
	}
}

type mutation struct {
	fn    func(*Data) error
	reply chan error
}

// Store is a durable keyed repository for sessions and annotations backed
// by a single JSON file. Mutations are serialized through a FIFO queue
// drained by one goroutine: each mutation reads the current file, applies
// its transform and writes the whole structure back before the next
// mutation starts. Reads are not queued; they see the most recently
// completed write.
type Store struct {
	path     string
	lockPath string

	ops     chan mutation
	done    chan struct{}
	drained chan struct{}

	closeMu sync.Mutex
	closed  bool

	watchMu  sync.Mutex
	watchers map[int]func(models.Annotation)
	watchSeq int
}

// Open prepares the store file at path (creating it, and its directory, if
// missing), takes the cross-process lock and starts the mutation queue.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		b, _ := json.MarshalIndent(emptyData(), "", "  ")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return nil, fmt.Errorf("init store file: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	s := &Store{
		path:     path,
		lockPath: path + ".lock",
		ops:      make(chan mutation, 64),
		done:     make(chan struct{}),
		drained:  make(chan struct{}),
		watchers: map[int]func(models.Annotation){},
	}
	if err := s.acquireLock(); err != nil {
		return nil, err
	}
	go s.drain()
	logger.Info("store_opened", "path", path)
	return s, nil
}

// Close stops the mutation queue, waits for the in-flight write to finish
// and releases the process lock. Pending mutations that did not start are
// failed with ErrClosed. Safe to call more than once.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.done)
	// The lock must outlive the final write: a second daemon may not take
	// over the store while our last rename is still pending.
	<-s.drained
	s.releaseLock()
	logger.Info("store_closed", "path", s.path)
	return nil
}

// Path returns the store file path.
func (s *Store) Path() string { return s.path }

// Ready reports whether the store file is present and readable.
func (s *Store) Ready() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// drain applies queued mutations one at a time. After done fires no new
// enqueues can happen (mutate checks the closed flag under closeMu before
// sending), so emptying the buffer with ErrClosed replies cannot strand a
// late sender.
func (s *Store) drain() {
	defer close(s.drained)
	for {
		select {
		case m := <-s.ops:
			m.reply <- s.apply(m.fn)
		case <-s.done:
			for {
				select {
				case m := <-s.ops:
					m.reply <- ErrClosed
				default:
					return
				}
			}
		}
	}
}

// apply runs one read-modify-write cycle. The write is atomic: the new
// document is written to a temp file and renamed over the old one, so a
// crash mid-write never truncates the store.
func (s *Store) apply(fn func(*Data) error) error {
	data, err := s.read()
	if err != nil {
		telemetry.StoreWriteErrors.Inc()
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		telemetry.StoreWriteErrors.Inc()
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".store-*.tmp")
	if err != nil {
		telemetry.StoreWriteErrors.Inc()
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		telemetry.StoreWriteErrors.Inc()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		telemetry.StoreWriteErrors.Inc()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		telemetry.StoreWriteErrors.Inc()
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		telemetry.StoreWriteErrors.Inc()
		return fmt.Errorf("replace store file: %w", err)
	}
	telemetry.StoreWrites.Inc()
	return nil
}

// mutate enqueues fn and blocks until the write completes (or the store
// closes). The queue guarantees N concurrent mutations produce N distinct,
// non-clobbering writes. Enqueue happens under closeMu so a mutation is
// either refused with ErrClosed up front or guaranteed a reply from drain.
func (s *Store) mutate(fn func(*Data) error) error {
	m := mutation{fn: fn, reply: make(chan error, 1)}
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return ErrClosed
	}
	s.ops <- m
	s.closeMu.Unlock()
	return <-m.reply
}

// read loads and parses the store file. A file that cannot be parsed fails
// the calling operation outright; the state is never silently reset.
func (s *Store) read() (*Data, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	var data Data
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", s.path, err)
	}
	if data.Sessions == nil {
		data.Sessions = map[string]*models.Session{}
	}
	if data.Annotations == nil {
		data.Annotations = map[string]*models.Annotation{}
	}
	return &data, nil
}

// ── Sessions ──

// CreateSession stores a new session with a generated id and timestamps.
func (s *Store) CreateSession(url string, active bool) (models.Session, error) {
	now := utils.NowISO()
	sess := models.Session{
		ID:         utils.NewID(),
		CreatedAt:  now,
		LastSeenAt: now,
		Active:     active,
		URL:        url,
	}
	err := s.mutate(func(d *Data) error {
		cp := sess
		d.Sessions[sess.ID] = &cp
		return nil
	})
	if err != nil {
		return models.Session{}, err
	}
	telemetry.SessionsCreated.Inc()
	return sess, nil
}

// SessionPatch is a shallow merge-patch for UpdateSession; nil fields are
// left unchanged.
type SessionPatch struct {
	Active     *bool
	LastSeenAt *string
	URL        *string
}

// UpdateSession merges patch into the stored session. Unknown ids return
// ErrNotFound without writing.
func (s *Store) UpdateSession(id string, patch SessionPatch) (models.Session, error) {
	var out models.Session
	err := s.mutate(func(d *Data) error {
		existing, ok := d.Sessions[id]
		if !ok {
			return ErrNotFound
		}
		if patch.Active != nil {
			existing.Active = *patch.Active
		}
		if patch.LastSeenAt != nil {
			existing.LastSeenAt = *patch.LastSeenAt
		}
		if patch.URL != nil {
			existing.URL = *patch.URL
		}
		out = *existing
		return nil
	})
	if err != nil {
		return models.Session{}, err
	}
	return out, nil
}

// Touch refreshes a session's lastSeenAt to now.
func (s *Store) Touch(id string) error {
	now := utils.NowISO()
	_, err := s.UpdateSession(id, SessionPatch{LastSeenAt: &now})
	return err
}

// ListSessions returns all sessions, sorted by creation time.
func (s *Store) ListSessions() ([]models.Session, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]models.Session, 0, len(data.Sessions))
	for _, sess := range data.Sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (s *Store) GetSession(id string) (models.Session, error) {
	data, err := s.read()
	if err != nil {
		return models.Session{}, err
	}
	sess, ok := data.Sessions[id]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return *sess, nil
}

// ── Annotations ──

// CreateAnnotation stores a new annotation built from the caller-supplied
// context bag and text. Status, replies, id and createdAt are always forced
// server-side.
func (s *Store) CreateAnnotation(payload models.Annotation) (models.Annotation, error) {
	ann := payload
	ann.ID = utils.NewID()
	ann.CreatedAt = utils.NowISO()
	ann.Status = models.StatusPending
	ann.Replies = []models.AnnotationReply{}
	ann.Diff = ""
	ann.DiffResponse = ""
	err := s.mutate(func(d *Data) error {
		cp := ann
		d.Annotations[ann.ID] = &cp
		return nil
	})
	if err != nil {
		return models.Annotation{}, err
	}
	telemetry.AnnotationsCreated.Inc()
	s.notify(ann)
	return ann, nil
}

// GetAnnotation returns the annotation with the given id, or ErrNotFound.
func (s *Store) GetAnnotation(id string) (models.Annotation, error) {
	data, err := s.read()
	if err != nil {
		return models.Annotation{}, err
	}
	ann, ok := data.Annotations[id]
	if !ok {
		return models.Annotation{}, ErrNotFound
	}
	return *ann, nil
}

// ListAnnotations returns annotations filtered by session and status (empty
// values mean no filter), sorted ascending by createdAt.
func (s *Store) ListAnnotations(sessionID string, status models.AnnotationStatus) ([]models.Annotation, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]models.Annotation, 0, len(data.Annotations))
	for _, ann := range data.Annotations {
		if sessionID != "" && ann.SessionID != sessionID {
			continue
		}
		if status != "" && ann.Status != status {
			continue
		}
		out = append(out, *ann)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AnnotationPatch is a shallow merge-patch for UpdateAnnotation; nil fields
// are left unchanged.
type AnnotationPatch struct {
	Status       *models.AnnotationStatus
	Diff         *string
	DiffResponse *models.DiffResponse
}

// UpdateAnnotation merges patch into the stored annotation. Unknown ids
// return ErrNotFound without writing.
func (s *Store) UpdateAnnotation(id string, patch AnnotationPatch) (models.Annotation, error) {
	var out models.Annotation
	err := s.mutate(func(d *Data) error {
		existing, ok := d.Annotations[id]
		if !ok {
			return ErrNotFound
		}
		if patch.Status != nil {
			existing.Status = *patch.Status
		}
		if patch.Diff != nil {
			existing.Diff = *patch.Diff
		}
		if patch.DiffResponse != nil {
			existing.DiffResponse = *patch.DiffResponse
		}
		out = *existing
		return nil
	})
	if err != nil {
		return models.Annotation{}, err
	}
	s.notify(out)
	return out, nil
}

// AddReply appends a reply with a generated id and timestamp to the
// annotation's conversation thread. Replies are immutable once stored.
func (s *Store) AddReply(annotationID string, author models.ReplyAuthor, message string) (models.Annotation, error) {
	var out models.Annotation
	err := s.mutate(func(d *Data) error {
		ann, ok := d.Annotations[annotationID]
		if !ok {
			return ErrNotFound
		}
		ann.Replies = append(ann.Replies, models.AnnotationReply{
			ID:        utils.NewID(),
			CreatedAt: utils.NowISO(),
			Author:    author,
			Message:   message,
		})
		out = *ann
		return nil
	})
	if err != nil {
		return models.Annotation{}, err
	}
	telemetry.RepliesAdded.Inc()
	s.notify(out)
	return out, nil
}

// ── Watchers ──

// Subscribe registers fn to be called with a copy of every annotation that
// is created or mutated. It returns an unsubscribe func. Callbacks run on
// the mutating goroutine and must not block.
func (s *Store) Subscribe(fn func(models.Annotation)) func() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = fn
	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Store) notify(ann models.Annotation) {
	s.watchMu.Lock()
	fns := make([]func(models.Annotation), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()
	for _, fn := range fns {
		fn(ann)
	}
}
