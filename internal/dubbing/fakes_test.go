package dubbing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/database"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubclient"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// memStore is an in-memory Store with the same uniqueness and
// compare-and-set guarantees as the database.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.DubJob
	seq    int
	casErr error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*models.DubJob)}
}

func (s *memStore) isActive(j *models.DubJob) bool {
	return !j.State.IsTerminal()
}

func (s *memStore) CreateDubJob(ctx context.Context, job *models.DubJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if s.isActive(j) && j.ContentSectionID == job.ContentSectionID && j.TargetLanguage == job.TargetLanguage {
			return database.ErrActiveJobExists
		}
	}

	s.seq++
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", s.seq)
	}
	job.CreatedAt = time.Now().Add(time.Duration(s.seq) * time.Millisecond)
	job.UpdatedAt = job.CreatedAt

	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetDubJob(ctx context.Context, id string) (*models.DubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) GetDubJobByHandle(ctx context.Context, handle string) (*models.DubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.RemoteHandle == handle {
			cp := *j
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) FindActiveDubJob(ctx context.Context, sectionID, lang string) (*models.DubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if s.isActive(j) && j.ContentSectionID == sectionID && j.TargetLanguage == lang {
			cp := *j
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) CompareAndSetState(ctx context.Context, job *models.DubJob, expected models.DubJobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.casErr != nil {
		return s.casErr
	}

	j, ok := s.jobs[job.ID]
	if !ok || j.State != expected {
		return database.ErrStateConflict
	}

	job.UpdatedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) sorted(filter func(*models.DubJob) bool) []*models.DubJob {
	var out []*models.DubJob
	for _, j := range s.jobs {
		if filter(j) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (s *memStore) ListDubJobsBySection(ctx context.Context, sectionID string) ([]*models.DubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sorted(func(j *models.DubJob) bool { return j.ContentSectionID == sectionID })
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

func (s *memStore) ListActiveDubJobs(ctx context.Context, limit int) ([]*models.DubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sorted(s.isActive)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListStaleDubJobs(ctx context.Context, cutoff time.Time) ([]*models.DubJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sorted(func(j *models.DubJob) bool {
		switch j.State {
		case models.DubJobSubmitted, models.DubJobProcessing:
			return j.SubmittedAt != nil && j.SubmittedAt.Before(cutoff)
		case models.DubJobQueued:
			return j.CreatedAt.Before(cutoff)
		}
		return false
	}), nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *memStore) put(job *models.DubJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
}

// fakeRemote is a scripted remote dubbing service
type fakeRemote struct {
	mu        sync.Mutex
	submitted []dubclient.SubmitRequest
	submitErr map[string]error
	statuses  map[string]*dubclient.Status
	statusErr error
	seq       int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		submitErr: make(map[string]error),
		statuses:  make(map[string]*dubclient.Status),
	}
}

func (r *fakeRemote) Submit(ctx context.Context, req dubclient.SubmitRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.submitErr[req.TargetLanguage]; ok {
		return "", err
	}
	r.seq++
	r.submitted = append(r.submitted, req)
	return fmt.Sprintf("remote-%s-%d", req.TargetLanguage, r.seq), nil
}

func (r *fakeRemote) Status(ctx context.Context, handle string) (*dubclient.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.statusErr != nil {
		return nil, r.statusErr
	}
	st, ok := r.statuses[handle]
	if !ok {
		return nil, errors.New("unknown handle")
	}
	return st, nil
}

func (r *fakeRemote) submissions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*models.DubJobEvent
}

func (n *recordingNotifier) PublishDubEvent(ctx context.Context, event *models.DubJobEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Event)
	}
	return out
}
