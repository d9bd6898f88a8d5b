package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Scheduler holds job ids ordered by the time they are next due.
// Each id is present at most once.
type Scheduler struct {
	queue *PriorityQueue
	index map[string]*QueueItem
	mu    sync.Mutex
}

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	pq := &PriorityQueue{}
	heap.Init(pq)

	return &Scheduler{
		queue: pq,
		index: make(map[string]*QueueItem),
	}
}

// Schedule makes jobID due at the given time, replacing any earlier schedule
func (s *Scheduler) Schedule(jobID string, due time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.index[jobID]; ok {
		item.Due = due
		heap.Fix(s.queue, item.Index)
		return
	}

	item := &QueueItem{JobID: jobID, Due: due}
	heap.Push(s.queue, item)
	s.index[jobID] = item
}

// Remove drops jobID from the schedule
func (s *Scheduler) Remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.index[jobID]
	if !ok {
		return
	}
	heap.Remove(s.queue, item.Index)
	delete(s.index, jobID)
}

// PopDue removes and returns every job due at or before now, earliest first
func (s *Scheduler) PopDue(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for s.queue.Len() > 0 && !(*s.queue)[0].Due.After(now) {
		item := heap.Pop(s.queue).(*QueueItem)
		delete(s.index, item.JobID)
		due = append(due, item.JobID)
	}
	return due
}

// NextDue returns the earliest due time
func (s *Scheduler) NextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return (*s.queue)[0].Due, true
}

// Contains reports whether jobID is scheduled
func (s *Scheduler) Contains(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.index[jobID]
	return ok
}

// Len returns the number of scheduled jobs
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.Len()
}

// Run checks for due jobs every tick and hands each batch to dispatch until
// ctx is done. The next tick is not taken until dispatch returns.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration, dispatch func(ctx context.Context, jobIDs []string)) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if due := s.PopDue(now); len(due) > 0 {
				dispatch(ctx, due)
			}
		}
	}
}

// PriorityQueue is a min-heap of jobs by due time
type PriorityQueue []*QueueItem

// QueueItem represents a job in the priority queue
type QueueItem struct {
	JobID string
	Due   time.Time
	Index int
}

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	// Earliest due first, ties by id for a stable order
	if !pq[i].Due.Equal(pq[j].Due) {
		return pq[i].Due.Before(pq[j].Due)
	}
	return pq[i].JobID < pq[j].JobID
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*QueueItem)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[0 : n-1]
	return item
}
