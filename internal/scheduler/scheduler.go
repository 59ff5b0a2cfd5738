package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"quizroom/internal/broadcast"
	"quizroom/pkg/types"
)

// SystemSender is recorded as the sender of broadcasts the scheduler
// triggers for quizzes without a known creator
const SystemSender = "system"

// Store is the persistence the scheduled rules read and write
type Store interface {
	ListRoomsByType(ctx context.Context, roomType types.RoomType, activeOnly bool) ([]*types.ChatRoom, error)
	ListRoomsByQuiz(ctx context.Context, quizID string) ([]*types.ChatRoom, error)
	CreateRoom(ctx context.Context, room *types.ChatRoom) error
	UpdateRoom(ctx context.Context, roomID string, update *types.RoomUpdate) (*types.ChatRoom, error)
	HasCompletedAttempt(ctx context.Context, quizID string) (bool, error)
	ListEndedExams(ctx context.Context, now time.Time) ([]*types.Quiz, error)
}

// Broadcaster announces quiz status changes
type Broadcaster interface {
	BroadcastQuizStatus(ctx context.Context, req broadcast.QuizStatusRequest) (*broadcast.Result, error)
}

// Config controls the background loop
type Config struct {
	Enabled  bool
	Interval time.Duration
}

// DefaultConfig runs every five minutes
func DefaultConfig() Config {
	return Config{Enabled: true, Interval: 5 * time.Minute}
}

// RunResult reports what one pass changed
type RunResult struct {
	ActivatedRooms []string  `json:"activatedRooms"`
	CreatedRooms   []string  `json:"createdRooms"`
	Failures       int       `json:"failures"`
	RanAt          time.Time `json:"ranAt"`
}

// Scheduler runs the room lifecycle rules on an interval. It is constructed
// and started by the application; nothing runs until Start.
type Scheduler struct {
	store       Store
	broadcaster Broadcaster
	config      Config
	now         func() time.Time
	newID       func() string

	runMu   sync.Mutex // one pass at a time
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler; a non-positive interval takes the default
func New(store Store, broadcaster Broadcaster, config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Scheduler{
		store:       store,
		broadcaster: broadcaster,
		config:      config,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Start runs a pass immediately and then every interval until Stop or ctx
// is done. A disabled scheduler logs and returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if !s.config.Enabled {
		log.Println("Scheduler disabled")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	log.Printf("Starting scheduler: interval=%v", s.config.Interval)
	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	log.Println("Scheduler stopped")
	return nil
}

// IsRunning reports whether the background loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	result, err := s.RunOnce(ctx)
	if err != nil {
		log.Printf("Scheduled run failed: %v", err)
		return
	}
	if len(result.ActivatedRooms) > 0 || len(result.CreatedRooms) > 0 || result.Failures > 0 {
		log.Printf("Scheduled run: activated=%d created=%d failures=%d",
			len(result.ActivatedRooms), len(result.CreatedRooms), result.Failures)
	}
}

// RunOnce applies both rules once. Per-room failures are logged and counted;
// only a failed listing aborts the pass.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	result := &RunResult{
		ActivatedRooms: []string{},
		CreatedRooms:   []string{},
		RanAt:          s.now().UTC(),
	}

	if err := s.activateReviewRooms(ctx, result); err != nil {
		return nil, err
	}
	if err := s.createPostExamRooms(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// activateReviewRooms opens each inactive review room once anyone has
// completed its quiz
func (s *Scheduler) activateReviewRooms(ctx context.Context, result *RunResult) error {
	rooms, err := s.store.ListRoomsByType(ctx, types.RoomTypePostQuizReview, false)
	if err != nil {
		return fmt.Errorf("failed to list review rooms: %w", err)
	}

	active := true
	for _, room := range rooms {
		if room.IsActive || room.QuizID == nil {
			continue
		}

		completed, err := s.store.HasCompletedAttempt(ctx, *room.QuizID)
		if err != nil {
			log.Printf("Failed to check attempts of quiz %s: %v", *room.QuizID, err)
			result.Failures++
			continue
		}
		if !completed {
			continue
		}

		if _, err := s.store.UpdateRoom(ctx, room.ID, &types.RoomUpdate{IsActive: &active}); err != nil {
			log.Printf("Failed to activate review room %s: %v", room.ID, err)
			result.Failures++
			continue
		}
		log.Printf("Review room activated: room=%s quiz=%s", room.ID, *room.QuizID)
		result.ActivatedRooms = append(result.ActivatedRooms, room.ID)
	}
	return nil
}

// createPostExamRooms opens a discussion room for every ended exam that has
// none and announces the end of the exam
func (s *Scheduler) createPostExamRooms(ctx context.Context, result *RunResult) error {
	exams, err := s.store.ListEndedExams(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list ended exams: %w", err)
	}

	for _, exam := range exams {
		rooms, err := s.store.ListRoomsByQuiz(ctx, exam.ID)
		if err != nil {
			log.Printf("Failed to list rooms of exam %s: %v", exam.ID, err)
			result.Failures++
			continue
		}
		if hasRoomOfType(rooms, types.RoomTypePostExamDiscussion) {
			continue
		}

		quizID := exam.ID
		room := &types.ChatRoom{
			ID:          s.newID(),
			Name:        exam.Title + " - Post-Exam Discussion",
			Description: "Discuss the exam now that it has ended",
			Type:        types.RoomTypePostExamDiscussion,
			IsActive:    true,
			QuizID:      &quizID,
			CreatedBy:   exam.CreatedBy,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.store.CreateRoom(ctx, room); err != nil {
			log.Printf("Failed to create post-exam room for %s: %v", exam.ID, err)
			result.Failures++
			continue
		}
		log.Printf("Post-exam room created: room=%s exam=%s", room.ID, exam.ID)
		result.CreatedRooms = append(result.CreatedRooms, room.ID)

		sender := exam.CreatedBy
		if sender == "" {
			sender = SystemSender
		}
		if _, err := s.broadcaster.BroadcastQuizStatus(ctx, broadcast.QuizStatusRequest{
			QuizID:  exam.ID,
			Type:    types.QuizStatusEnded,
			Message: fmt.Sprintf("%s has ended. The post-exam discussion is open.", exam.Title),
			SentBy:  sender,
		}); err != nil {
			log.Printf("Failed to broadcast end of exam %s: %v", exam.ID, err)
		}
	}
	return nil
}

func hasRoomOfType(rooms []*types.ChatRoom, roomType types.RoomType) bool {
	for _, room := range rooms {
		if room.Type == roomType {
			return true
		}
	}
	return false
}
