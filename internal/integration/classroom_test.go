package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"quizroom/internal/app"
	"quizroom/internal/config"
	"quizroom/internal/database"
	pkgdatabase "quizroom/pkg/database"
)

// classroomSeed is one quiz with a discussion room, a lobby and a study
// group. Grace is mid-attempt on the quiz; Ada has finished it.
const classroomSeed = `
INSERT INTO users (id, name, role) VALUES
	('student-ada', 'Ada', 'STUDENT'),
	('student-grace', 'Grace', 'STUDENT'),
	('student-linus', 'Linus', 'STUDENT'),
	('teacher-turing', 'Prof Turing', 'TEACHER'),
	('admin-root', 'Root', 'ADMIN');

INSERT INTO quizzes (id, title, is_active, time_limit, passing_score, is_exam, created_by) VALUES
	('quiz-algebra', 'Algebra', 1, 30, 60, 0, 'teacher-turing');

INSERT INTO quiz_attempts (id, user_id, quiz_id, started_at, completed_at) VALUES
	('attempt-ada', 'student-ada', 'quiz-algebra', '2026-01-01 09:00:00+00:00', '2026-01-01 09:20:00+00:00'),
	('attempt-grace', 'student-grace', 'quiz-algebra', '2026-01-01 09:05:00+00:00', NULL);

INSERT INTO study_groups (id, name, quiz_id) VALUES ('group-algebra', 'Algebra buddies', 'quiz-algebra');
INSERT INTO study_group_members (study_group_id, user_id) VALUES
	('group-algebra', 'student-ada'),
	('group-algebra', 'student-grace');
INSERT INTO study_sessions (id, study_group_id, title) VALUES ('session-revision', 'group-algebra', 'Revision');

INSERT INTO chat_rooms (id, name, description, type, is_active, allow_chat_during_quiz, quiz_id, study_group_id, created_by, created_at) VALUES
	('room-lobby', 'Lobby', '', 'GENERAL', 1, 0, NULL, NULL, 'teacher-turing', '2026-01-01 00:00:00+00:00'),
	('room-algebra', 'Algebra chat', '', 'QUIZ_DISCUSSION', 1, 0, 'quiz-algebra', NULL, 'teacher-turing', '2026-01-01 00:00:00+00:00'),
	('room-buddies', 'Buddies', '', 'STUDY_GROUP', 1, 0, NULL, 'group-algebra', 'teacher-turing', '2026-01-01 00:00:00+00:00');
`

// classroom is a running server over a seeded database
type classroom struct {
	app  *app.Application
	addr string
}

func seedDatabase(t *testing.T, path string) {
	t.Helper()

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = path
	manager, err := database.NewManager(dbConfig)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			t.Logf("Failed to close seed database: %v", err)
		}
	}()

	if err := pkgdatabase.NewMigrationManager(manager.GetDB(), "").ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	if _, err := manager.GetDB().Exec(classroomSeed); err != nil {
		t.Fatalf("Failed to seed classroom: %v", err)
	}
}

func startClassroom(t *testing.T) *classroom {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "classroom.db")
	seedDatabase(t, dbPath)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve a port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	cfg := config.DefaultConfig()
	cfg.Database.Path = dbPath
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port
	cfg.Scheduler.Enabled = false
	cfg.Security.CronSecret = "cron-secret"

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := application.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = application.Stop(stopCtx)
		cancel()
	})

	return &classroom{app: application, addr: application.GetAddr()}
}

// post issues a JSON API request as userID and decodes the response into out
func (c *classroom) post(t *testing.T, path, userID string, body, out interface{}) int {
	t.Helper()
	return c.request(t, http.MethodPost, path, userID, body, out)
}

func (c *classroom) request(t *testing.T, method, path, userID string, body, out interface{}) int {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("Failed to encode request: %v", err)
		}
	}

	req, err := http.NewRequest(method, "http://"+c.addr+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
