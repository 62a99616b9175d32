package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"quizforge-backend/internal/models"
)

// rowQuerier is the part of *pgxpool.Pool the quiz store needs.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type QuizRepo struct {
	db rowQuerier
}

func NewQuizRepo(db rowQuerier) *QuizRepo {
	return &QuizRepo{db: db}
}

// Save stores a finished quiz and sets its ID.
func (r *QuizRepo) Save(ctx context.Context, userID uuid.UUID, q *models.QuizResult) error {
	questionsBytes, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}

	id := uuid.New()
	query := `INSERT INTO quizzes (id, user_id, title, topic, difficulty, exam_style, total_marks, question_count, questions_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`

	var saved uuid.UUID
	if err := r.db.QueryRow(ctx, query,
		id, userID, q.Title, q.Topic, q.Difficulty, q.ExamStyle, q.TotalMarks, q.TotalQuestions, questionsBytes, q.CreatedAt,
	).Scan(&saved); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	q.ID = &saved
	return nil
}
