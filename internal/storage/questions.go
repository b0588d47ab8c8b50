package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Question is one anonymized student question.
type Question struct {
	ID        int64
	UserHash  string
	Text      string
	CreatedAt time.Time
}

// HashUserID derives the anonymized user hash stored in the log.
// Raw LINE user IDs never touch the database.
func HashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:8])
}

// InsertQuestion appends a question to the log.
func (db *DB) InsertQuestion(ctx context.Context, userID, text string, askedAt time.Time) error {
	const query = `INSERT INTO questions (user_hash, text, created_at) VALUES (?, ?, ?)`
	if _, err := db.conn.ExecContext(ctx, query, HashUserID(userID), text, timestamp(askedAt)); err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// QuestionsSince returns all questions asked at or after the cutoff,
// oldest first.
func (db *DB) QuestionsSince(ctx context.Context, cutoff time.Time) ([]Question, error) {
	const query = `
		SELECT id, user_hash, text, created_at
		FROM questions
		WHERE created_at >= ?
		ORDER BY created_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, timestamp(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var createdAt int64
		if err := rows.Scan(&q.ID, &q.UserHash, &q.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.CreatedAt = time.Unix(createdAt, 0)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	return questions, nil
}

// CountQuestionsSince returns the number of questions asked at or after the cutoff.
func (db *DB) CountQuestionsSince(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM questions WHERE created_at >= ?`
	var count int
	if err := db.conn.QueryRowContext(ctx, query, timestamp(cutoff)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

// ActiveUsersSince returns the number of distinct user hashes with at least
// one question at or after the cutoff.
func (db *DB) ActiveUsersSince(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT user_hash) FROM questions WHERE created_at >= ?`
	var count int
	if err := db.conn.QueryRowContext(ctx, query, timestamp(cutoff)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

// PruneBefore deletes log entries older than the cutoff and returns the
// number of rows removed.
func (db *DB) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM questions WHERE created_at < ?`
	res, err := db.conn.ExecContext(ctx, query, timestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune questions: %w", err)
	}
	return res.RowsAffected()
}
