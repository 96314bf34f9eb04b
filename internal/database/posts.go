package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"saunafreunde/internal/models"
)

const postColumns = `po.id, po.user_id, po.type, po.content, po.poll_options, po.votes, po.image_url,
	po.embed_url, po.likes, po.created_at,
	COALESCE(p.name, ''), COALESCE(p.username, ''), COALESCE(p.avatar_url, '')`

const postFrom = ` FROM posts po LEFT JOIN profiles p ON p.id = po.user_id`

func scanPost(row rowScanner) (*models.Post, error) {
	var po models.Post
	var options, votes, likes string
	var name, username, avatar string
	if err := row.Scan(&po.ID, &po.UserID, &po.Type, &po.Content, &options, &votes, &po.ImageURL,
		&po.EmbedURL, &likes, &po.CreatedAt, &name, &username, &avatar); err != nil {
		return nil, err
	}

	var err error
	if po.PollOptions, err = decodeStrings(options); err != nil {
		return nil, fmt.Errorf("decode poll options: %w", err)
	}
	if po.Likes, err = decodeStrings(likes); err != nil {
		return nil, fmt.Errorf("decode likes: %w", err)
	}
	po.Votes = make(map[string][]string)
	if votes != "" {
		if err := json.Unmarshal([]byte(votes), &po.Votes); err != nil {
			return nil, fmt.Errorf("decode votes: %w", err)
		}
	}
	po.Comments = []models.Comment{}
	if name != "" {
		po.Profile = &models.ProfileFragment{
			ID:        po.UserID,
			Name:      name,
			Username:  username,
			AvatarURL: models.AvatarURLFor(name, avatar),
		}
	}
	return &po, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertPost(ctx context.Context, ex execer, po *models.Post) error {
	options, err := encodeJSON(nonNil(po.PollOptions))
	if err != nil {
		return err
	}
	if po.Votes == nil {
		po.Votes = make(map[string][]string)
	}
	votes, err := encodeJSON(po.Votes)
	if err != nil {
		return err
	}
	po.Likes = nonNil(po.Likes)
	likes, err := encodeJSON(po.Likes)
	if err != nil {
		return err
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now()
	}
	po.CreatedAt = ts(po.CreatedAt)

	res, err := ex.ExecContext(ctx, `
		INSERT INTO posts (user_id, type, content, poll_options, votes, image_url, embed_url, likes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		po.UserID, po.Type, po.Content, options, votes, po.ImageURL, po.EmbedURL, likes, po.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	po.ID = id
	if po.Comments == nil {
		po.Comments = []models.Comment{}
	}
	return nil
}

// CreatePost stores a new feed post.
func (db *DB) CreatePost(ctx context.Context, po *models.Post) error {
	return insertPost(ctx, db, po)
}

// ShareToFeed posts on behalf of userID if the share cooldown has passed.
// The cooldown stamp and the post are written in one transaction.
func (db *DB) ShareToFeed(ctx context.Context, po *models.Post, now time.Time, cooldown time.Duration) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := takeShareSlot(ctx, tx, po.UserID, now, cooldown); err != nil {
			return err
		}
		if po.CreatedAt.IsZero() {
			po.CreatedAt = now
		}
		return insertPost(ctx, tx, po)
	})
}

// GetPost returns a post with its comments.
func (db *DB) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	po, err := scanPost(db.QueryRowContext(ctx, `SELECT `+postColumns+postFrom+` WHERE po.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	comments, err := db.commentsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if c, ok := comments[id]; ok {
		po.Comments = c
	}
	return po, nil
}

// ListPosts returns the newest posts first, each with its comments in ascending order.
func (db *DB) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	return db.queryPosts(ctx, `SELECT `+postColumns+postFrom+`
		ORDER BY po.created_at DESC, po.id DESC LIMIT ?`, limit)
}

func (db *DB) queryPosts(ctx context.Context, query string, args ...interface{}) ([]models.Post, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		po, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		posts = append(posts, *po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	comments, err := db.commentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if c, ok := comments[posts[i].ID]; ok {
			posts[i].Comments = c
		}
	}
	return posts, nil
}

func (db *DB) commentsFor(ctx context.Context, postIDs []int64) (map[int64][]models.Comment, error) {
	out := make(map[int64][]models.Comment)
	if len(postIDs) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(postIDs))
	placeholders := make([]byte, 0, len(postIDs)*2)
	for i, id := range postIDs {
		args[i] = id
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.post_id, c.user_id, c.content, c.created_at,
			COALESCE(p.name, ''), COALESCE(p.username, ''), COALESCE(p.avatar_url, '')
		FROM comments c LEFT JOIN profiles p ON p.id = c.user_id
		WHERE c.post_id IN (`+string(placeholders)+`)
		ORDER BY c.created_at, c.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out[c.PostID] = append(out[c.PostID], *c)
	}
	return out, rows.Err()
}

func scanComment(row rowScanner) (*models.Comment, error) {
	var c models.Comment
	var name, username, avatar string
	if err := row.Scan(&c.ID, &c.PostID, &c.UserID, &c.Content, &c.CreatedAt, &name, &username, &avatar); err != nil {
		return nil, err
	}
	if name != "" {
		c.Profile = &models.ProfileFragment{
			ID:        c.UserID,
			Name:      name,
			Username:  username,
			AvatarURL: models.AvatarURLFor(name, avatar),
		}
	}
	return &c, nil
}

// updatePost loads a post in a transaction, applies fn and writes likes and votes back.
func (db *DB) updatePost(ctx context.Context, id int64, fn func(po *models.Post) error) (*models.Post, error) {
	var out *models.Post
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		po, err := scanPost(tx.QueryRowContext(ctx, `SELECT `+postColumns+postFrom+` WHERE po.id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPostNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(po); err != nil {
			return err
		}

		likes, err := encodeJSON(nonNil(po.Likes))
		if err != nil {
			return err
		}
		votes, err := encodeJSON(po.Votes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE posts SET likes = ?, votes = ? WHERE id = ?`, likes, votes, id); err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		out = po
		return nil
	})
	return out, err
}

// ToggleLike adds or removes userID from the likes of a post.
func (db *DB) ToggleLike(ctx context.Context, postID int64, userID string) (*models.Post, bool, error) {
	liked := false
	po, err := db.updatePost(ctx, postID, func(po *models.Post) error {
		liked = po.ToggleLike(userID)
		return nil
	})
	return po, liked, err
}

// Vote records userID's poll vote, moving an earlier vote.
func (db *DB) Vote(ctx context.Context, postID int64, userID, option string) (*models.Post, error) {
	return db.updatePost(ctx, postID, func(po *models.Post) error {
		return po.Vote(userID, option)
	})
}

// AddComment stores a comment and returns it with the author profile.
func (db *DB) AddComment(ctx context.Context, c *models.Comment) (*models.Comment, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var out *models.Comment
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, c.PostID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPostNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO comments (post_id, user_id, content, created_at) VALUES (?, ?, ?, ?)`,
			c.PostID, c.UserID, c.Content, ts(c.CreatedAt))
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("insert comment: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		out, err = scanComment(tx.QueryRowContext(ctx, `
			SELECT c.id, c.post_id, c.user_id, c.content, c.created_at,
				COALESCE(p.name, ''), COALESCE(p.username, ''), COALESCE(p.avatar_url, '')
			FROM comments c LEFT JOIN profiles p ON p.id = c.user_id
			WHERE c.id = ?`, id))
		return err
	})
	return out, err
}

// DeletePost removes a post and its comments.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrPostNotFound
		}
		return nil
	})
}
