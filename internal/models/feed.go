package models

import (
	"errors"
	"time"
)

// PostType is the kind of a feed post.
type PostType string

const (
	PostText  PostType = "text"
	PostPoll  PostType = "poll"
	PostImage PostType = "image"
	PostEmbed PostType = "embed"
)

// Valid reports whether t is a known post type.
func (t PostType) Valid() bool {
	switch t {
	case PostText, PostPoll, PostImage, PostEmbed:
		return true
	default:
		return false
	}
}

var (
	ErrNotAPoll      = errors.New("post is not a poll")
	ErrUnknownOption = errors.New("unknown poll option")
)

// Post is a feed entry. Content holds the text, the poll question or the image caption.
type Post struct {
	ID          int64               `json:"id"`
	UserID      string              `json:"user_id"`
	Type        PostType            `json:"type"`
	Content     string              `json:"content"`
	PollOptions []string            `json:"poll_options,omitempty"`
	Votes       map[string][]string `json:"votes,omitempty"`
	ImageURL    string              `json:"image_url,omitempty"`
	EmbedURL    string              `json:"embed_url,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	Likes       []string            `json:"likes"`
	Comments    []Comment           `json:"comments"`
	Profile     *ProfileFragment    `json:"profile,omitempty"`
}

// Comment belongs to a post.
type Comment struct {
	ID        int64            `json:"id"`
	PostID    int64            `json:"post_id"`
	UserID    string           `json:"user_id"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	Profile   *ProfileFragment `json:"profile,omitempty"`
}

// LikedBy reports whether userID liked the post.
func (p *Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// ToggleLike adds or removes userID from the likes and returns whether the post is now liked.
func (p *Post) ToggleLike(userID string) bool {
	for i, id := range p.Likes {
		if id == userID {
			p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
			return false
		}
	}
	p.Likes = append(p.Likes, userID)
	return true
}

// Vote records userID's vote for option. A previous vote by the same user is moved.
func (p *Post) Vote(userID, option string) error {
	if p.Type != PostPoll {
		return ErrNotAPoll
	}
	known := false
	for _, o := range p.PollOptions {
		if o == option {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownOption
	}

	if p.Votes == nil {
		p.Votes = make(map[string][]string)
	}
	for opt, voters := range p.Votes {
		kept := voters[:0:0]
		for _, v := range voters {
			if v != userID {
				kept = append(kept, v)
			}
		}
		p.Votes[opt] = kept
	}
	p.Votes[option] = append(p.Votes[option], userID)
	return nil
}
