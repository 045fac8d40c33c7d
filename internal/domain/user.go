package domain

import (
	"context"
	"time"
)

// User is the profile the notification subsystem needs: a stable id and a
// handle that mentions resolve against.
type User struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UpdateProfileRequest is the body of PUT /me.
type UpdateProfileRequest struct {
	Handle      string `json:"handle" validate:"required,max=32"`
	Email       string `json:"email" validate:"omitempty,email"`
	DisplayName string `json:"displayName" validate:"omitempty,max=100"`
}

type UserRepository interface {
	UpsertUser(ctx context.Context, u *User) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	// GetUserByHandle matches handles case-insensitively.
	GetUserByHandle(ctx context.Context, handle string) (*User, error)
}

// ReleaseKind is the catalog type of a release.
type ReleaseKind string

const (
	ReleaseSong     ReleaseKind = "song"
	ReleaseAlbum    ReleaseKind = "album"
	ReleasePlaylist ReleaseKind = "playlist"
)

// NotificationKind returns the fan-out kind announcing a new release.
func (k ReleaseKind) NotificationKind() (NotificationKind, bool) {
	switch k {
	case ReleaseSong:
		return KindNewSong, true
	case ReleaseAlbum:
		return KindNewAlbum, true
	case ReleasePlaylist:
		return KindNewPlaylist, true
	}
	return "", false
}

// Release is a catalog entry (song, album or playlist) owned by a user.
type Release struct {
	ID        string      `json:"id"`
	Kind      ReleaseKind `json:"kind"`
	Title     string      `json:"title"`
	OwnerID   string      `json:"ownerId"`
	CreatedAt time.Time   `json:"createdAt"`
}

// PublishRequest is the body of POST /releases.
type PublishRequest struct {
	ID    string `json:"id" validate:"required"`
	Kind  string `json:"kind" validate:"required,oneof=song album playlist"`
	Title string `json:"title" validate:"required,max=200"`
}

type ReleaseRepository interface {
	UpsertRelease(ctx context.Context, r *Release) error
	GetRelease(ctx context.Context, id string) (*Release, error)
}

type Follow struct {
	FollowerID string    `json:"followerId"`
	FolloweeID string    `json:"followeeId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type FollowRepository interface {
	// CreateFollow returns ErrConflict when the follow already exists.
	CreateFollow(ctx context.Context, f *Follow) error
	ListFollowers(ctx context.Context, userID string) ([]string, error)
}

type Favorite struct {
	UserID    string    `json:"userId"`
	ReleaseID string    `json:"releaseId"`
	CreatedAt time.Time `json:"createdAt"`
}

type FavoriteRepository interface {
	// CreateFavorite returns ErrConflict when the favorite already exists.
	CreateFavorite(ctx context.Context, f *Favorite) error
}

type Comment struct {
	ID        string    `json:"id"`
	SongID    string    `json:"songId"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateCommentRequest is the body of POST /songs/{id}/comments.
type CreateCommentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *Comment) error
}
