package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivityService records social actions and fans them out as notifications.
type ActivityService struct {
	users     UserRepository
	releases  ReleaseRepository
	follows   FollowRepository
	favorites FavoriteRepository
	comments  CommentRepository
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time

	// pending tracks fan-outs still running after their request returned.
	pending sync.WaitGroup
}

type ActivityRepositories struct {
	Users     UserRepository
	Releases  ReleaseRepository
	Follows   FollowRepository
	Favorites FavoriteRepository
	Comments  CommentRepository
}

func NewActivityService(repos ActivityRepositories, notifier Notifier, logger *zap.Logger) *ActivityService {
	return &ActivityService{
		users:     repos.Users,
		releases:  repos.Releases,
		follows:   repos.Follows,
		favorites: repos.Favorites,
		comments:  repos.Comments,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Comment stores a comment on a song, notifies the song owner and everyone
// mentioned in the text.
func (s *ActivityService) Comment(ctx context.Context, actor Actor, songID string, req CreateCommentRequest) (*Comment, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, Invalid("text", "is required")
	}
	song, err := s.releases.GetRelease(ctx, songID)
	if err != nil {
		return nil, err
	}

	c := &Comment{
		ID:        uuid.NewString(),
		SongID:    song.ID,
		AuthorID:  actor.UserID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.comments.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.fanOut(ctx, func(ctx context.Context) {
		author := s.displayName(ctx, actor.UserID)
		seen := map[string]struct{}{actor.UserID: {}}
		if song.OwnerID != actor.UserID {
			s.notifier.Notify(ctx, song.OwnerID, KindComment,
				fmt.Sprintf("%s commented on %q", author, song.Title), songLink(song.ID))
			seen[song.OwnerID] = struct{}{}
		}
		s.notifyMentions(ctx, text, author, commentLink(song.ID, c.ID), seen)
	})
	return c, nil
}

// notifyMentions sends one mention notification per resolved handle in text,
// skipping anyone already in seen.
func (s *ActivityService) notifyMentions(ctx context.Context, text, author, link string, seen map[string]struct{}) {
	for _, handle := range ParseMentions(text) {
		u, err := s.users.GetUserByHandle(ctx, handle)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("mention lookup failed", zap.String("handle", handle), zap.Error(err))
			}
			continue
		}
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		s.notifier.Notify(ctx, u.ID, KindMention, fmt.Sprintf("%s mentioned you in a comment", author), link)
	}
}

// Follow makes the actor follow userID.
func (s *ActivityService) Follow(ctx context.Context, actor Actor, userID string) error {
	if userID == actor.UserID {
		return Invalid("user", "cannot follow yourself")
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return err
	}

	err := s.follows.CreateFollow(ctx, &Follow{
		FollowerID: actor.UserID,
		FolloweeID: userID,
		CreatedAt:  s.now().UTC(),
	})
	if errors.Is(err, ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create follow: %w", err)
	}

	s.notifier.Notify(ctx, userID, KindFollow,
		fmt.Sprintf("%s started following you", s.displayName(ctx, actor.UserID)), profileLink(actor.UserID))
	return nil
}

// Like adds a release to the actor's favorites and notifies its owner.
func (s *ActivityService) Like(ctx context.Context, actor Actor, releaseID string) error {
	release, err := s.releases.GetRelease(ctx, releaseID)
	if err != nil {
		return err
	}

	err = s.favorites.CreateFavorite(ctx, &Favorite{
		UserID:    actor.UserID,
		ReleaseID: release.ID,
		CreatedAt: s.now().UTC(),
	})
	if errors.Is(err, ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create favorite: %w", err)
	}

	if release.OwnerID != actor.UserID {
		s.notifier.Notify(ctx, release.OwnerID, KindLike,
			fmt.Sprintf("%s liked %q", s.displayName(ctx, actor.UserID), release.Title), releaseLink(release))
	}
	return nil
}

// Publish registers a release owned by the actor and announces it to every
// follower. Updating an existing release keeps its owner and is not announced.
func (s *ActivityService) Publish(ctx context.Context, actor Actor, req PublishRequest) (*Release, error) {
	kind := ReleaseKind(req.Kind)
	notifyKind, ok := kind.NotificationKind()
	if !ok {
		return nil, Invalid("kind", fmt.Sprintf("unknown release kind %q", req.Kind))
	}
	if err := ValidateIdentifier("id", req.ID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, Invalid("title", "is required")
	}

	owner, created, update := actor.UserID, s.now().UTC(), false
	existing, err := s.releases.GetRelease(ctx, req.ID)
	switch {
	case err == nil:
		if existing.OwnerID != actor.UserID && !actor.Admin {
			return nil, ErrForbidden
		}
		owner, created, update = existing.OwnerID, existing.CreatedAt, true
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	release := &Release{
		ID:        req.ID,
		Kind:      kind,
		Title:     title,
		OwnerID:   owner,
		CreatedAt: created,
	}
	if err := s.releases.UpsertRelease(ctx, release); err != nil {
		return nil, fmt.Errorf("upsert release: %w", err)
	}
	// edits are not announced again
	if update {
		return release, nil
	}

	s.fanOut(ctx, func(ctx context.Context) {
		followers, err := s.follows.ListFollowers(ctx, owner)
		if err != nil {
			// the release is stored; only the announcement is lost
			s.logger.Error("failed to list followers", zap.String("user", owner), zap.Error(err))
			return
		}

		message := fmt.Sprintf("%s released a new %s: %q", s.displayName(ctx, owner), kind, title)
		for _, follower := range followers {
			s.notifier.Notify(ctx, follower, notifyKind, message, releaseLink(release))
		}
	})
	return release, nil
}

// fanOut runs fn after the caller's response, on a context that outlives the
// request. Each notification inside is still bounded by the dispatcher.
func (s *ActivityService) fanOut(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("notification fan-out panicked", zap.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until every fan-out started so far has finished.
func (s *ActivityService) Wait() {
	s.pending.Wait()
}

// displayName falls back to the raw id when the profile cannot be loaded.
func (s *ActivityService) displayName(ctx context.Context, userID string) string {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return userID
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Handle != "" {
		return "@" + u.Handle
	}
	return userID
}

func songLink(songID string) string {
	return "/songs/" + songID
}

func commentLink(songID, commentID string) string {
	return fmt.Sprintf("/songs/%s#comment-%s", songID, commentID)
}

func profileLink(userID string) string {
	return "/users/" + userID
}

func releaseLink(r *Release) string {
	return fmt.Sprintf("/%ss/%s", r.Kind, r.ID)
}
