package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/repository"
)

type activityFixture struct {
	store    *repository.MemoryStore
	activity *domain.ActivityService
}

func newActivityFixture(t *testing.T) *activityFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	notifier := newNotificationService(store)
	activity := domain.NewActivityService(domain.ActivityRepositories{
		Users:     store,
		Releases:  store,
		Follows:   store,
		Favorites: store,
		Comments:  store,
	}, notifier, zap.NewNop())

	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "owner", Handle: "owner", DisplayName: "Olivia"},
		{ID: "author", Handle: "author"},
		{ID: "fan1", Handle: "fan_one"},
		{ID: "fan2", Handle: "FanTwo"},
	} {
		u := u
		_, err := store.UpsertUser(ctx, &u)
		require.NoError(t, err)
	}
	require.NoError(t, store.UpsertRelease(ctx, &domain.Release{
		ID: "s1", Kind: domain.ReleaseSong, Title: "Night Drive", OwnerID: "owner", CreatedAt: time.Now(),
	}))
	return &activityFixture{store: store, activity: activity}
}

// byRecipient waits for pending fan-outs and groups stored notifications as
// recipient -> kinds.
func (f *activityFixture) byRecipient() map[string][]domain.NotificationKind {
	f.activity.Wait()
	out := make(map[string][]domain.NotificationKind)
	for _, n := range f.store.Notifications() {
		out[n.Recipient] = append(out[n.Recipient], n.Kind)
	}
	return out
}

func TestCommentNotifiesOwnerAndMentions(t *testing.T) {
	f := newActivityFixture(t)
	author := domain.Actor{UserID: "author"}

	c, err := f.activity.Comment(context.Background(), author, "s1", domain.CreateCommentRequest{
		Text: "love this @fan_one @fantwo @ghost @author @fan_one",
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", c.SongID)

	got := f.byRecipient()
	assert.Equal(t, []domain.NotificationKind{domain.KindComment}, got["owner"])
	assert.Equal(t, []domain.NotificationKind{domain.KindMention}, got["fan1"])
	assert.Equal(t, []domain.NotificationKind{domain.KindMention}, got["fan2"])
	assert.NotContains(t, got, "author")

	for _, n := range f.store.Notifications() {
		if n.Kind == domain.KindMention {
			assert.Equal(t, "/songs/s1#comment-"+c.ID, n.Link)
		}
	}
}

func TestCommentDoesNotDoubleNotifyMentionedOwner(t *testing.T) {
	f := newActivityFixture(t)

	_, err := f.activity.Comment(context.Background(), domain.Actor{UserID: "author"}, "s1",
		domain.CreateCommentRequest{Text: "@owner nice"})
	require.NoError(t, err)

	assert.Equal(t, []domain.NotificationKind{domain.KindComment}, f.byRecipient()["owner"])
}

func TestCommentByOwnerSkipsOwnerNotification(t *testing.T) {
	f := newActivityFixture(t)

	_, err := f.activity.Comment(context.Background(), domain.Actor{UserID: "owner"}, "s1",
		domain.CreateCommentRequest{Text: "thanks @owner and @fan_one"})
	require.NoError(t, err)

	got := f.byRecipient()
	assert.NotContains(t, got, "owner")
	assert.Equal(t, []domain.NotificationKind{domain.KindMention}, got["fan1"])
}

func TestCommentSucceedsWhenNotificationsFail(t *testing.T) {
	f := newActivityFixture(t)
	f.store.FailNotifications = errors.New("notification store down")

	c, err := f.activity.Comment(context.Background(), domain.Actor{UserID: "author"}, "s1",
		domain.CreateCommentRequest{Text: "hey @fan_one"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	f.activity.Wait()
	assert.Empty(t, f.store.Notifications())
}

func TestCommentValidation(t *testing.T) {
	f := newActivityFixture(t)
	author := domain.Actor{UserID: "author"}

	_, err := f.activity.Comment(context.Background(), author, "s1", domain.CreateCommentRequest{Text: "  "})
	assert.True(t, domain.IsValidation(err))

	_, err = f.activity.Comment(context.Background(), author, "missing", domain.CreateCommentRequest{Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFollow(t *testing.T) {
	f := newActivityFixture(t)
	fan := domain.Actor{UserID: "fan1"}

	require.NoError(t, f.activity.Follow(context.Background(), fan, "owner"))
	// following twice is idempotent and does not notify again
	require.NoError(t, f.activity.Follow(context.Background(), fan, "owner"))

	assert.Equal(t, []domain.NotificationKind{domain.KindFollow}, f.byRecipient()["owner"])

	assert.True(t, domain.IsValidation(f.activity.Follow(context.Background(), fan, "fan1")))
	assert.ErrorIs(t, f.activity.Follow(context.Background(), fan, "nobody"), domain.ErrNotFound)
}

func TestLike(t *testing.T) {
	f := newActivityFixture(t)

	require.NoError(t, f.activity.Like(context.Background(), domain.Actor{UserID: "fan1"}, "s1"))
	require.NoError(t, f.activity.Like(context.Background(), domain.Actor{UserID: "fan1"}, "s1"))
	require.NoError(t, f.activity.Like(context.Background(), domain.Actor{UserID: "owner"}, "s1"))

	assert.Equal(t, []domain.NotificationKind{domain.KindLike}, f.byRecipient()["owner"])
	assert.ErrorIs(t, f.activity.Like(context.Background(), domain.Actor{UserID: "fan1"}, "nope"), domain.ErrNotFound)
}

func TestPublishFansOutToFollowers(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	require.NoError(t, f.activity.Follow(ctx, domain.Actor{UserID: "fan1"}, "owner"))
	require.NoError(t, f.activity.Follow(ctx, domain.Actor{UserID: "fan2"}, "owner"))

	owner := domain.Actor{UserID: "owner"}
	release, err := f.activity.Publish(ctx, owner, domain.PublishRequest{ID: "al1", Kind: "album", Title: "Blue Hours"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReleaseAlbum, release.Kind)

	got := f.byRecipient()
	assert.Equal(t, []domain.NotificationKind{domain.KindNewAlbum}, got["fan1"])
	assert.Equal(t, []domain.NotificationKind{domain.KindNewAlbum}, got["fan2"])

	for _, n := range f.store.Notifications() {
		if n.Kind == domain.KindNewAlbum {
			assert.Equal(t, "/albums/al1", n.Link)
		}
	}
}

func TestPublishRejectsForeignRelease(t *testing.T) {
	f := newActivityFixture(t)

	_, err := f.activity.Publish(context.Background(), domain.Actor{UserID: "fan1"},
		domain.PublishRequest{ID: "s1", Kind: "song", Title: "Stolen"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.activity.Publish(context.Background(), domain.Actor{UserID: "fan1"},
		domain.PublishRequest{ID: "x1", Kind: "mixtape", Title: "Tape"})
	assert.True(t, domain.IsValidation(err))
}

func TestPublishUpdateKeepsOwnerAndIsNotAnnounced(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()
	require.NoError(t, f.activity.Follow(ctx, domain.Actor{UserID: "fan1"}, "owner"))

	mod := domain.Actor{UserID: "mod", Admin: true}
	release, err := f.activity.Publish(ctx, mod, domain.PublishRequest{ID: "s1", Kind: "song", Title: "Night Drive (Remastered)"})
	require.NoError(t, err)
	assert.Equal(t, "owner", release.OwnerID)

	stored, err := f.store.GetRelease(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "owner", stored.OwnerID)
	assert.Equal(t, "Night Drive (Remastered)", stored.Title)

	// the owner can still edit it
	_, err = f.activity.Publish(ctx, domain.Actor{UserID: "owner"}, domain.PublishRequest{ID: "s1", Kind: "song", Title: "Night Drive"})
	require.NoError(t, err)

	assert.Equal(t, []domain.NotificationKind{domain.KindFollow}, f.byRecipient()["owner"])
	assert.NotContains(t, f.byRecipient(), "fan1")
}

// stalledStore never finishes a notification write before its deadline.
type stalledStore struct {
	*repository.MemoryStore
}

func (stalledStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestFanOutDoesNotBlockRequest(t *testing.T) {
	store := repository.NewMemoryStore()
	const timeout = 50 * time.Millisecond
	notifier := domain.NewNotificationService(stalledStore{store}, store, nil, nil, timeout, zap.NewNop())
	activity := domain.NewActivityService(domain.ActivityRepositories{
		Users: store, Releases: store, Follows: store, Favorites: store, Comments: store,
	}, notifier, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, store.CreateFollow(ctx, &domain.Follow{
			FollowerID: fmt.Sprintf("fan%d", i), FolloweeID: "owner", CreatedAt: time.Now(),
		}))
	}
	_, err := store.UpsertUser(ctx, &domain.User{ID: "fan0", Handle: "fan0"})
	require.NoError(t, err)

	start := time.Now()
	_, err = activity.Publish(ctx, domain.Actor{UserID: "owner"}, domain.PublishRequest{ID: "al1", Kind: "album", Title: "Slow"})
	require.NoError(t, err)
	_, err = activity.Comment(ctx, domain.Actor{UserID: "owner"}, "al1", domain.CreateCommentRequest{Text: "@fan0 hi"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), timeout)

	activity.Wait()
}
