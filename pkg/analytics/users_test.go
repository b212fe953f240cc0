package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUsers(t *testing.T, f *fixture) {
	t.Helper()
	recent := testNow.Add(-48 * time.Hour)
	old := testNow.Add(-60 * 24 * time.Hour)

	// alice: two successful sessions, upgrades 1.0 -> 1.1
	f.track(t, ev("a1", "install", "completed", old, map[string]interface{}{"username": "alice", "anonymousId": "anon-a", "scriptVersion": "1.0"}))
	f.track(t, ev("a1", "deploy", "success", old.Add(time.Minute), map[string]interface{}{"username": "alice"}))
	f.track(t, ev("a2", "install", "completed", recent, map[string]interface{}{"username": "alice", "scriptVersion": "1.1"}))
	f.track(t, ev("a2", "deploy", "success", recent.Add(time.Minute), map[string]interface{}{"username": "alice"}))

	// anonymous installer on 1.1 with one failed session
	f.track(t, ev("b1", "install", "failure", recent.Add(time.Hour), map[string]interface{}{"anonymousId": "anon-b", "scriptVersion": "1.1"}))

	// inactive anonymous installer without a version
	f.track(t, ev("c1", "install", "completed", old, map[string]interface{}{"anonymousId": "anon-c"}))

	// no identity at all
	f.track(t, ev("d1", "install", "completed", recent))
}

func TestGetUserStats(t *testing.T) {
	f := newFixture(t, false)
	seedUsers(t, f)

	stats, err := f.service.GetUserStats(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.UniqueUsers)
	assert.Equal(t, 2, stats.ActiveUsers)
	assert.Equal(t, 1, stats.ReturningUsers)
	assert.Equal(t, 1, stats.NamedUsers)
	assert.Equal(t, 2, stats.AnonymousUsers)
	assert.InDelta(t, 4.0/3.0, stats.AvgSessionsPerUser, 1e-9)
}

func TestGetUserStats_Empty(t *testing.T) {
	f := newFixture(t, false)

	stats, err := f.service.GetUserStats(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, &UserStats{}, stats)
}

func TestGetVersionDistribution(t *testing.T) {
	f := newFixture(t, false)
	seedUsers(t, f)

	versions, err := f.service.GetVersionDistribution(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, versions, 2)
	assert.Equal(t, VersionStat{
		Version: "1.1", TotalUsers: 2, AnonymousUsers: 1, NamedUsers: 1, ActiveUsers: 2, ActiveRatio: 1,
	}, versions[0])
	assert.Equal(t, VersionStat{
		Version: "unknown", TotalUsers: 1, AnonymousUsers: 1, ActiveUsers: 0, ActiveRatio: 0,
	}, versions[1])
}

func TestBuildVersionDistribution_TiesSortByVersion(t *testing.T) {
	identities := []*identityActivity{
		{identity: "x", latestVersion: "2.0", lastSeen: testNow},
		{identity: "y", latestVersion: "1.0", lastSeen: testNow.Add(-90 * 24 * time.Hour)},
	}

	versions := buildVersionDistribution(identities, testNow)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0", versions[0].Version)
	assert.Equal(t, 0.0, versions[0].ActiveRatio)
	assert.Equal(t, "2.0", versions[1].Version)
	assert.Equal(t, 1.0, versions[1].ActiveRatio)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t, false)
	seedUsers(t, f)

	users, err := f.service.ListUsers(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, "anon-b", users[0].Identity)
	assert.Equal(t, "alice", users[1].Identity)
	assert.Equal(t, "alice", users[1].Username)
	assert.Equal(t, "anon-a", users[1].AnonymousID)
	assert.Equal(t, 2, users[1].Sessions)
	assert.Equal(t, 2, users[1].SuccessfulSessions)
	assert.Equal(t, "1.1", users[1].LatestVersion)
	assert.True(t, users[1].Active)
	assert.Equal(t, "anon-c", users[2].Identity)
	assert.Equal(t, UnknownVersion, users[2].LatestVersion)
	assert.False(t, users[2].Active)
}

func TestGetUsersOverview_StartDate(t *testing.T) {
	f := newFixture(t, false)
	seedUsers(t, f)

	start := testNow.Add(-7 * 24 * time.Hour)
	overview, err := f.service.GetUsersOverview(context.Background(), &start)
	require.NoError(t, err)

	assert.Equal(t, 2, overview.Users.UniqueUsers)
	assert.Equal(t, 0, overview.Users.ReturningUsers)
	require.Len(t, overview.Versions, 1)
	assert.Equal(t, "1.1", overview.Versions[0].Version)
}

func TestGetUserDetail(t *testing.T) {
	f := newFixture(t, false)
	seedUsers(t, f)

	detail, err := f.service.GetUserDetail(context.Background(), "alice", nil)
	require.NoError(t, err)

	assert.Equal(t, "alice", detail.Username)
	assert.Equal(t, 2, detail.TotalSessions)
	assert.Equal(t, 2, detail.SuccessfulSessions)
	assert.Equal(t, 100.0, detail.SuccessRate)
	assert.True(t, detail.Active)

	require.Len(t, detail.VersionHistory, 2)
	assert.Equal(t, "1.0", detail.VersionHistory[0].Version)
	assert.Equal(t, "1.1", detail.VersionHistory[1].Version)

	require.Len(t, detail.RecentSessions, 2)
	assert.Equal(t, "a2", detail.RecentSessions[0].SessionID)
	assert.Equal(t, "a1", detail.RecentSessions[1].SessionID)
}

func TestGetUserDetail_NotFound(t *testing.T) {
	f := newFixture(t, false)
	seedUsers(t, f)

	_, err := f.service.GetUserDetail(context.Background(), "mallory", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	// anonymous ids are not usernames
	_, err = f.service.GetUserDetail(context.Background(), "anon-b", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

// seedLateLogin records one installation that authenticates partway
// through: the deploy event carries only the anonymous id
func seedLateLogin(t *testing.T, f *fixture) {
	t.Helper()
	start := testNow.Add(-time.Hour)
	f.track(t, ev("x1", "install", "completed", start, map[string]interface{}{
		"username": "bob", "anonymousId": "anon-bob", "osName": "Ubuntu", "scriptVersion": "2.0",
	}))
	f.track(t, ev("x1", "deploy", "success", start.Add(5*time.Minute), map[string]interface{}{"anonymousId": "anon-bob"}))
}

func TestGetUserDetail_SessionLoadedWhole(t *testing.T) {
	f := newFixture(t, false)
	seedLateLogin(t, f)

	session, err := f.service.Sessions().GetSession(context.Background(), "x1")
	require.NoError(t, err)
	require.True(t, session.Success)

	detail, err := f.service.GetUserDetail(context.Background(), "bob", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, detail.TotalSessions)
	assert.Equal(t, 1, detail.SuccessfulSessions)
	assert.Equal(t, 100.0, detail.SuccessRate)
	require.Len(t, detail.RecentSessions, 1)
	assert.Equal(t, "x1", detail.RecentSessions[0].SessionID)
	assert.True(t, detail.RecentSessions[0].Success)
	assert.Equal(t, 300.0, detail.RecentSessions[0].DurationSeconds)
	assert.Equal(t, session.Success, detail.RecentSessions[0].Success)
}

func TestListUsers_AnonymousIDResolvesToUsername(t *testing.T) {
	f := newFixture(t, false)
	seedLateLogin(t, f)

	// a later unauthenticated run from the same installation
	f.track(t, ev("x2", "install", "failure", testNow.Add(-10*time.Minute), map[string]interface{}{"anonymousId": "anon-bob"}))

	users, err := f.service.ListUsers(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Identity)
	assert.Equal(t, "anon-bob", users[0].AnonymousID)
	assert.Equal(t, 2, users[0].Sessions)
	assert.Equal(t, 1, users[0].SuccessfulSessions)

	stats, err := f.service.GetUserStats(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UniqueUsers)
	assert.Equal(t, 1, stats.NamedUsers)
	assert.Equal(t, 0, stats.AnonymousUsers)
	assert.Equal(t, 2.0, stats.AvgSessionsPerUser)

	detail, err := f.service.GetUserDetail(context.Background(), "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.TotalSessions)
	assert.Equal(t, 1, detail.SuccessfulSessions)
	assert.Equal(t, 50.0, detail.SuccessRate)
}

func TestCollectIdentities_SessionWithoutIdentifiersOnSomeEvents(t *testing.T) {
	f := newFixture(t, false)
	start := testNow.Add(-time.Hour)
	f.track(t, ev("y1", "install", "completed", start, map[string]interface{}{"anonymousId": "anon-y"}))
	f.track(t, ev("y1", "deploy", "success", start.Add(time.Minute)))

	users, err := f.service.ListUsers(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "anon-y", users[0].Identity)
	assert.Equal(t, 1, users[0].SuccessfulSessions)
	assert.True(t, users[0].LastSeen.Equal(start.Add(time.Minute)))
}
