package analytics

import (
	"sort"
	"time"

	"github.com/platinummonkey/beacon/pkg/telemetry"
)

// UnknownVersion groups identities that never reported a script version
const UnknownVersion = "unknown"

// UserStats summarizes identities seen in the period
type UserStats struct {
	UniqueUsers        int     `json:"unique_users"`
	ActiveUsers        int     `json:"active_users"`
	ReturningUsers     int     `json:"returning_users"`
	AvgSessionsPerUser float64 `json:"avg_sessions_per_user"`
	NamedUsers         int     `json:"named_users"`
	AnonymousUsers     int     `json:"anonymous_users"`
}

// VersionStat counts identities by their latest script version
type VersionStat struct {
	Version        string  `json:"version"`
	TotalUsers     int     `json:"total_users"`
	AnonymousUsers int     `json:"anonymous_users"`
	NamedUsers     int     `json:"named_users"`
	ActiveUsers    int     `json:"active_users"`
	ActiveRatio    float64 `json:"active_ratio"`
}

// UserSummary is one row of the user list
type UserSummary struct {
	Identity           string    `json:"identity"`
	Username           string    `json:"username,omitempty"`
	AnonymousID        string    `json:"anonymous_id,omitempty"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
	Sessions           int       `json:"sessions"`
	SuccessfulSessions int       `json:"successful_sessions"`
	LatestVersion      string    `json:"latest_version"`
	Active             bool      `json:"active"`
}

// UsersOverview combines identity statistics with the version distribution
type UsersOverview struct {
	Users    *UserStats    `json:"users"`
	Versions []VersionStat `json:"versions"`
}

// VersionUsage is one entry of a user's version history
type VersionUsage struct {
	Version   string    `json:"version"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// UserDetail describes a single named user
type UserDetail struct {
	Username           string          `json:"username"`
	FirstSeen          time.Time       `json:"first_seen"`
	LastSeen           time.Time       `json:"last_seen"`
	TotalSessions      int             `json:"total_sessions"`
	SuccessfulSessions int             `json:"successful_sessions"`
	SuccessRate        float64         `json:"success_rate"`
	Active             bool            `json:"active"`
	VersionHistory     []VersionUsage  `json:"version_history"`
	RecentSessions     []RecentSession `json:"recent_sessions"`
}

type identityActivity struct {
	identity      string
	username      string
	anonymousID   string
	named         bool
	firstSeen     time.Time
	lastSeen      time.Time
	sessions      map[string]struct{}
	latestVersion string
	versionSeen   time.Time
}

// identityResolver maps events to the installation identity behind them.
// An anonymousId seen alongside a username resolves to that username, and
// every event of a session resolves to the session's identity.
type identityResolver struct {
	anonUser    map[string]string
	sessionUser map[string]string
	sessionAnon map[string]string
}

func newIdentityResolver(events []*telemetry.Event) *identityResolver {
	r := &identityResolver{
		anonUser:    make(map[string]string),
		sessionUser: make(map[string]string),
		sessionAnon: make(map[string]string),
	}
	for _, e := range events {
		sid := e.SessionKey()
		anon := ""
		if e.AnonymousID != nil {
			anon = *e.AnonymousID
		}
		if e.IsNamed() {
			if _, ok := r.anonUser[anon]; anon != "" && !ok {
				r.anonUser[anon] = *e.Username
			}
			if _, ok := r.sessionUser[sid]; sid != "" && !ok {
				r.sessionUser[sid] = *e.Username
			}
		}
		if _, ok := r.sessionAnon[sid]; sid != "" && anon != "" && !ok {
			r.sessionAnon[sid] = anon
		}
	}
	return r
}

// resolve returns the identity and whether it is a username. The identity
// is "" when the event cannot be attributed to anyone.
func (r *identityResolver) resolve(e *telemetry.Event) (string, bool) {
	if e.IsNamed() {
		return *e.Username, true
	}
	sid := e.SessionKey()
	if name, ok := r.sessionUser[sid]; ok {
		return name, true
	}
	anon := ""
	if e.AnonymousID != nil {
		anon = *e.AnonymousID
	}
	if anon == "" {
		anon = r.sessionAnon[sid]
	}
	if anon == "" {
		return "", false
	}
	if name, ok := r.anonUser[anon]; ok {
		return name, true
	}
	return anon, false
}

// collectIdentities resolves every event to its identity, in order of
// first appearance. Events that cannot be attributed are skipped.
func collectIdentities(events []*telemetry.Event) []*identityActivity {
	resolver := newIdentityResolver(events)
	order := make([]*identityActivity, 0)
	byID := make(map[string]*identityActivity)

	for _, e := range events {
		id, named := resolver.resolve(e)
		if id == "" {
			continue
		}
		a, ok := byID[id]
		if !ok {
			a = &identityActivity{
				identity:  id,
				firstSeen: e.Timestamp,
				lastSeen:  e.Timestamp,
				sessions:  make(map[string]struct{}),
			}
			byID[id] = a
			order = append(order, a)
		}

		if named {
			a.named = true
			a.username = id
		}
		if a.anonymousID == "" && e.AnonymousID != nil {
			a.anonymousID = *e.AnonymousID
		}
		if e.Timestamp.Before(a.firstSeen) {
			a.firstSeen = e.Timestamp
		}
		if e.Timestamp.After(a.lastSeen) {
			a.lastSeen = e.Timestamp
		}
		if sid := e.SessionKey(); sid != "" {
			a.sessions[sid] = struct{}{}
		}
		if e.ScriptVersion != nil && *e.ScriptVersion != "" &&
			(a.latestVersion == "" || !e.Timestamp.Before(a.versionSeen)) {
			a.latestVersion = *e.ScriptVersion
			a.versionSeen = e.Timestamp
		}
	}

	return order
}

// eventsOf keeps the events that resolve to identity
func eventsOf(events []*telemetry.Event, identity string) []*telemetry.Event {
	resolver := newIdentityResolver(events)
	out := make([]*telemetry.Event, 0, len(events))
	for _, e := range events {
		if id, _ := resolver.resolve(e); id == identity {
			out = append(out, e)
		}
	}
	return out
}

// findIdentity returns the activity for identity, or nil
func findIdentity(identities []*identityActivity, identity string) *identityActivity {
	for _, a := range identities {
		if a.identity == identity {
			return a
		}
	}
	return nil
}

func (a *identityActivity) active(now time.Time) bool {
	return !a.lastSeen.Before(now.Add(-ActiveWindow))
}

func (a *identityActivity) version() string {
	if a.latestVersion == "" {
		return UnknownVersion
	}
	return a.latestVersion
}

func (a *identityActivity) successfulSessions(succeeded map[string]bool) int {
	n := 0
	for sid := range a.sessions {
		if succeeded[sid] {
			n++
		}
	}
	return n
}

func successIndex(sessions []*SessionSummary) map[string]bool {
	index := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		index[s.SessionID] = s.Success
	}
	return index
}

func buildUserStats(identities []*identityActivity, sessions []*SessionSummary, now time.Time) *UserStats {
	succeeded := successIndex(sessions)
	stats := &UserStats{UniqueUsers: len(identities)}

	totalSessions := 0
	for _, a := range identities {
		totalSessions += len(a.sessions)
		if a.active(now) {
			stats.ActiveUsers++
		}
		if a.successfulSessions(succeeded) > 1 {
			stats.ReturningUsers++
		}
		if a.named {
			stats.NamedUsers++
		} else {
			stats.AnonymousUsers++
		}
	}

	if stats.UniqueUsers > 0 {
		stats.AvgSessionsPerUser = float64(totalSessions) / float64(stats.UniqueUsers)
	}
	return stats
}

// buildVersionDistribution sorts by total users desc, then version asc
func buildVersionDistribution(identities []*identityActivity, now time.Time) []VersionStat {
	byVersion := make(map[string]*VersionStat)
	for _, a := range identities {
		v := a.version()
		stat, ok := byVersion[v]
		if !ok {
			stat = &VersionStat{Version: v}
			byVersion[v] = stat
		}
		stat.TotalUsers++
		if a.named {
			stat.NamedUsers++
		} else {
			stat.AnonymousUsers++
		}
		if a.active(now) {
			stat.ActiveUsers++
		}
	}

	out := make([]VersionStat, 0, len(byVersion))
	for _, stat := range byVersion {
		stat.ActiveRatio = ratio(stat.ActiveUsers, stat.TotalUsers)
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalUsers != out[j].TotalUsers {
			return out[i].TotalUsers > out[j].TotalUsers
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// buildUserList orders identities by last seen, most recent first
func buildUserList(identities []*identityActivity, sessions []*SessionSummary, now time.Time) []UserSummary {
	succeeded := successIndex(sessions)
	out := make([]UserSummary, 0, len(identities))
	for _, a := range identities {
		out = append(out, UserSummary{
			Identity:           a.identity,
			Username:           a.username,
			AnonymousID:        a.anonymousID,
			FirstSeen:          a.firstSeen,
			LastSeen:           a.lastSeen,
			Sessions:           len(a.sessions),
			SuccessfulSessions: a.successfulSessions(succeeded),
			LatestVersion:      a.version(),
			Active:             a.active(now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// buildVersionHistory lists each version a user reported, by first use
func buildVersionHistory(events []*telemetry.Event) []VersionUsage {
	index := make(map[string]int)
	history := make([]VersionUsage, 0)
	for _, e := range events {
		if e.ScriptVersion == nil || *e.ScriptVersion == "" {
			continue
		}
		v := *e.ScriptVersion
		pos, ok := index[v]
		if !ok {
			index[v] = len(history)
			history = append(history, VersionUsage{Version: v, FirstSeen: e.Timestamp, LastSeen: e.Timestamp})
			continue
		}
		if e.Timestamp.Before(history[pos].FirstSeen) {
			history[pos].FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(history[pos].LastSeen) {
			history[pos].LastSeen = e.Timestamp
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].FirstSeen.Before(history[j].FirstSeen)
	})
	return history
}
