package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/db"
	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/engine"
	"github.com/and27/pcengine/internal/migrate"
	"github.com/and27/pcengine/internal/repo"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn, dialect))
	r := repo.New(conn, dialect).WithClock(fixedNow)
	eng := engine.New(r, config.Default(), nil)
	eng.Now = fixedNow
	return testEnv{Engine: eng, Repo: r, Ctx: ctx}
}

func (env testEnv) create(t *testing.T, name, status string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, "tester", engine.CreateProjectInput{
		Name:       name,
		NextAction: "next " + name,
		Status:     status,
	})
	require.NoError(t, err)
	return p
}

func (env testEnv) activeCount(t *testing.T) int {
	t.Helper()
	n, err := env.Repo.CountActive(env.Ctx)
	require.NoError(t, err)
	return n
}

func snap(summary string) engine.SnapshotInput {
	return engine.SnapshotInput{Summary: summary}
}

func TestCreateRespectsActiveCap(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "one", "active")
	env.create(t, "two", "active")

	p, err := env.Engine.CreateProject(env.Ctx, "tester", engine.CreateProjectInput{
		Name: "Alpha", NextAction: "Draft outline", Status: "active",
	})
	require.NoError(t, err)
	require.NotNil(t, p.StartDate)
	assert.Equal(t, 3, env.activeCount(t))

	_, err = env.Engine.CreateProject(env.Ctx, "tester", engine.CreateProjectInput{
		Name: "Beta", NextAction: "Draft outline", Status: "active",
	})
	assert.ErrorIs(t, err, domain.ErrActiveCapReached)
	assert.Equal(t, 3, env.activeCount(t))

	frozen := env.create(t, "gamma", "frozen")
	assert.Equal(t, domain.StatusFrozen, frozen.Status)
	assert.Nil(t, frozen.StartDate)
}

func TestCreateUsesConfiguredDefaultStatus(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "default", "")
	assert.Equal(t, domain.StatusActive, p.Status)

	env.Engine.Lifecycle.DefaultStatus = "frozen"
	p = env.create(t, "other", "")
	assert.Equal(t, domain.StatusFrozen, p.Status)
}

func TestCreateValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name  string
		in    engine.CreateProjectInput
		field string
	}{
		{"blank name", engine.CreateProjectInput{Name: "  ", NextAction: "x"}, "name"},
		{"blank next action", engine.CreateProjectInput{Name: "a", NextAction: " "}, "next_action"},
		{"long next action", engine.CreateProjectInput{Name: "a", NextAction: strings.Repeat("x", 141)}, "next_action"},
		{"bad status", engine.CreateProjectInput{Name: "a", NextAction: "x", Status: "paused"}, "status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateProject(env.Ctx, "tester", tc.in)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestLaunchAtCapBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "a", "active")
	env.create(t, "b", "active")
	p := env.create(t, "c", "frozen")
	q := env.create(t, "d", "frozen")

	launched, err := env.Engine.Launch(env.Ctx, "tester", p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, launched.Status)
	require.NotNil(t, launched.StartDate)
	assert.Equal(t, 3, env.activeCount(t))

	_, err = env.Engine.Launch(env.Ctx, "tester", q.ID)
	assert.ErrorIs(t, err, domain.ErrActiveCapReached)
	got, err := env.Engine.GetProject(env.Ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFrozen, got.Status)
}

func TestStartDateSurvivesRelaunch(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")
	first := *p.StartDate

	later := func() time.Time { return fixedNow().Add(48 * time.Hour) }
	env.Engine.Projects = env.Repo.WithClock(later)
	_, err := env.Engine.Freeze(env.Ctx, "tester", p.ID, snap("pause"))
	require.NoError(t, err)
	relaunched, err := env.Engine.Launch(env.Ctx, "tester", p.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *relaunched.StartDate)
}

func TestConcurrentLaunchesAdmitOne(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "a", "active")
	env.create(t, "b", "active")
	x := env.create(t, "x", "frozen")
	y := env.create(t, "y", "frozen")

	errs := make([]error, 2)
	var g errgroup.Group
	for i, id := range []string{x.ID, y.ID} {
		g.Go(func() error {
			_, errs[i] = env.Engine.Launch(env.Ctx, "tester", id)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ok, capped := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrActiveCapReached):
			capped++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, capped)
	assert.Equal(t, 3, env.activeCount(t))
}

func TestFreezeAndFinishRequireSnapshot(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")

	_, err := env.Engine.Apply(env.Ctx, "tester", p.ID, domain.ActionFreeze, nil)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "summary", ve.Field)

	_, err = env.Engine.Finish(env.Ctx, "tester", p.ID, snap("   "))
	require.ErrorAs(t, err, &ve)

	got, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
}

func TestFreezeRecordsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")

	frozen, err := env.Engine.Freeze(env.Ctx, "tester", p.ID, snap("Paused for Q"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFrozen, frozen.Status)

	snaps, err := env.Engine.Snapshots(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, domain.SnapshotFreeze, snaps[0].Kind)
	assert.Equal(t, "Paused for Q", snaps[0].Summary)
}

func TestFreezeOfFrozenProjectIsInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "p1", "frozen")

	_, err := env.Engine.Freeze(env.Ctx, "tester", p.ID, snap("Paused for Q"))
	var te *domain.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Cannot freeze a frozen project", err.Error())

	snaps, err := env.Engine.Snapshots(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestFinishSetsFinishDateAndArchives(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "frozen")

	done, err := env.Engine.Finish(env.Ctx, "tester", p.ID, snap("shipped"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, done.Status)
	require.NotNil(t, done.FinishDate)

	snaps, err := env.Engine.Snapshots(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, domain.SnapshotFinish, snaps[0].Kind)

	_, err = env.Engine.Finish(env.Ctx, "tester", p.ID, snap("again"))
	var te *domain.InvalidTransitionError
	require.ErrorAs(t, err, &te)
}

// staleStore serves a fixed copy of a project from GetProject, as if the
// caller had read it before another writer moved it.
type staleStore struct {
	engine.ProjectStore
	stale domain.Project
}

func (s staleStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	if id == s.stale.ID {
		return s.stale, nil
	}
	return s.ProjectStore.GetProject(ctx, id)
}

func TestArchiveWithStaleStatusConflicts(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")

	_, err := env.Engine.Freeze(env.Ctx, "winner", p.ID, snap("winner froze it"))
	require.NoError(t, err)

	loser := env.Engine
	loser.Projects = staleStore{ProjectStore: env.Engine.Projects, stale: p}
	_, err = loser.Archive(env.Ctx, "loser", p.ID)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	got, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFrozen, got.Status)
}

func TestArchiveFromActiveAndFrozen(t *testing.T) {
	env := newTestEnv(t)
	for _, status := range []string{"active", "frozen"} {
		p := env.create(t, status, status)
		archived, err := env.Engine.Archive(env.Ctx, "tester", p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusArchived, archived.Status)
	}
}

func TestApplyRejectsActionsWithOwnOperation(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")
	for _, action := range []domain.Action{domain.ActionRestart, domain.ActionDelete, domain.ActionCreate} {
		_, err := env.Engine.Apply(env.Ctx, "tester", p.ID, action, nil)
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve, action.String())
	}
}

func TestUpdateProjectNeverChangesStatus(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "frozen")
	name := "renamed"
	blank := " "
	why := "because"
	updated, err := env.Engine.UpdateProject(env.Ctx, "tester", p.ID, engine.UpdateProjectInput{
		Name:   &name,
		WhyNow: &why,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, domain.StatusFrozen, updated.Status)
	require.NotNil(t, updated.WhyNow)

	updated, err = env.Engine.UpdateProject(env.Ctx, "tester", p.ID, engine.UpdateProjectInput{WhyNow: &blank})
	require.NoError(t, err)
	assert.Nil(t, updated.WhyNow)

	_, err = env.Engine.UpdateProject(env.Ctx, "tester", p.ID, engine.UpdateProjectInput{})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestOverrideValidatesBeforeStore(t *testing.T) {
	env := newTestEnv(t)
	good := engine.OverrideInput{
		LaunchProjectID: "a",
		FreezeProjectID: "b",
		Snapshot:        snap("pause b"),
		Decision:        engine.DecisionInput{Reason: "urgent", TradeOff: "b waits"},
	}
	cases := map[string]func(in *engine.OverrideInput){
		"same ids":         func(in *engine.OverrideInput) { in.FreezeProjectID = in.LaunchProjectID },
		"missing launch":   func(in *engine.OverrideInput) { in.LaunchProjectID = "" },
		"missing summary":  func(in *engine.OverrideInput) { in.Snapshot.Summary = "" },
		"missing reason":   func(in *engine.OverrideInput) { in.Decision.Reason = "" },
		"missing tradeoff": func(in *engine.OverrideInput) { in.Decision.TradeOff = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := good
			mutate(&in)
			_, err := env.Engine.Override(env.Ctx, "tester", in)
			var ve *domain.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestOverrideKeepsActiveCount(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "a", "active")
	env.create(t, "b", "active")
	env.create(t, "c", "active")
	waiting := env.create(t, "waiting", "frozen")
	before := env.activeCount(t)

	res, err := env.Engine.Override(env.Ctx, "tester", engine.OverrideInput{
		LaunchProjectID: waiting.ID,
		FreezeProjectID: a.ID,
		Snapshot:        snap("making room"),
		Decision:        engine.DecisionInput{Reason: "deadline", TradeOff: "a slips"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, res.Launched.Status)
	assert.Equal(t, domain.StatusFrozen, res.Frozen.Status)
	assert.Equal(t, before, env.activeCount(t))

	decisions, err := env.Engine.Decisions(env.Ctx, waiting.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "deadline", decisions[0].Reason)
}

func TestOverrideRequiresActiveAndFrozen(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "a", "frozen")
	b := env.create(t, "b", "frozen")

	_, err := env.Engine.Override(env.Ctx, "tester", engine.OverrideInput{
		LaunchProjectID: a.ID,
		FreezeProjectID: b.ID,
		Snapshot:        snap("x"),
		Decision:        engine.DecisionInput{Reason: "r", TradeOff: "t"},
	})
	require.Error(t, err)

	got, err := env.Engine.GetProject(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFrozen, got.Status)
	snaps, err := env.Engine.Snapshots(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRestartArchived(t *testing.T) {
	env := newTestEnv(t)
	active := env.create(t, "active", "active")
	frozen := env.create(t, "frozen", "frozen")
	for _, p := range []domain.Project{active, frozen} {
		_, err := env.Engine.Restart(env.Ctx, "tester", p.ID, "try again")
		var te *domain.InvalidTransitionError
		require.ErrorAs(t, err, &te)
	}

	archived, err := env.Engine.Archive(env.Ctx, "tester", frozen.ID)
	require.NoError(t, err)
	restarted, err := env.Engine.Restart(env.Ctx, "tester", archived.ID, "try again")
	require.NoError(t, err)
	assert.NotEqual(t, archived.ID, restarted.ID)
	assert.Equal(t, domain.StatusFrozen, restarted.Status)
	assert.Equal(t, "try again", restarted.NextAction)
	assert.Equal(t, "frozen", restarted.Name)

	original, err := env.Engine.GetProject(env.Ctx, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, archived, original)
}

func TestDeleteOnlyArchived(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "frozen")
	err := env.Engine.Delete(env.Ctx, "tester", p.ID)
	var te *domain.InvalidTransitionError
	require.ErrorAs(t, err, &te)

	_, err = env.Engine.Archive(env.Ctx, "tester", p.ID)
	require.NoError(t, err)
	require.NoError(t, env.Engine.Delete(env.Ctx, "tester", p.ID))
	_, err = env.Engine.GetProject(env.Ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListProjectsFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "a", "active")
	env.create(t, "b", "frozen")

	all, err := env.Engine.ListProjects(env.Ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	frozen, err := env.Engine.ListProjects(env.Ctx, "frozen")
	require.NoError(t, err)
	require.Len(t, frozen, 1)
	assert.Equal(t, "b", frozen[0].Name)

	_, err = env.Engine.ListProjects(env.Ctx, "paused")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestReviewContinueAndQueue(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")
	env.create(t, "b", "frozen")

	queue, err := env.Engine.ReviewQueue(env.Ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, p.ID, queue[0].ID)

	next := "write chapter two"
	reviewed, err := env.Engine.Review(env.Ctx, "tester", p.ID, engine.ReviewInput{Decision: "continue", NextAction: &next})
	require.NoError(t, err)
	assert.Equal(t, next, reviewed.NextAction)
	require.NotNil(t, reviewed.LastReviewedAt)

	queue, err = env.Engine.ReviewQueue(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	env.Engine.Now = func() time.Time { return fixedNow().Add(8 * 24 * time.Hour) }
	queue, err = env.Engine.ReviewQueue(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestReviewFreezeAndGuards(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")

	_, err := env.Engine.Review(env.Ctx, "tester", p.ID, engine.ReviewInput{Decision: "continue"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = env.Engine.Review(env.Ctx, "tester", p.ID, engine.ReviewInput{Decision: "pivot"})
	require.ErrorAs(t, err, &ve)

	s := snap("stepping back")
	frozen, err := env.Engine.Review(env.Ctx, "tester", p.ID, engine.ReviewInput{Decision: "freeze", Snapshot: &s})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFrozen, frozen.Status)
	require.NotNil(t, frozen.LastReviewedAt)

	_, err = env.Engine.Review(env.Ctx, "tester", p.ID, engine.ReviewInput{Decision: "freeze", Snapshot: &s})
	require.ErrorAs(t, err, &ve)
}

type fakeRepos struct {
	token string
	repos []domain.DraftImport
}

func (f *fakeRepos) ListRepos(_ context.Context, token string) ([]domain.DraftImport, error) {
	f.token = token
	return f.repos, nil
}

func TestDraftsRequireUser(t *testing.T) {
	env := newTestEnv(t)
	anon := domain.UserContext{}
	_, err := env.Engine.ListDrafts(env.Ctx, anon)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = env.Engine.ImportDrafts(env.Ctx, anon, []domain.DraftImport{{GitHubRepoID: 1}})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = env.Engine.ConvertDraft(env.Ctx, anon, "d", engine.ConvertDraftInput{Name: "x", NextAction: "y"})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = env.Engine.AccessToken(env.Ctx, anon)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	state, err := env.Engine.ConnectionState(env.Ctx, anon)
	require.NoError(t, err)
	assert.False(t, state.Connected)
}

func TestImportAndConvertDraftOnce(t *testing.T) {
	env := newTestEnv(t)
	user := domain.UserContext{UserID: "u1"}

	n, err := env.Engine.ImportDrafts(env.Ctx, user, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = env.Engine.ImportDrafts(env.Ctx, user, []domain.DraftImport{{GitHubRepoID: 9, FullName: "me/x"}})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "html_url", ve.Field)

	n, err = env.Engine.ImportDrafts(env.Ctx, user, []domain.DraftImport{{
		GitHubRepoID: 42,
		FullName:     "me/book",
		HTMLURL:      "https://github.com/me/book",
		Visibility:   "PRIVATE",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	drafts, err := env.Engine.ListDrafts(env.Ctx, user)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "private", drafts[0].Visibility)
	assert.Equal(t, "main", drafts[0].DefaultBranch)

	in := engine.ConvertDraftInput{Name: "Book", NextAction: "outline"}
	projectID, err := env.Engine.ConvertDraft(env.Ctx, user, drafts[0].ID, in)
	require.NoError(t, err)
	p, err := env.Engine.GetProject(env.Ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFrozen, p.Status)
	require.NotNil(t, p.NarrativeLink)
	assert.Equal(t, "https://github.com/me/book", *p.NarrativeLink)

	_, err = env.Engine.ConvertDraft(env.Ctx, user, drafts[0].ID, in)
	assert.ErrorIs(t, err, domain.ErrAlreadyConverted)
	all, err := env.Engine.ListProjects(env.Ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = env.Engine.GetDraft(env.Ctx, domain.UserContext{UserID: "u2"}, drafts[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestImportFromGitHubUsesStoredToken(t *testing.T) {
	env := newTestEnv(t)
	user := domain.UserContext{UserID: "u1"}
	lister := &fakeRepos{repos: []domain.DraftImport{{GitHubRepoID: 7, FullName: "me/app", HTMLURL: "https://github.com/me/app"}}}
	env.Engine.Repos = lister

	_, err := env.Engine.ImportFromGitHub(env.Ctx, user)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	require.NoError(t, env.Engine.Connect(env.Ctx, domain.GitHubConnection{
		UserID: "u1", GitHubUserID: 5, GitHubLogin: "me", AccessToken: "gho_token",
	}))
	state, err := env.Engine.ConnectionState(env.Ctx, user)
	require.NoError(t, err)
	assert.True(t, state.Connected)
	require.NotNil(t, state.GitHubLogin)
	assert.Equal(t, "me", *state.GitHubLogin)

	n, err := env.Engine.ImportFromGitHub(env.Ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "gho_token", lister.token)
}

func TestListEventsAfterCursor(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, "a", "active")
	_, err := env.Engine.Freeze(env.Ctx, "tester", p.ID, snap("pause"))
	require.NoError(t, err)

	evts, err := env.Engine.ListEvents(env.Ctx, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "project.created", evts[0].Type)
	assert.Equal(t, "project.frozen", evts[1].Type)

	rest, err := env.Engine.ListEvents(env.Ctx, p.ID, evts[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, evts[1].ID, rest[0].ID)
}

func TestValidateNextActionCountsCharacters(t *testing.T) {
	v, err := engine.ValidateNextAction("  "+strings.Repeat("é", 140)+" ", 0)
	require.NoError(t, err)
	assert.Equal(t, 140, len([]rune(v)))

	_, err = engine.ValidateNextAction("abcd", 3)
	assert.Error(t, err)
}

func TestBuildSnapshotNormalizes(t *testing.T) {
	label := "  "
	left := " scope "
	fields, err := engine.BuildSnapshot(&engine.SnapshotInput{Summary: " done ", Label: &label, LeftOut: &left})
	require.NoError(t, err)
	assert.Equal(t, "done", fields.Summary)
	assert.Nil(t, fields.Label)
	require.NotNil(t, fields.LeftOut)
	assert.Equal(t, "scope", *fields.LeftOut)

	_, err = engine.BuildSnapshot(nil)
	assert.Error(t, err)
}
