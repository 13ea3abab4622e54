package blizzard

import (
	"context"
	"testing"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestProfile_Fetch(t *testing.T) {
	srv := newUpstream(t, map[string]string{
		"/profile/wow/character/argent-dawn/thrall/achievements": `{"achievements":[
			{"id": 6, "completed_timestamp": 1700000000000},
			{"id": 10, "criteria": {"id": 1, "child_criteria": [
				{"id": 1, "is_completed": true}, {"id": 2, "is_completed": false}, {"id": 3, "is_completed": true}
			]}},
			{"id": 11, "criteria": {"id": 2, "child_criteria": []}},
			{"id": 12}
		]}`,
		"/profile/wow/character/silvermoon/hidden/achievements": "403",
	})
	p := NewProfile(srv.URL, staticTokens(), testOpts)
	fetchedAt := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fetchedAt }
	ctx := context.Background()

	got, err := p.Fetch(ctx, "Argent Dawn", "Thrall")
	require.NoError(t, err)
	want := &domain.CharacterSnapshot{
		Character:   domain.CharacterRef{Realm: "argent-dawn", Name: "thrall"},
		Completed:   []int{6},
		CompletedAt: map[int]int64{6: 1700000000000},
		Progress:    map[int]domain.Progress{10: {CompletedCriteria: 2, TotalCriteria: 3}},
		FetchedAt:   fetchedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	_, err = p.Fetch(ctx, "Silvermoon", "Hidden")
	require.Equal(t, apperr.CodeNotPublic, apperr.CodeOf(err))

	_, err = p.Fetch(ctx, "Silvermoon", "Nobody")
	require.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 404, appErr.Status)
}

func TestProfile_Characters(t *testing.T) {
	srv := newUpstream(t, map[string]string{
		"/profile/user/wow": `{"wow_accounts":[
			{"characters":[{"name":"Alt","level":42,"realm":{"slug":"draenor"}}]},
			{"characters":[{"name":"Main","level":80,"realm":{"slug":"argent-dawn"}},{"name":"Bank","level":1,"realm":{"slug":"draenor"}}]}
		]}`,
	})
	p := NewProfile(srv.URL, staticTokens(), testOpts)

	got, err := p.Characters(context.Background(), "user-token")
	require.NoError(t, err)
	want := []domain.Character{
		{ID: "argent-dawn/main", Realm: "argent-dawn", Name: "Main", Level: 80},
		{ID: "draenor/alt", Realm: "draenor", Name: "Alt", Level: 42},
		{ID: "draenor/bank", Realm: "draenor", Name: "Bank", Level: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("characters mismatch (-want +got):\n%s", diff)
	}

	_, err = p.Characters(context.Background(), "wrong-token")
	require.Equal(t, apperr.CodeUpstream, apperr.CodeOf(err))
}
