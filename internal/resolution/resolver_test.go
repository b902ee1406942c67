package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
)

const testCode = "GO-1234567-2A4F87C0C8E94E9E9B9E1D2F3A4B5C6D"

func feature(i int, area float64) models.PropertyFeature {
	lon, lat := -49.44+float64(i)*0.001, -15.84
	return models.PropertyFeature{
		Code:         fmt.Sprintf("GO-123456%d-2A4F87C0C8E94E9E9B9E1D2F3A4B5C6D", i),
		AreaHectares: area,
		Municipality: "Goiânia",
		Geometry: models.Geometry{Polygons: []models.Polygon{{models.Ring{
			{lon, lat}, {lon + 0.01, lat}, {lon + 0.01, lat + 0.01}, {lon, lat + 0.01}, {lon, lat},
		}}}},
	}
}

type fakeClient struct {
	features []models.PropertyFeature
	err      error
	coords   []models.Coordinate
	codes    []string
	deadline bool
}

func (f *fakeClient) FindByCoordinate(ctx context.Context, c models.Coordinate) ([]models.PropertyFeature, error) {
	_, f.deadline = ctx.Deadline()
	f.coords = append(f.coords, c)
	return f.features, f.err
}

func (f *fakeClient) FindByCode(ctx context.Context, code string) ([]models.PropertyFeature, error) {
	_, f.deadline = ctx.Deadline()
	f.codes = append(f.codes, code)
	return f.features, f.err
}

type fakeRenderer struct {
	calls int
	err   error
}

func (r *fakeRenderer) Render(features []models.PropertyFeature) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte(fmt.Sprintf("png:%d", len(features))), nil
}

var pin = LookupInput{Coordinate: &models.Coordinate{Latitude: -15.8299, Longitude: -49.4335}}

func newResolver(c GeometryClient, p PreviewRenderer) *Resolver {
	return NewResolver(c, p, time.Second, zap.NewNop())
}

// selectedState returns a state with feature 9 confirmed.
func selectedState(t *testing.T) *State {
	t.Helper()
	s := NewState()
	s.commit(feature(9, 50))
	return s
}

func TestLookupNotFound(t *testing.T) {
	s := selectedState(t)
	s.stageSingle(feature(1, 10))
	r := newResolver(&fakeClient{}, &fakeRenderer{})

	out, err := r.Lookup(context.Background(), s, pin)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, out.Status)
	assert.Equal(t, apperror.DefaultInstructions(apperror.NotFound), out.Instructions)
	assert.Nil(t, out.Preview)

	assert.Equal(t, ModeIdle, s.Mode())
	_, pending := s.Candidate()
	assert.False(t, pending)
	sel, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, feature(9, 50), sel)
}

func TestLookupSingle(t *testing.T) {
	f := feature(1, 120.4)
	client := &fakeClient{features: []models.PropertyFeature{f}}
	rend := &fakeRenderer{}
	s := NewState()
	s.stageList([]models.PropertyFeature{feature(2, 1), feature(3, 2)})

	out, err := newResolver(client, rend).Lookup(context.Background(), s, pin)
	require.NoError(t, err)

	assert.Equal(t, StatusSingleFound, out.Status)
	assert.Equal(t, "CAR "+f.Code+", Tamanho da área 120 ha, município de Goiânia.", out.Summary)
	assert.Equal(t, []Candidate{{Index: 1, Code: f.Code, AreaHectares: 120, Municipality: "Goiânia"}}, out.Candidates)
	assert.Equal(t, []byte("png:1"), out.Preview)
	assert.True(t, client.deadline, "registry calls must be bounded")

	assert.Equal(t, ModeAwaitingSingle, s.Mode())
	c, ok := s.Candidate()
	require.True(t, ok)
	assert.Equal(t, f, c)
	assert.Empty(t, s.CandidateList())
}

func TestLookupMultipleKeepsRegistryOrder(t *testing.T) {
	fs := []models.PropertyFeature{feature(3, 30), feature(1, 10), feature(2, 20)}
	s := NewState()
	s.stageSingle(feature(7, 7))

	out, err := newResolver(&fakeClient{features: fs}, nil).Lookup(context.Background(), s, pin)
	require.NoError(t, err)

	assert.Equal(t, StatusMultipleFound, out.Status)
	assert.Nil(t, out.Preview)
	require.Len(t, out.Candidates, 3)
	assert.Equal(t, fs[0].Code, out.Candidates[0].Code)
	assert.Contains(t, out.Summary, "Área 2, CAR "+fs[1].Code)
	assert.Contains(t, out.Instructions[1], "entre 1 e 3")

	assert.Equal(t, ModeAwaitingList, s.Mode())
	assert.Equal(t, fs, s.CandidateList())
	_, pending := s.Candidate()
	assert.False(t, pending)
}

func TestLookupByCodeNormalizes(t *testing.T) {
	client := &fakeClient{}
	_, err := newResolver(client, nil).Lookup(context.Background(), NewState(),
		LookupInput{Code: " go-1234567-2a4f.87c0.c8e9.4e9e.9b9e.1d2f.3a4b.5c6d "})
	require.NoError(t, err)
	assert.Equal(t, []string{"GO-1234567-2A4F.87C0.C8E9.4E9E.9B9E.1D2F.3A4B.5C6D"}, client.codes)
	assert.Empty(t, client.coords)
}

func TestLookupRejectsBadInput(t *testing.T) {
	client := &fakeClient{}
	r := newResolver(client, nil)
	inputs := map[string]LookupInput{
		"empty":      {},
		"both":       {Coordinate: pin.Coordinate, Code: testCode},
		"bad code":   {Code: "GO-123"},
		"bad latlng": {Coordinate: &models.Coordinate{Latitude: 91, Longitude: 0}},
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			s := selectedState(t)
			_, err := r.Lookup(context.Background(), s, in)
			assert.Equal(t, apperror.InvalidInput, apperror.KindOf(err))
			assert.Equal(t, selectedState(t), s)
		})
	}
	assert.Empty(t, client.coords)
	assert.Empty(t, client.codes)
}

func TestLookupUpstreamFailureLeavesStateUntouched(t *testing.T) {
	cases := map[string]struct {
		err  error
		kind apperror.Kind
	}{
		"timeout":     {context.DeadlineExceeded, apperror.UpstreamTimeout},
		"unavailable": {errors.New("connection refused"), apperror.UpstreamUnavailable},
		"malformed":   {apperror.New(apperror.UpstreamMalformedResponse, "bad json", nil), apperror.UpstreamMalformedResponse},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := selectedState(t)
			s.stageList([]models.PropertyFeature{feature(1, 1), feature(2, 2)})
			before := s.Clone()

			out, err := newResolver(&fakeClient{err: tc.err}, nil).Lookup(context.Background(), s, pin)
			assert.Nil(t, out)
			assert.Equal(t, tc.kind, apperror.KindOf(err))
			assert.Equal(t, before, s)
		})
	}
}

func TestLookupPreviewFailureIsNotFatal(t *testing.T) {
	s := NewState()
	out, err := newResolver(&fakeClient{features: []models.PropertyFeature{feature(1, 1)}},
		&fakeRenderer{err: errors.New("boom")}).Lookup(context.Background(), s, pin)
	require.NoError(t, err)
	assert.Nil(t, out.Preview)
	assert.Equal(t, ModeAwaitingSingle, s.Mode())
}

func TestConfirmSingle(t *testing.T) {
	r := newResolver(&fakeClient{}, nil)

	t.Run("nothing pending", func(t *testing.T) {
		for _, s := range []*State{NewState(), selectedState(t), listState()} {
			before := s.Clone()
			_, err := r.ConfirmSingle(s)
			assert.Equal(t, apperror.NoPendingResolution, apperror.KindOf(err))
			assert.Equal(t, before, s)
		}
	})

	t.Run("pending", func(t *testing.T) {
		s := selectedState(t)
		s.stageSingle(feature(1, 10))
		out, err := r.ConfirmSingle(s)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, out.Status)
		assert.Equal(t, feature(1, 10), *out.Selected)

		sel, _ := s.Selected()
		assert.Equal(t, feature(1, 10), sel)
		assert.Equal(t, ModeIdle, s.Mode())
		_, pending := s.Candidate()
		assert.False(t, pending)

		_, err = r.ConfirmSingle(s)
		assert.Equal(t, apperror.NoPendingResolution, apperror.KindOf(err), "repeating is reported, not applied")
	})
}

func listState() *State {
	s := NewState()
	s.stageList([]models.PropertyFeature{feature(1, 10), feature(2, 20), feature(3, 30)})
	return s
}

func TestSelectFromList(t *testing.T) {
	r := newResolver(&fakeClient{}, nil)

	for _, idx := range []int{0, -1, 4, 100} {
		t.Run(fmt.Sprintf("out of range %d", idx), func(t *testing.T) {
			s := listState()
			before := s.Clone()
			_, err := r.SelectFromList(s, idx)
			require.Error(t, err)
			assert.Equal(t, apperror.InvalidSelection, apperror.KindOf(err))
			assert.Contains(t, err.Error(), "between 1 and 3")
			assert.Equal(t, before, s)
		})
	}

	t.Run("valid", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			s := listState()
			want := s.CandidateList()[i-1]
			_, err := r.SelectFromList(s, i)
			require.NoError(t, err)
			sel, ok := s.Selected()
			require.True(t, ok)
			assert.Equal(t, want, sel)
			assert.Equal(t, ModeIdle, s.Mode())
			assert.Empty(t, s.CandidateList())
		}
	})

	t.Run("not awaiting a list", func(t *testing.T) {
		s := NewState()
		s.stageSingle(feature(1, 1))
		before := s.Clone()
		_, err := r.SelectFromList(s, 1)
		assert.Equal(t, apperror.NoPendingResolution, apperror.KindOf(err))
		assert.Equal(t, before, s)
	})
}

func TestReject(t *testing.T) {
	r := newResolver(&fakeClient{}, nil)

	single := selectedState(t)
	single.stageSingle(feature(1, 1))
	list := selectedState(t)
	list.stageList([]models.PropertyFeature{feature(1, 1), feature(2, 2)})

	for name, s := range map[string]*State{"single": single, "list": list} {
		t.Run(name, func(t *testing.T) {
			out, err := r.Reject(s)
			require.NoError(t, err)
			assert.Equal(t, StatusRejected, out.Status)
			assert.Equal(t, ModeIdle, s.Mode())
			_, pending := s.Candidate()
			assert.False(t, pending)
			assert.Empty(t, s.CandidateList())

			sel, ok := s.Selected()
			require.True(t, ok, "rejecting a new search keeps the confirmed property")
			assert.Equal(t, feature(9, 50), sel)
		})
	}

	t.Run("idle", func(t *testing.T) {
		_, err := r.Reject(NewState())
		assert.Equal(t, apperror.NoPendingResolution, apperror.KindOf(err))
	})
}

func TestClearSelected(t *testing.T) {
	r := newResolver(&fakeClient{}, nil)

	_, err := r.ClearSelected(NewState())
	assert.Equal(t, apperror.NoActiveProperty, apperror.KindOf(err))

	s := selectedState(t)
	s.stageSingle(feature(1, 1))
	out, err := r.ClearSelected(s)
	require.NoError(t, err)
	assert.Equal(t, StatusSelectionCleared, out.Status)
	_, ok := s.Selected()
	assert.False(t, ok)
	assert.Equal(t, ModeAwaitingSingle, s.Mode(), "pending candidates are unaffected")

	_, err = RequireSelected(s)
	assert.Equal(t, apperror.NoActiveProperty, apperror.KindOf(err))
}

func TestScenarioSingleCandidateConfirmed(t *testing.T) {
	f := feature(1, 120.4)
	f.Code = testCode
	client := &fakeClient{features: []models.PropertyFeature{f}}
	r := newResolver(client, nil)
	s := NewState()

	_, err := r.Lookup(context.Background(), s, pin)
	require.NoError(t, err)
	assert.Equal(t, []models.Coordinate{{Latitude: -15.8299, Longitude: -49.4335}}, client.coords)
	assert.Equal(t, ModeAwaitingSingle, s.Mode())

	_, err = r.ConfirmSingle(s)
	require.NoError(t, err)
	got, err := RequireSelected(s)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestScenarioOverlappingCandidates(t *testing.T) {
	fs := []models.PropertyFeature{feature(1, 10), feature(2, 20), feature(3, 30)}
	r := newResolver(&fakeClient{features: fs}, nil)
	s := NewState()

	_, err := r.Lookup(context.Background(), s, pin)
	require.NoError(t, err)
	require.Equal(t, ModeAwaitingList, s.Mode())
	require.Len(t, s.CandidateList(), 3)

	_, err = r.SelectFromList(s, 5)
	assert.Equal(t, apperror.InvalidSelection, apperror.KindOf(err))
	assert.Equal(t, ModeAwaitingList, s.Mode())
	assert.Equal(t, fs, s.CandidateList())

	_, err = r.SelectFromList(s, 2)
	require.NoError(t, err)
	sel, _ := s.Selected()
	assert.Equal(t, fs[1], sel)
	assert.Equal(t, ModeIdle, s.Mode())
}

func TestStateSnapshotRoundTrip(t *testing.T) {
	s := selectedState(t)
	s.stageList([]models.PropertyFeature{feature(1, 1), feature(2, 2)})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back State
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.Mode(), back.Mode())
	assert.Equal(t, s.CandidateList(), back.CandidateList())
	sel, _ := back.Selected()
	assert.Equal(t, feature(9, 50).Code, sel.Code)
}

func TestStateSnapshotRejectsBrokenInvariants(t *testing.T) {
	bad := []string{
		`{"mode":"AWAITING_SINGLE_CONFIRMATION"}`,
		`{"mode":"AWAITING_LIST_SELECTION","candidate_list":[{"code":"x"}]}`,
		`{"mode":"IDLE","candidate":{"code":"x"}}`,
		`{"mode":"CONFIRMING"}`,
	}
	for _, raw := range bad {
		var s State
		assert.Error(t, json.Unmarshal([]byte(raw), &s), raw)
	}

	var s State
	require.NoError(t, json.Unmarshal([]byte(`{}`), &s))
	assert.Equal(t, ModeIdle, s.Mode())
}
