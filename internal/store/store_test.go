package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DiamondLightSource/numtracker/internal/numerrors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "numtracker.db")
	st, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func strPtr(s string) *string { return &s }

func TestUpsertCreateRequiresAllTemplates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Upsert(ctx, "i22", ConfigurePatch{DirectoryTemplate: strPtr("/data/{instrument}")})
	require.Error(t, err)
	var nerr *numerrors.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, numerrors.MissingFields, nerr.Kind)
}

func TestUpsertCreateThenGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cfg, err := st.Upsert(ctx, "i22", ConfigurePatch{
		DirectoryTemplate: strPtr("/data/{instrument}/data/{year}/{visit}"),
		ScanTemplate:      strPtr("{subdirectory}/{instrument}-{scan_number}"),
		DetectorTemplate:  strPtr("{subdirectory}/{instrument}-{scan_number}-{detector}"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, cfg.DBScanNumber)

	got, err := st.Get(ctx, "i22")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestUpsertInvalidTemplateLeavesConfigUnchanged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	original, err := st.Upsert(ctx, "i22", ConfigurePatch{
		DirectoryTemplate: strPtr("/data/{instrument}/data/{year}/{visit}"),
		ScanTemplate:      strPtr("{subdirectory}/{instrument}-{scan_number}"),
		DetectorTemplate:  strPtr("{subdirectory}/{instrument}-{scan_number}-{detector}"),
	})
	require.NoError(t, err)

	_, err = st.Upsert(ctx, "i22", ConfigurePatch{ScanTemplate: strPtr("no-placeholders")})
	require.Error(t, err)
	var nerr *numerrors.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, numerrors.InvalidTemplate, nerr.Kind)

	current, err := st.Get(ctx, "i22")
	require.NoError(t, err)
	assert.Equal(t, original, current)
}

func TestGetUnknownInstrument(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Get(context.Background(), "missing")
	require.Error(t, err)
	var nerr *numerrors.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, numerrors.UnknownInstrument, nerr.Kind)
}

func TestGetAllOrderedAndFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"i22", "b21", "p45"} {
		_, err := st.Upsert(ctx, name, ConfigurePatch{
			DirectoryTemplate: strPtr("/data/{instrument}"),
			ScanTemplate:      strPtr("{scan_number}"),
			DetectorTemplate:  strPtr("{scan_number}-{detector}"),
		})
		require.NoError(t, err)
	}

	all, err := st.GetAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b21", "i22", "p45"}, []string{all[0].Name, all[1].Name, all[2].Name})

	none, err := st.GetAll(ctx, []string{})
	require.NoError(t, err)
	assert.Empty(t, none)

	some, err := st.GetAll(ctx, []string{"i22", "p45"})
	require.NoError(t, err)
	require.Len(t, some, 2)
}

func TestSetNumberRejectsNegative(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.Upsert(ctx, "i22", ConfigurePatch{
		DirectoryTemplate: strPtr("/data/{instrument}"),
		ScanTemplate:      strPtr("{scan_number}"),
		DetectorTemplate:  strPtr("{scan_number}-{detector}"),
	})
	require.NoError(t, err)

	_, err = st.SetNumber(ctx, "i22", -1)
	require.Error(t, err)
	var nerr *numerrors.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, numerrors.CounterUnderflow, nerr.Kind)
}

func TestBumpNumberIsMonotonic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.Upsert(ctx, "i22", ConfigurePatch{
		DirectoryTemplate: strPtr("/data/{instrument}"),
		ScanTemplate:      strPtr("{scan_number}"),
		DetectorTemplate:  strPtr("{scan_number}-{detector}"),
	})
	require.NoError(t, err)

	n1, err := st.BumpNumber(ctx, "i22")
	require.NoError(t, err)
	n2, err := st.BumpNumber(ctx, "i22")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n1)
	assert.EqualValues(t, 2, n2)
}

func TestBumpToAtLeast(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.Upsert(ctx, "i22", ConfigurePatch{
		DirectoryTemplate: strPtr("/data/{instrument}"),
		ScanTemplate:      strPtr("{scan_number}"),
		DetectorTemplate:  strPtr("{scan_number}-{detector}"),
	})
	require.NoError(t, err)
	_, err = st.SetNumber(ctx, "i22", 10)
	require.NoError(t, err)

	next, err := st.BumpToAtLeast(ctx, "i22", 20)
	require.NoError(t, err)
	assert.EqualValues(t, 21, next)

	next, err = st.BumpToAtLeast(ctx, "i22", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 22, next)
}

func TestFallbackExtensionRequiresDirectory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.Upsert(ctx, "i22", ConfigurePatch{
		DirectoryTemplate: strPtr("/data/{instrument}"),
		ScanTemplate:      strPtr("{scan_number}"),
		DetectorTemplate:  strPtr("{scan_number}-{detector}"),
		FallbackExtension: strPtr("ext"),
	})
	require.Error(t, err)
}

func TestFallbackTargetUniqueness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mk := func(name string) ConfigurePatch {
		return ConfigurePatch{
			DirectoryTemplate: strPtr("/data/{instrument}"),
			ScanTemplate:      strPtr("{scan_number}"),
			DetectorTemplate:  strPtr("{scan_number}-{detector}"),
			FallbackDirectory: strPtr("/trackers/shared"),
			FallbackExtension: strPtr("ext"),
		}
	}
	_, err := st.Upsert(ctx, "i22", mk("i22"))
	require.NoError(t, err)

	_, err = st.Upsert(ctx, "b21", mk("b21"))
	require.Error(t, err)
	var nerr *numerrors.Error
	require.True(t, errors.As(err, &nerr))
}
