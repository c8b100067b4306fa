package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentTransitions(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("active to closed stamps close time", func(t *testing.T) {
		inc := &Incident{Status: IncidentActive}
		require.NoError(t, inc.TransitionTo(IncidentClosed, now))
		assert.Equal(t, IncidentClosed, inc.Status)
		require.NotNil(t, inc.CallClosedTime)
		assert.Equal(t, now, *inc.CallClosedTime)
	})

	t.Run("feed-supplied close time is preserved", func(t *testing.T) {
		closed := now.Add(-time.Hour)
		inc := &Incident{Status: IncidentActive, CallClosedTime: &closed}
		require.NoError(t, inc.TransitionTo(IncidentClosed, now))
		assert.Equal(t, closed, *inc.CallClosedTime)
	})

	t.Run("closed to archived", func(t *testing.T) {
		inc := &Incident{Status: IncidentClosed}
		require.NoError(t, inc.TransitionTo(IncidentArchived, now))
		assert.Equal(t, IncidentArchived, inc.Status)
	})

	t.Run("never reversed", func(t *testing.T) {
		inc := &Incident{Status: IncidentClosed}
		err := inc.TransitionTo(IncidentActive, now)
		require.Error(t, err)
		assert.Equal(t, IncidentClosed, inc.Status, "invalid transition is rejected, not applied")
	})

	t.Run("no skipping active to archived", func(t *testing.T) {
		inc := &Incident{Status: IncidentActive}
		require.Error(t, inc.TransitionTo(IncidentArchived, now))
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		inc := &Incident{Status: IncidentActive}
		require.NoError(t, inc.TransitionTo(IncidentActive, now))
		assert.Nil(t, inc.CallClosedTime)
	})
}

func TestAlertTransitions(t *testing.T) {
	t.Run("active to expired", func(t *testing.T) {
		a := &WeatherAlert{Status: AlertActive}
		require.NoError(t, a.TransitionTo(AlertExpired))
	})
	t.Run("expired is terminal", func(t *testing.T) {
		a := &WeatherAlert{Status: AlertExpired}
		require.Error(t, a.TransitionTo(AlertActive))
	})
}

func TestWeatherAlertValidate(t *testing.T) {
	onset := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	expires := onset.Add(2 * time.Hour)

	t.Run("valid", func(t *testing.T) {
		a := &WeatherAlert{NWSID: "x", Onset: &onset, Expires: &expires}
		assert.NoError(t, a.Validate())
	})
	t.Run("expires before onset", func(t *testing.T) {
		bad := onset.Add(-time.Hour)
		a := &WeatherAlert{NWSID: "x", Onset: &onset, Expires: &bad}
		assert.Error(t, a.Validate())
	})
	t.Run("missing nws id", func(t *testing.T) {
		a := &WeatherAlert{}
		assert.Error(t, a.Validate())
	})
}

func TestUnitStatusLatestStage(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("picks most recent timestamp", func(t *testing.T) {
		u := UnitStatus{Unit: "E41", Dispatched: tp(base), Enroute: tp(base.Add(2 * time.Minute)), OnScene: tp(base.Add(7 * time.Minute))}
		stage, at := u.LatestStage()
		assert.Equal(t, StageOnScene, stage)
		assert.Equal(t, base.Add(7*time.Minute), at)
	})

	t.Run("tie goes to later lifecycle stage", func(t *testing.T) {
		u := UnitStatus{Unit: "E41", Dispatched: tp(base), Acknowledged: tp(base)}
		stage, _ := u.LatestStage()
		assert.Equal(t, StageAcknowledged, stage)
	})

	t.Run("empty", func(t *testing.T) {
		stage, at := UnitStatus{Unit: "E41"}.LatestStage()
		assert.Equal(t, UnitStage(""), stage)
		assert.True(t, at.IsZero())
	})
}
