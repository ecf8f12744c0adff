package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleStatus_Constants(t *testing.T) {
	t.Run("ScheduleStatusPending equals pending", func(t *testing.T) {
		assert.Equal(t, ScheduleStatus("pending"), ScheduleStatusPending)
	})

	t.Run("ScheduleStatusRunning equals running", func(t *testing.T) {
		assert.Equal(t, ScheduleStatus("running"), ScheduleStatusRunning)
	})

	t.Run("ScheduleStatusCompleted equals completed", func(t *testing.T) {
		assert.Equal(t, ScheduleStatus("completed"), ScheduleStatusCompleted)
	})

	t.Run("ScheduleStatusFailed equals failed", func(t *testing.T) {
		assert.Equal(t, ScheduleStatus("failed"), ScheduleStatusFailed)
	})

	t.Run("ScheduleStatusCancelled equals cancelled", func(t *testing.T) {
		assert.Equal(t, ScheduleStatus("cancelled"), ScheduleStatusCancelled)
	})
}

func TestScheduleStatus_CanTransitionTo(t *testing.T) {
	all := []ScheduleStatus{
		ScheduleStatusPending,
		ScheduleStatusRunning,
		ScheduleStatusCompleted,
		ScheduleStatusFailed,
		ScheduleStatusCancelled,
	}
	legal := map[ScheduleStatus][]ScheduleStatus{
		ScheduleStatusPending: {ScheduleStatusRunning, ScheduleStatusCancelled},
		ScheduleStatusRunning: {ScheduleStatusCompleted, ScheduleStatusFailed},
	}

	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, l := range legal[from] {
				if l == to {
					expected = true
				}
			}
			assert.Equal(t, expected, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestScheduleStatus_IsTerminal(t *testing.T) {
	assert.False(t, ScheduleStatusPending.IsTerminal())
	assert.False(t, ScheduleStatusRunning.IsTerminal())
	assert.True(t, ScheduleStatusCompleted.IsTerminal())
	assert.True(t, ScheduleStatusFailed.IsTerminal())
	assert.True(t, ScheduleStatusCancelled.IsTerminal())

	for _, s := range []ScheduleStatus{ScheduleStatusCompleted, ScheduleStatusFailed, ScheduleStatusCancelled} {
		assert.False(t, s.CanTransitionTo(ScheduleStatusPending))
		assert.False(t, s.CanTransitionTo(ScheduleStatusRunning))
	}
}

func TestScope(t *testing.T) {
	t.Run("zero value is all", func(t *testing.T) {
		var s Scope
		assert.True(t, s.IsAll())
		assert.Equal(t, "", s.Name())
		assert.Equal(t, "*", s.String())
	})

	t.Run("named scope", func(t *testing.T) {
		s := Named("billing")
		assert.False(t, s.IsAll())
		assert.Equal(t, "billing", s.Name())
	})

	t.Run("empty name is all", func(t *testing.T) {
		assert.True(t, Named("").IsAll())
	})

	t.Run("parse round trip", func(t *testing.T) {
		assert.Equal(t, All(), ParseScope(All().String()))
		assert.Equal(t, Named("core"), ParseScope(Named("core").String()))
	})

	t.Run("json as text", func(t *testing.T) {
		body, err := json.Marshal(struct {
			Module    Scope `json:"module"`
			Migration Scope `json:"migration"`
		}{Module: Named("core"), Migration: All()})
		require.NoError(t, err)
		assert.JSONEq(t, `{"module":"core","migration":"*"}`, string(body))

		var decoded struct {
			Module Scope `json:"module"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"module":"billing"}`), &decoded))
		assert.Equal(t, Named("billing"), decoded.Module)
	})
}

func TestTenant_HasModule(t *testing.T) {
	t.Run("empty module list allows everything", func(t *testing.T) {
		assert.True(t, Tenant{}.HasModule("anything"))
	})

	t.Run("subscribed modules are case insensitive", func(t *testing.T) {
		tenant := Tenant{Modules: []string{"Core", "billing"}}
		assert.True(t, tenant.HasModule("core"))
		assert.True(t, tenant.HasModule("BILLING"))
		assert.False(t, tenant.HasModule("inventory"))
	})
}

func TestFleetReport_Err(t *testing.T) {
	t.Run("no failures", func(t *testing.T) {
		report := FleetReport{Tenants: []TenantReport{{TenantID: "a", Status: ScheduleStatusCompleted}}}
		assert.NoError(t, report.Err())
		assert.Empty(t, report.Failed())
	})

	t.Run("any failure is a partial failure", func(t *testing.T) {
		report := FleetReport{Tenants: []TenantReport{
			{TenantID: "a", Status: ScheduleStatusCompleted},
			{TenantID: "b", Status: ScheduleStatusFailed},
		}}
		err := report.Err()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPartialFailure)
		assert.Contains(t, err.Error(), "1 of 2")
		assert.Len(t, report.Failed(), 1)
	})
}

func TestApplyResult_Applied(t *testing.T) {
	r := ApplyResult{Modules: []ModuleResult{
		{Module: "core", Applied: []string{"1_a", "2_b"}},
		{Module: "billing"},
		{Module: "crm", Applied: []string{"3_c"}},
	}}
	assert.Equal(t, []string{"1_a", "2_b", "3_c"}, r.Applied())
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{nil, CodeOK},
		{ErrTenantNotFound, CodeNotFound},
		{ErrScheduleNotFound, CodeNotFound},
		{ErrAlreadyRunning, CodeConflict},
		{ErrInvalidTransition, CodeConflict},
		{ErrScheduledInPast, CodeValidation},
		{ErrSchedulingDisabled, CodeValidation},
		{ErrModuleNotEnabled, CodeValidation},
		{ErrInvalidSettings, CodeValidation},
		{&EngineError{Err: errors.New("boom")}, CodeEngineFailure},
		{fmt.Errorf("%w: 1 of 3", ErrPartialFailure), CodePartialFailure},
		{fmt.Errorf("failed to get: %w", ErrTenantNotFound), CodeNotFound},
		{errors.New("disk on fire"), CodeInternal},
	}

	for _, c := range cases {
		assert.Equal(t, c.code, CodeOf(c.err), "%v", c.err)
	}
}

func TestEngineError(t *testing.T) {
	cause := errors.New("dirty database version 3")
	err := &EngineError{TenantID: "t1", Module: "core", Migration: "3_add_index", Operation: OperationRollback, Err: cause}

	assert.ErrorIs(t, err, ErrEngineFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "rollback core/3_add_index for tenant t1: dirty database version 3", err.Error())

	var target *EngineError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, "core", target.Module)
}

func TestSettings_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultSettings().Validate())
	})

	t.Run("concurrency bounds", func(t *testing.T) {
		s := DefaultSettings()
		s.MaxConcurrency = 0
		assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

		s.MaxConcurrency = 257
		assert.ErrorIs(t, s.Validate(), ErrValidation)
	})

	t.Run("schedule time format", func(t *testing.T) {
		s := DefaultSettings()
		s.DefaultScheduleTime = "25:99"
		assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
	})

	t.Run("notification emails", func(t *testing.T) {
		s := DefaultSettings()
		s.NotificationEmails = []string{"ops@example.com", "not-an-email"}
		assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

		s.NotificationEmails = []string{"ops@example.com"}
		assert.NoError(t, s.Validate())
	})

	t.Run("default modules required", func(t *testing.T) {
		s := DefaultSettings()
		s.DefaultModules = nil
		assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
	})
}

func TestSettings_NextDefaultScheduleTime(t *testing.T) {
	s := DefaultSettings()

	t.Run("later today", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
		next, err := s.NextDefaultScheduleTime(now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("tomorrow once passed", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
		next, err := s.NextDefaultScheduleTime(now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("invalid setting", func(t *testing.T) {
		s.DefaultScheduleTime = "noon"
		_, err := s.NextDefaultScheduleTime(time.Now())
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})

	assert.Equal(t, 300*time.Second, DefaultSettings().MigrationTimeout())
}
