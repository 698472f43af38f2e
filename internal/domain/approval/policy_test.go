package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"studio/internal/domain/account"
)

func TestCheckPermission(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		role       string
		md         Metadata
		want       Outcome
		wantReason string
	}{
		{
			name:       "coach deleting session with athlete needs approval",
			action:     ActionDeleteSession,
			role:       account.RoleCoach,
			md:         Metadata{HasAthlete: true, AthleteName: "Jordan Lee"},
			want:       RequiresApproval,
			wantReason: "Session has athlete enrolled: Jordan Lee",
		},
		{
			name:   "master admin deletes session with athlete directly",
			action: ActionDeleteSession,
			role:   account.RoleMasterAdmin,
			md:     Metadata{HasAthlete: true, AthleteName: "Jordan Lee"},
			want:   Direct,
		},
		{
			name:   "coach deletes empty future session directly",
			action: ActionDeleteSession,
			role:   account.RoleCoach,
			md:     Metadata{HasAthlete: false, IsPastSession: false},
			want:   Direct,
		},
		{
			name:       "admin deleting past session needs approval",
			action:     ActionDeleteSession,
			role:       account.RoleAdmin,
			md:         Metadata{IsPastSession: true},
			want:       RequiresApproval,
			wantReason: "Cannot delete past sessions without approval",
		},
		{
			name:   "coach deleting drill always needs approval",
			action: ActionDeleteDrill,
			role:   account.RoleCoach,
			want:   RequiresApproval,
		},
		{
			name:   "admin deleting athlete needs approval",
			action: ActionDeleteAthlete,
			role:   account.RoleAdmin,
			md:     Metadata{RequesterID: "adm", TargetUserID: "ath", TargetRole: account.RoleAthlete},
			want:   RequiresApproval,
		},
		{
			name:   "master admin deletes metric directly",
			action: ActionDeletePerformanceMetric,
			role:   account.RoleMasterAdmin,
			want:   Direct,
		},
		{
			name:       "self deletion denied even for master admin",
			action:     ActionDeleteAthlete,
			role:       account.RoleMasterAdmin,
			md:         Metadata{RequesterID: "m1", TargetUserID: "m1"},
			want:       Denied,
			wantReason: "You cannot delete your own account",
		},
		{
			name:   "deleting the master admin account denied",
			action: ActionDeleteAthlete,
			role:   account.RoleMasterAdmin,
			md:     Metadata{RequesterID: "m1", TargetUserID: "m2", TargetRole: account.RoleMasterAdmin},
			want:   Denied,
		},
		{
			name:   "athlete denied",
			action: ActionDeleteSession,
			role:   account.RoleAthlete,
			want:   Denied,
		},
		{
			name:   "unknown action denied",
			action: "drop_database",
			role:   account.RoleMasterAdmin,
			want:   Denied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckPermission(tt.action, tt.role, tt.md)
			assert.Equal(t, tt.want, got.Outcome)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, got.Reason)
			}
			if got.Outcome != Direct {
				assert.NotEmpty(t, got.Reason)
			}
			assert.Equal(t, got, CheckPermission(tt.action, tt.role, tt.md))
		})
	}
}
