package platform

import (
	"strings"
	"testing"
)

func TestFormatChangeReason(t *testing.T) {
	tests := []struct {
		name    string
		ctype   string
		scope   string
		subject string
		body    string
		want    string
	}{
		{
			name:    "Full",
			ctype:   CommitTypeFeat,
			scope:   "users",
			subject: "add ada",
			body:    "seeded the first account",
			want:    "feat(users): add ada\n\nseeded the first account\n\nPowered-by: silt",
		},
		{
			name:    "No Scope No Body",
			ctype:   CommitTypeFix,
			subject: "repair index",
			want:    "fix: repair index\n\nPowered-by: silt",
		},
		{
			name:    "Empty Type Falls Back to Chore",
			subject: "housekeeping",
			want:    "chore: housekeeping\n\nPowered-by: silt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatChangeReason(tt.ctype, tt.scope, tt.subject, tt.body)
			if got != tt.want {
				t.Errorf("FormatChangeReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppendFooter(t *testing.T) {
	got := AppendFooter("manual edit")
	if !strings.HasSuffix(got, "Powered-by: silt") {
		t.Errorf("missing footer: %q", got)
	}
	if !strings.Contains(got, "manual edit\n") {
		t.Errorf("message mangled: %q", got)
	}

	// Idempotent
	if again := AppendFooter(got); again != got {
		t.Errorf("AppendFooter not idempotent: %q", again)
	}
}
