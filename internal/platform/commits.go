package platform

import (
	"strings"
)

// CommitType constants for semantic commits
const (
	CommitTypeFeat     = "feat"
	CommitTypeFix      = "fix"
	CommitTypeDocs     = "docs"
	CommitTypeStyle    = "style"
	CommitTypeRefactor = "refactor"
	CommitTypePerf     = "perf"
	CommitTypeTest     = "test"
	CommitTypeChore    = "chore"
)

const footer = "Powered-by: silt"

// FormatChangeReason builds a Conventional Commit message.
// Layout:
//
//	<type>(<scope>): <subject>
//
//	<body>
//
//	Powered-by: silt
func FormatChangeReason(ctype, scope, subject, body string) string {
	var sb strings.Builder

	if ctype == "" {
		ctype = CommitTypeChore
	}
	sb.WriteString(ctype)

	if scope != "" {
		sb.WriteString("(")
		sb.WriteString(scope)
		sb.WriteString(")")
	}

	sb.WriteString(": ")
	sb.WriteString(subject)

	if body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(body))
	}

	sb.WriteString("\n\n")
	sb.WriteString(footer)

	return sb.String()
}

// AppendFooter appends the silt footer to an arbitrary message if not present.
// Used for free-form commit messages.
func AppendFooter(msg string) string {
	if strings.Contains(msg, footer) {
		return msg
	}

	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	if !strings.HasSuffix(msg, "\n\n") {
		msg += "\n"
	}

	return msg + footer
}
