package oncall

import (
	"strings"

	"github.com/bissquit/oncall-bridge/internal/domain"
)

// MatchSeverity finds the severity named by text: an exact case-insensitive
// match wins, otherwise the first severity whose name starts with text.
func MatchSeverity(severities []domain.Severity, text string) (domain.Severity, bool) {
	return matchName(severities, text, func(s domain.Severity) string { return s.Name }, strings.HasPrefix)
}

// MatchPolicy finds the on-call policy named by text: an exact
// case-insensitive match wins, otherwise the first policy whose name
// contains text.
func MatchPolicy(policies []domain.Policy, text string) (domain.Policy, bool) {
	return matchName(policies, text, func(p domain.Policy) string { return p.Name }, strings.Contains)
}

// CreatedState returns the only state flagged as the created state.
func CreatedState(states []domain.State) (domain.State, error) {
	var (
		found domain.State
		count int
	)
	for _, s := range states {
		if s.IsCreatedState {
			found = s
			count++
		}
	}

	switch count {
	case 0:
		return domain.State{}, ErrNoCreatedState
	case 1:
		return found, nil
	default:
		return domain.State{}, ErrAmbiguousCreatedState
	}
}

// matchName keeps the upstream order: ties go to the earliest item.
func matchName[T any](items []T, text string, name func(T) string, fallback func(s, substr string) bool) (T, bool) {
	want := strings.ToLower(text)

	for _, item := range items {
		if strings.ToLower(name(item)) == want {
			return item, true
		}
	}
	for _, item := range items {
		if fallback(strings.ToLower(name(item)), want) {
			return item, true
		}
	}

	var zero T
	return zero, false
}

func severityNames(severities []domain.Severity) string {
	names := make([]string, 0, len(severities))
	for _, s := range severities {
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}

func policyNames(policies []domain.Policy) string {
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}
