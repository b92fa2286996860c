package approval

import "time"

const (
	defaultWarningThreshold    = 2 * time.Minute
	defaultExpirationThreshold = 5 * time.Minute
)

// Phase classifies how long a request has been waiting for a decision.
type Phase string

const (
	PhaseNormal  Phase = "normal"
	PhaseWarning Phase = "warning"
	PhaseExpired Phase = "expired"
)

// TimeoutPolicy maps elapsed pending time to a phase. It is a pure value
// type and never reads a clock; callers supply elapsed time.
type TimeoutPolicy struct {
	Warning    time.Duration
	Expiration time.Duration
}

// DefaultTimeoutPolicy returns the standard 2 minute warning / 5 minute
// expiration thresholds.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Warning:    defaultWarningThreshold,
		Expiration: defaultExpirationThreshold,
	}
}

func (p TimeoutPolicy) normalized() TimeoutPolicy {
	if p.Warning <= 0 {
		p.Warning = defaultWarningThreshold
	}
	if p.Expiration <= 0 {
		p.Expiration = defaultExpirationThreshold
	}
	if p.Expiration < p.Warning {
		p.Expiration = p.Warning
	}
	return p
}

// Classify returns the phase for the given elapsed pending time.
func (p TimeoutPolicy) Classify(elapsed time.Duration) Phase {
	p = p.normalized()
	switch {
	case elapsed >= p.Expiration:
		return PhaseExpired
	case elapsed >= p.Warning:
		return PhaseWarning
	default:
		return PhaseNormal
	}
}

// Remaining returns time left until expiration, clamped at zero.
func (p TimeoutPolicy) Remaining(elapsed time.Duration) time.Duration {
	p = p.normalized()
	if elapsed >= p.Expiration {
		return 0
	}
	return p.Expiration - elapsed
}
