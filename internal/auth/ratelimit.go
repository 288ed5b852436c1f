// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

// SuspiciousFailureThreshold is the number of consecutive failed logins after
// which an account's failures are reported as suspicious.
const SuspiciousFailureThreshold = 5

// FailureSignal is the advisory result of evaluating a login failure count.
// Nothing is enforced from it; it feeds logs and metrics.
type FailureSignal struct {
	Failures   int
	Suspicious bool
}

// EvaluateFailures evaluates a consecutive failure count.
func EvaluateFailures(failures int) FailureSignal {
	if failures < 0 {
		failures = 0
	}
	return FailureSignal{
		Failures:   failures,
		Suspicious: failures >= SuspiciousFailureThreshold,
	}
}
