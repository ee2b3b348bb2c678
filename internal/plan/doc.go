// Package plan turns parsed time ranges into a validated segment plan.
//
// Validation is consolidated: every offending range is reported in a single
// Report so callers can present one confirmation instead of failing on the
// first problem. Overlapping ranges are legal and surface as warnings only.
package plan
