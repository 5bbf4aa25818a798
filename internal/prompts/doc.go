// Package prompts centralizes every prompt template used by the
// pipeline. Prompt text is configuration, not logic: components receive
// fully interpolated strings from here and never embed literals of
// their own, so wording can be tuned in one place.
package prompts
