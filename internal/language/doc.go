// Package language normalizes free-form language tokens to the canonical
// codes shared by the dubbing orchestrator, the track catalog and the
// track switch resolver.
//
// Tokens may arrive as ISO 639-1 or ISO 639-2 codes, region-tagged BCP 47
// forms, full English words or mixed case. Normalize is pure and total:
// anything it cannot map yields Unknown.
package language
