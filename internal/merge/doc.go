// Package merge reassembles transcription fragments into one running
// transcript. Fragments apply in chunk-index order no matter how the
// network reorders them, near-duplicate text reintroduced by overlapping
// chunk boundaries is suppressed by a token-overlap heuristic, and a
// bounded wait keeps a lost fragment from stalling the transcript forever.
package merge
