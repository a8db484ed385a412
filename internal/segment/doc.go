// Package segment turns the continuous capture stream into bounded audio
// chunks. A pure boundary policy decides each tick whether the open chunk
// closes (persisted silence after a minimum floor, or a forced cut at the
// maximum duration), and the segmenter owns chunk accumulation, energy
// metadata, and the forward-only chunk lifecycle.
package segment
