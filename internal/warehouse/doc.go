// Package warehouse holds what the warehouse backends share: the seed batch and
// the statement builders for the destination table.
//
// The destination table carries an auto-generated numeric id plus the five record
// columns. Loads are insert-only; running twice inserts the batch twice.
package warehouse
