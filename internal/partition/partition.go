// Package partition picks the mapper/partition count for an extraction job
// given an upstream table's byte size.
package partition

// perMapperBytes is the approximate amount of source data one mapper should
// handle; tuned so a few-hundred-MB table gets more than one mapper without
// small tables fragmenting into dozens of tiny part files.
const perMapperBytes = 256 << 20 // 256 MiB

// Choose returns the number of partitions to use for a table of
// tableSizeBytes, never exceeding maxPartitions and never less than 1. It is
// monotone non-decreasing in tableSizeBytes and deterministic: the same
// inputs always return the same output.
func Choose(tableSizeBytes, maxPartitions int64) int {
	if maxPartitions < 1 {
		maxPartitions = 1
	}
	if tableSizeBytes <= 0 {
		return 1
	}

	n := tableSizeBytes / perMapperBytes
	if tableSizeBytes%perMapperBytes != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	if n > maxPartitions {
		n = maxPartitions
	}
	return int(n)
}
