package utils

import (
	"errors"
	"math"
	"math/bits"
)

// HammingDistance computes the number of differing bits between two bit strings packed in uint64 words.
func HammingDistance(d1, d2 []uint64) (int, error) {
	if len(d1) != len(d2) {
		return -1, errors.New("descriptors must have same length")
	}
	distance := 0
	for i := range d1 {
		distance += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return distance, nil
}

// DescriptorsHammingDistance computes the pairwise hamming distances between 2 sets of descriptors.
// Row i holds the distances from descs1[i] to every element of descs2.
func DescriptorsHammingDistance(descs1, descs2 [][]uint64) ([][]int, error) {
	distances := make([][]int, len(descs1))
	for i := range descs1 {
		distances[i] = make([]int, len(descs2))
		for j := range descs2 {
			d, err := HammingDistance(descs1[i], descs2[j])
			if err != nil {
				return nil, err
			}
			distances[i][j] = d
		}
	}
	return distances, nil
}

// TwoSmallestPerRow returns, for every row, the index of the smallest value, the smallest value and the
// second smallest value. When a row has a single element the second smallest value is math.MaxInt.
// Ties keep the lowest index.
func TwoSmallestPerRow(distances [][]int) (argmin, best, second []int) {
	argmin = make([]int, len(distances))
	best = make([]int, len(distances))
	second = make([]int, len(distances))
	for i, row := range distances {
		argmin[i], best[i], second[i] = -1, math.MaxInt, math.MaxInt
		for j, d := range row {
			switch {
			case d < best[i]:
				second[i] = best[i]
				best[i] = d
				argmin[i] = j
			case d < second[i]:
				second[i] = d
			}
		}
	}
	return argmin, best, second
}
