package classifier

import (
	"math/rand"
	"sort"
)

// stratifiedSplit partitions sample indices into train and validation sets,
// preserving per-class proportions. Classes too small to contribute a
// validation sample stay entirely in the train set. The shuffle is seeded so
// training runs are reproducible.
func stratifiedSplit(labels []string, validationFraction float64, seed int64) (trainIdx, valIdx []int) {
	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}

	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		indices := byClass[c]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		nVal := int(float64(len(indices)) * validationFraction)
		if nVal >= len(indices) {
			nVal = len(indices) - 1
		}
		valIdx = append(valIdx, indices[:nVal]...)
		trainIdx = append(trainIdx, indices[nVal:]...)
	}

	sort.Ints(trainIdx)
	sort.Ints(valIdx)
	return trainIdx, valIdx
}
