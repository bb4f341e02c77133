package metadata

import "kingo/internal/constants"

// Pick selects the stream URL whose quality label sorts highest in the
// fixed priority order (1080p < 720p < 480p < 360p < 240p < other). Returns
// false if streams is empty.
func Pick(streams []StreamURL) (StreamURL, bool) {
	if len(streams) == 0 {
		return StreamURL{}, false
	}

	best := streams[0]
	bestRank := rankOf(best.Quality)
	for _, s := range streams[1:] {
		if r := rankOf(s.Quality); r < bestRank {
			best = s
			bestRank = r
		}
	}
	return best, true
}

func rankOf(quality string) int {
	if rank, ok := constants.QualityPriority[quality]; ok {
		return rank
	}
	return constants.DefaultQualityPriority
}
