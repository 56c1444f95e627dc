package linker

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/nstogner/lore/internal/model"
)

// Score implements spec.md §4.4's confidence formula:
//
//	score = 0.3*time_proximity + 0.4*file_overlap + 0.2*branch_match + 0.1*both_bonus
//
// where both_bonus applies only when both time_proximity and
// file_overlap are individually above zero. fileOverlapRatio is the
// fraction of c.Files that the caller has already determined the
// session's messages mention (see FileOverlapRatio), passed in
// so this function stays a pure scorer over its inputs.
func Score(sess model.Session, c CommitInfo, window time.Duration, fileOverlapRatio float64) float64 {
	tp := timeProximity(sess, c, window)
	fo := fileOverlapRatio

	var bm float64
	if len(sess.BranchHistory) > 0 {
		for _, b := range sess.BranchHistory {
			if b == c.Branch {
				bm = 1
				break
			}
		}
	}

	var bonus float64
	if tp > 0 && fo > 0 {
		bonus = 0.1
	}

	return 0.3*tp + 0.4*fo + 0.2*bm + bonus
}

// timeProximity is 1 when c.Timestamp falls inside the session's
// activity window, decaying linearly to 0 at window beyond either edge.
func timeProximity(sess model.Session, c CommitInfo, window time.Duration) float64 {
	if window <= 0 {
		window = 30 * time.Minute
	}
	start := sess.StartedAt
	end := sess.StartedAt
	if sess.EndedAt != nil {
		end = *sess.EndedAt
	}
	if c.Timestamp.Before(start) {
		d := start.Sub(c.Timestamp)
		return decay(d, window)
	}
	if c.Timestamp.After(end) {
		d := c.Timestamp.Sub(end)
		return decay(d, window)
	}
	return 1
}

func decay(d, window time.Duration) float64 {
	if d >= window {
		return 0
	}
	return 1 - float64(d)/float64(window)
}

// FileOverlapRatio is the fraction of commitFiles whose base name
// appears in any of the session's message contents, comparing by base
// name since a session's own transcript rarely carries full
// repo-relative paths.
func FileOverlapRatio(messages []model.Message, commitFiles []string) float64 {
	if len(commitFiles) == 0 {
		return 0
	}
	var haystack strings.Builder
	for _, m := range messages {
		haystack.WriteString(strings.ToLower(m.Content))
		haystack.WriteByte(' ')
	}
	hs := haystack.String()

	matched := 0
	for _, f := range commitFiles {
		if strings.Contains(hs, strings.ToLower(filepath.Base(f))) {
			matched++
		}
	}
	return float64(matched) / float64(len(commitFiles))
}
