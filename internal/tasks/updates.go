package tasks

import (
	"fmt"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/services"
)

// ProgressUpdate represents a progress event during curation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Pipeline phase enumeration
type Phase int

const (
	GenerateQuery Phase = iota
	Route
	ReuseTracks
	SearchCatalog
	MatchPlaylist
	VerifyTracks
	Persist
	Finished
)

func (p Phase) String() string {
	switch p {
	case GenerateQuery:
		return "generate_query"
	case Route:
		return "route"
	case ReuseTracks:
		return "reuse"
	case SearchCatalog:
		return "search_catalog"
	case MatchPlaylist:
		return "match_playlist"
	case VerifyTracks:
		return "verify_tracks"
	case Persist:
		return "persist"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

func generateQueryUpdate(attempt, budget int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   GenerateQuery,
		Step:    attempt,
		Total:   budget,
		Message: fmt.Sprintf("Generating search query (attempt %d of %d)...", attempt, budget),
	}
}

func routeUpdate(query string, d Decision, similar, recent int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Route,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Query %q: %d similar tracks, %d recently suggested, %s", query, similar, recent, d),
		Data:    d,
	}
}

func reuseUpdate(step, total int, tr *models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReuseTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Reusing %s - %s", step, total, tr.Artist, tr.Title),
	}
}

func searchCatalogUpdate(query string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchCatalog,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Searching catalog playlists for %q...", query),
	}
}

func matchPlaylistUpdate(step, total int, pl services.CatalogPlaylist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MatchPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Checking playlist: %s", step, total, pl.Name),
	}
}

func matchedPlaylistUpdate(pl services.CatalogPlaylist, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MatchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Matched playlist: %s (%d tracks)", pl.Name, tracks),
		Data:    pl,
	}
}

func verifyTrackUpdate(step, total int, tr services.CatalogTrack, ok bool) ProgressUpdate {
	mark := "✗"
	if ok {
		mark = "✓"
	}
	return ProgressUpdate{
		Phase:   VerifyTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s - %s", step, total, mark, tr.PrimaryArtist(), tr.Title),
	}
}

func persistUpdate(step, total int, v models.VerifiedTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Persist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Saving %s - %s", step, total, v.Artist, v.Title),
	}
}

func finishedUpdate(added int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finished,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Added %d tracks", added),
		Data:    added,
	}
}
