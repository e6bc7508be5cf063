package spotify

// Playlist is a playlist summary as shown in the picker.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TrackCount int    `json:"trackCount"`
	Image      string `json:"image,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Public     bool   `json:"public"`
}

// TrackArtist is one contributing artist on a track.
type TrackArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is one playlist entry. Immutable once fetched.
type Track struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	URI        string        `json:"uri"`
	Album      string        `json:"album"`
	AlbumImage string        `json:"albumImage,omitempty"`
	Artists    []TrackArtist `json:"artists"`
}

// PrimaryArtist returns the first listed contributor, the grouping key
// for enrichment.
func (t Track) PrimaryArtist() TrackArtist {
	if len(t.Artists) == 0 {
		return TrackArtist{}
	}
	return t.Artists[0]
}

// ArtistMetadata is the catalog view of one artist.
type ArtistMetadata struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Followers  int      `json:"followers"`
	Genres     []string `json:"genres,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// Release is one album or single.
type Release struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"releaseDate"`
	Precision   string `json:"releaseDatePrecision,omitempty"`
	AlbumType   string `json:"albumType,omitempty"`
}

// Wire types below mirror the upstream API shapes.

type apiImage struct {
	URL string `json:"url"`
}

type apiFollowers struct {
	Total int `json:"total"`
}

type apiArtist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Popularity   int               `json:"popularity"`
	Genres       []string          `json:"genres"`
	Followers    apiFollowers      `json:"followers"`
	ExternalURLs map[string]string `json:"external_urls"`
}

type apiTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Artists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string     `json:"name"`
		Images []apiImage `json:"images"`
	} `json:"album"`
}

type apiPlaylistTrackPage struct {
	Items []struct {
		Track *apiTrack `json:"track"`
	} `json:"items"`
}

type apiPlaylistPage struct {
	Items []struct {
		ID     string     `json:"id"`
		Name   string     `json:"name"`
		Public bool       `json:"public"`
		Images []apiImage `json:"images"`
		Owner  struct {
			DisplayName string `json:"display_name"`
		} `json:"owner"`
		Tracks struct {
			Total int `json:"total"`
		} `json:"tracks"`
	} `json:"items"`
	Next *string `json:"next"`
}

type apiAlbumPage struct {
	Items []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ReleaseDate string `json:"release_date"`
		Precision   string `json:"release_date_precision"`
		AlbumType   string `json:"album_type"`
	} `json:"items"`
}
