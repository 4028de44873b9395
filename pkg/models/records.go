// Package models holds the record types produced by the parsers and
// persisted by the loader, plus the statistics of one ETL run.
package models

import "time"

// GenreCount is the number of boolean category flags carried by an Item.
const GenreCount = 19

// GenreNames lists the category flags in the positional order they appear in
// the item file. They double as the genre column names in the items table.
var GenreNames = [GenreCount]string{
	"unknown", "action", "adventure", "animation", "childrens",
	"comedy", "crime", "documentary", "drama", "fantasy",
	"film_noir", "horror", "musical", "mystery", "romance",
	"sci_fi", "thriller", "war", "western",
}

// Item is one movie from the item file. ID is the natural key.
type Item struct {
	ID               int              `json:"item_id"`
	Title            string           `json:"title"`
	ReleaseDate      *time.Time       `json:"release_date,omitempty"`
	VideoReleaseDate *time.Time       `json:"video_release_date,omitempty"`
	IMDbURL          *string          `json:"imdb_url,omitempty"`
	Genres           [GenreCount]bool `json:"genres"`
}

// HasGenre reports whether the named category flag is set.
func (i Item) HasGenre(name string) bool {
	for idx, g := range GenreNames {
		if g == name {
			return i.Genres[idx]
		}
	}
	return false
}

// Actor is one user from the user file. ID is the natural key.
type Actor struct {
	ID         int    `json:"actor_id"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	Occupation string `json:"occupation"`
	ZipCode    string `json:"zip_code"`
}

// Interaction is one rating. It has no natural key; every stored row gets a
// fresh surrogate id from the store.
type Interaction struct {
	ActorID   int       `json:"actor_id"`
	ItemID    int       `json:"item_id"`
	Score     int       `json:"score"`
	Timestamp int64     `json:"raw_timestamp"`
	RatedAt   time.Time `json:"rated_at"`
}
