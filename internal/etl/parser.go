package etl

import (
	"strings"
	"unicode/utf8"

	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/BartekS5/movielens-etl/pkg/utils"
	"golang.org/x/text/encoding/charmap"
)

const (
	itemFieldCount        = 5 + models.GenreCount
	actorFieldCount       = 5
	interactionFieldCount = 4
)

// decodeLines decodes latin-1 content and splits it into lines. Titles in the
// item file contain bytes that are not valid UTF-8.
func decodeLines(source string, data []byte) ([]string, error) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, &ParseError{Source: source, Reason: err.Error()}
	}

	text := strings.TrimSpace(string(decoded))
	if text == "" {
		return nil, &ParseError{Source: source, Reason: "empty content"}
	}

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, nil
}

// ParseItems parses the pipe-separated item file. Lines with fewer than 24
// fields, a non-numeric id or a flag other than "0"/"1" are dropped and
// counted in skipped.
func ParseItems(data []byte) (items []models.Item, skipped int, err error) {
	lines, err := decodeLines("items", data)
	if err != nil {
		return nil, 0, err
	}

	items = make([]models.Item, 0, len(lines))
	for _, line := range lines {
		item, ok := parseItemLine(line)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

func parseItemLine(line string) (models.Item, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < itemFieldCount {
		return models.Item{}, false
	}

	id, err := utils.ConvertToInt(parts[0])
	if err != nil {
		return models.Item{}, false
	}

	item := models.Item{
		ID:               id,
		Title:            parts[1],
		ReleaseDate:      utils.ConvertReleaseDate(parts[2]),
		VideoReleaseDate: utils.ConvertReleaseDate(parts[3]),
		IMDbURL:          utils.NullableString(strings.TrimSpace(parts[4])),
	}
	for i := 0; i < models.GenreCount; i++ {
		flag, err := utils.ConvertFlag(parts[5+i])
		if err != nil {
			return models.Item{}, false
		}
		item.Genres[i] = flag
	}
	return item, true
}

// ParseActors parses the pipe-separated user file.
func ParseActors(data []byte) (actors []models.Actor, skipped int, err error) {
	lines, err := decodeLines("actors", data)
	if err != nil {
		return nil, 0, err
	}

	actors = make([]models.Actor, 0, len(lines))
	for _, line := range lines {
		actor, ok := parseActorLine(line)
		if !ok {
			skipped++
			continue
		}
		actors = append(actors, actor)
	}
	return actors, skipped, nil
}

func parseActorLine(line string) (models.Actor, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < actorFieldCount {
		return models.Actor{}, false
	}

	id, err := utils.ConvertToInt(parts[0])
	if err != nil {
		return models.Actor{}, false
	}
	age, err := utils.ConvertToInt(parts[1])
	if err != nil {
		return models.Actor{}, false
	}
	gender := strings.TrimSpace(parts[2])
	if utf8.RuneCountInString(gender) != 1 {
		return models.Actor{}, false
	}

	return models.Actor{
		ID:         id,
		Age:        age,
		Gender:     gender,
		Occupation: parts[3],
		ZipCode:    strings.TrimSpace(parts[4]),
	}, true
}

// ParseInteractions parses the tab-separated rating file. RatedAt is derived
// from the unix timestamp in UTC.
func ParseInteractions(data []byte) (interactions []models.Interaction, skipped int, err error) {
	lines, err := decodeLines("interactions", data)
	if err != nil {
		return nil, 0, err
	}

	interactions = make([]models.Interaction, 0, len(lines))
	for _, line := range lines {
		in, ok := parseInteractionLine(line)
		if !ok {
			skipped++
			continue
		}
		interactions = append(interactions, in)
	}
	return interactions, skipped, nil
}

func parseInteractionLine(line string) (models.Interaction, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < interactionFieldCount {
		return models.Interaction{}, false
	}

	actorID, err := utils.ConvertToInt(parts[0])
	if err != nil {
		return models.Interaction{}, false
	}
	itemID, err := utils.ConvertToInt(parts[1])
	if err != nil {
		return models.Interaction{}, false
	}
	score, err := utils.ConvertToInt(parts[2])
	if err != nil {
		return models.Interaction{}, false
	}
	ts, err := utils.ConvertToInt64(parts[3])
	if err != nil {
		return models.Interaction{}, false
	}

	return models.Interaction{
		ActorID:   actorID,
		ItemID:    itemID,
		Score:     score,
		Timestamp: ts,
		RatedAt:   utils.ConvertUnixTime(ts),
	}, true
}
