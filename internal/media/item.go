package media

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cgmanager/internal/amcp"
)

// Media types reported by the engine.
const (
	TypeMovie = "MOVIE"
	TypeStill = "STILL"
	TypeAudio = "AUDIO"
)

const modifiedLayout = "20060102150405"

// Item is one entry of the engine's media listing.
type Item struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Frames   int64     `json:"frames"`
	// FrameNum/FrameDen is the duration of one frame in seconds, as listed
	// by the engine (1/25 for 25 fps material).
	FrameNum  int64     `json:"frame_num"`
	FrameDen  int64     `json:"frame_den"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Duration returns the playback length, or 0 when the engine did not report
// frame timing (stills, unknown formats).
func (i Item) Duration() time.Duration {
	if i.Frames <= 0 || i.FrameNum <= 0 || i.FrameDen <= 0 {
		return 0
	}
	return time.Duration(i.Frames * i.FrameNum * int64(time.Second) / i.FrameDen)
}

// FrameRate returns frames per second, or 0 when unknown.
func (i Item) FrameRate() float64 {
	if i.FrameNum <= 0 || i.FrameDen <= 0 {
		return 0
	}
	return float64(i.FrameDen) / float64(i.FrameNum)
}

// NormalizeID maps a media name to the form the engine lists it under:
// upper case with forward slashes.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, `\`, "/")
	return strings.ToUpper(id)
}

// ParseListing parses the data lines of a CLS response. Lines that do not
// parse are returned as errors alongside the items that did.
func ParseListing(lines []string) ([]Item, []error) {
	var (
		items []Item
		errs  []error
	)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		item, err := ParseLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, item)
	}
	return items, errs
}

// ParseLine parses one listing line such as
//
//	"AMB" MOVIE 6445960 20170413141407 268 1/25
func ParseLine(line string) (Item, error) {
	fields := amcp.SplitParams(strings.TrimSpace(line))
	if len(fields) < 2 || fields[0] == "" {
		return Item{}, fmt.Errorf("media listing %q: missing name or type", line)
	}
	item := Item{
		ID:   NormalizeID(fields[0]),
		Type: strings.ToUpper(fields[1]),
	}
	if len(fields) > 2 {
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return Item{}, fmt.Errorf("media listing %q: size: %w", line, err)
		}
		item.Size = size
	}
	if len(fields) > 3 {
		if ts, err := time.ParseInLocation(modifiedLayout, fields[3], time.Local); err == nil {
			item.Modified = ts.UTC()
		}
	}
	if len(fields) > 4 {
		frames, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return Item{}, fmt.Errorf("media listing %q: frames: %w", line, err)
		}
		item.Frames = frames
	}
	if len(fields) > 5 {
		num, den, ok := strings.Cut(fields[5], "/")
		if ok {
			item.FrameNum, _ = strconv.ParseInt(num, 10, 64)
			item.FrameDen, _ = strconv.ParseInt(den, 10, 64)
		}
	}
	return item, nil
}
