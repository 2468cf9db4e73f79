package evidence

import (
	"strings"
)

type LinkKind int

const (
	LinkNone LinkKind = iota
	LinkYouTube
	LinkVideo
	LinkImage
	LinkPage
)

func (k LinkKind) String() string {
	switch k {
	case LinkYouTube:
		return "youtube"
	case LinkVideo:
		return "video"
	case LinkImage:
		return "image"
	case LinkPage:
		return "page"
	default:
		return "none"
	}
}

type Link struct {
	Kind LinkKind
	URL  string
}

// Classify recognises the common proof links players paste and normalises
// YouTube links to their embed form.
func Classify(link string) Link {
	l := strings.TrimSpace(link)
	if l == "" {
		return Link{Kind: LinkNone}
	}

	if strings.Contains(l, "youtube.com") || strings.Contains(l, "youtu.be") {
		videoID := ""
		switch {
		case strings.Contains(l, "youtube.com/watch?v="):
			if _, after, ok := strings.Cut(l, "v="); ok {
				videoID, _, _ = strings.Cut(after, "&")
			}
		case strings.Contains(l, "youtu.be/"):
			if _, after, ok := strings.Cut(l, "youtu.be/"); ok {
				videoID, _, _ = strings.Cut(after, "?")
			}
		case strings.Contains(l, "youtube.com/embed/"):
			return Link{Kind: LinkYouTube, URL: l}
		}
		if videoID != "" {
			return Link{Kind: LinkYouTube, URL: "https://www.youtube.com/embed/" + videoID}
		}
	}

	path, _, _ := strings.Cut(strings.ToLower(l), "?")
	for _, ext := range []string{".mp4", ".webm", ".ogg", ".mov"} {
		if strings.HasSuffix(path, ext) {
			return Link{Kind: LinkVideo, URL: l}
		}
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(path, ext) {
			return Link{Kind: LinkImage, URL: l}
		}
	}

	return Link{Kind: LinkPage, URL: l}
}

// Normalize classifies every link and drops the empty ones.
func Normalize(links []string) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if c := Classify(l); c.Kind != LinkNone {
			out = append(out, c.URL)
		}
	}
	return out
}
