package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
)

const youtubeWatchURL = "https://www.youtube.com/watch?v=%s"

// YouTubeService fetches captions for a video. The transcript API is tried
// first in English, then in any language, then the watch page's timedtext
// track is scraped.
type YouTubeService struct {
	httpClient *http.Client
	watchURL   string
	// captionLines returns the caption lines for a video id.
	captionLines func(videoID string, languages []string) ([]string, error)
	logger       *zap.Logger
}

type timedTextXML struct {
	XMLName xml.Name  `xml:"transcript"`
	Texts   []textXML `xml:"text"`
}

type textXML struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func NewYouTubeService(logger *zap.Logger) *YouTubeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := ytapi.NewYouTubeTranscriptApi()
	return &YouTubeService{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		watchURL:   youtubeWatchURL,
		captionLines: func(videoID string, languages []string) ([]string, error) {
			transcript, err := api.GetTranscript(videoID, languages)
			if err != nil {
				return nil, err
			}
			lines := make([]string, 0, len(transcript.Entries))
			for _, entry := range transcript.Entries {
				lines = append(lines, entry.Text)
			}
			return lines, nil
		},
		logger: logger.With(zap.String("component", "youtube")),
	}
}

// FetchTranscript accepts a full video URL or a bare video id.
func (s *YouTubeService) FetchTranscript(ctx context.Context, videoURL string) (string, error) {
	videoID, err := yt.ExtractVideoID(strings.TrimSpace(videoURL))
	if err != nil {
		return "", fmt.Errorf("invalid YouTube URL: %w", err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := s.transcriptFromAPI(videoID)
		done <- result{text, err}
	}()

	var apiErr error
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err == nil {
			return r.text, nil
		}
		apiErr = r.err
	}

	s.logger.Warn("transcript API failed, trying timedtext", zap.String("video_id", videoID), zap.Error(apiErr))
	text, err := s.transcriptViaTimedText(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("no subtitles available via transcript API (%v) and timedtext fallback failed (%w)", apiErr, err)
	}
	return text, nil
}

func (s *YouTubeService) transcriptFromAPI(videoID string) (string, error) {
	lines, err := s.captionLines(videoID, []string{"en", "en-US", "en-GB"})
	if err != nil {
		// Fallback: request any available language
		lines, err = s.captionLines(videoID, nil)
		if err != nil {
			return "", err
		}
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("subtitle track is empty")
	}

	var fullText strings.Builder
	for _, line := range lines {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		fullText.WriteString(text)
		fullText.WriteString(" ")
	}

	cleaned := strings.TrimSpace(fullText.String())
	if cleaned == "" {
		return "", fmt.Errorf("subtitle text resolved to empty content")
	}
	return cleaned, nil
}

func (s *YouTubeService) transcriptViaTimedText(ctx context.Context, videoID string) (string, error) {
	pageHTML, err := s.get(ctx, fmt.Sprintf(s.watchURL, videoID), true)
	if err != nil {
		return "", fmt.Errorf("failed to fetch YouTube page: %w", err)
	}

	captionURL, err := extractCaptionURL(string(pageHTML))
	if err != nil {
		return "", err
	}

	captionBody, err := s.get(ctx, captionURL, false)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captions: %w", err)
	}

	transcript, err := parseCaptionsXML(captionBody)
	if err != nil {
		return "", fmt.Errorf("failed to parse captions XML: %w", err)
	}
	return transcript, nil
}

func (s *YouTubeService) get(ctx context.Context, url string, browser bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if browser {
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var (
	captionTracksPattern   = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	captionRendererPattern = regexp.MustCompile(`"playerCaptionsTracklistRenderer"\s*:\s*\{(?:.*?,)?\s*"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	captionBaseURLPattern  = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
)

func extractCaptionURL(pageHTML string) (string, error) {
	matches := captionTracksPattern.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		matches = captionRendererPattern.FindStringSubmatch(pageHTML)
		if len(matches) < 2 {
			return "", fmt.Errorf("no captions available for this video")
		}
	}

	urlMatches := captionBaseURLPattern.FindStringSubmatch(matches[1])
	if len(urlMatches) < 2 {
		return "", fmt.Errorf("caption track found but baseUrl missing")
	}

	u := urlMatches[1]
	u = strings.ReplaceAll(u, `\u0026`, "&")
	u = strings.ReplaceAll(u, `\/`, "/")
	return u, nil
}

func parseCaptionsXML(data []byte) (string, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return "", err
	}

	var parts []string
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Text))
		if text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("captions XML empty")
	}
	return strings.Join(parts, " "), nil
}
