// Package plane talks back to the Plane instance that sends us webhooks,
// currently only to fetch actor avatars.
package plane

import (
	"context"
	"io"
	"log"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Avatar is a fetched avatar image, held only for the duration of one
// outbound relay call.
type Avatar struct {
	Data        []byte
	Filename    string
	ContentType string
}

var absoluteURLRE = regexp.MustCompile(`(?i)^https?://`)

// extByType maps the image content types Plane serves to a file
// extension. Anything else falls back to PNG.
var extByType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// redirect-following states for one avatar fetch. The fetch is a small
// explicit state machine so the strip-auth-on-redirect invariant stays
// testable: the Authorization header travels only on the initial request.
type fetchState int

const (
	stateInitial fetchState = iota
	stateRedirected
	stateDone
)

// AvatarFetcher downloads actor avatars from Plane. Relative avatar
// paths resolve against BaseURL; Token, when set, is sent as a bearer
// Authorization header on the initial request only.
type AvatarFetcher struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

func NewAvatarFetcher(baseURL, token string, timeout time.Duration, logger *log.Logger) *AvatarFetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &AvatarFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirects are followed manually so the Authorization
			// header can be dropped: pre-signed storage URLs reject
			// extraneous auth headers.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Fetch resolves and downloads an avatar. Every failure path returns nil:
// a missing avatar must never fail the notification relay.
func (f *AvatarFetcher) Fetch(ctx context.Context, ref string) *Avatar {
	if ref == "" {
		return nil
	}

	url := ref
	if !absoluteURLRE.MatchString(ref) {
		if f.baseURL == "" {
			return nil
		}
		url = f.baseURL + "/" + strings.TrimLeft(ref, "/")
	}

	resp, err := f.get(ctx, url)
	if err != nil {
		f.logger.Printf("could not fetch avatar from %s: %v", url, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Printf("could not fetch avatar from %s: status %d", url, resp.StatusCode)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Printf("could not fetch avatar from %s: %v", url, err)
		return nil
	}

	contentType, ext := filetype(resp.Header.Get("Content-Type"))
	return &Avatar{
		Data:        data,
		Filename:    "avatar" + ext,
		ContentType: contentType,
	}
}

// get walks the fetch state machine: one initial request carrying the
// bearer token, at most one manual redirect hop without it.
func (f *AvatarFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	state := stateInitial
	for state != stateDone {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if state == stateInitial && f.token != "" {
			req.Header.Set("Authorization", "Bearer "+f.token)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if state == stateInitial && isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			if location != "" {
				resp.Body.Close()
				url = location
				state = stateRedirected
				continue
			}
		}
		return resp, nil
	}
	return nil, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

func filetype(header string) (contentType, ext string) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType == "" {
		return "image/png", ".png"
	}
	mediaType = strings.ToLower(mediaType)
	if e, ok := extByType[mediaType]; ok {
		return mediaType, e
	}
	return mediaType, ".png"
}
