// Package safety screens URLs for phishing and malware before they are shortened.
package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Verdict is the outcome of screening one URL
type Verdict struct {
	Malicious bool
	Reason    string
}

// Checker classifies a URL. Errors mean "could not decide".
type Checker interface {
	Name() string
	Check(ctx context.Context, url string) (Verdict, error)
}

// TextGenerator is the slice of the Gemini client used for classification
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, jsonOutput bool) (string, error)
}

// GeminiChecker asks a language model to classify the URL as SAFE,
// PHISHING or MALWARE.
type GeminiChecker struct {
	client TextGenerator
}

// NewGeminiChecker creates a model-backed checker
func NewGeminiChecker(client TextGenerator) *GeminiChecker {
	return &GeminiChecker{client: client}
}

func (c *GeminiChecker) Name() string { return "gemini" }

func (c *GeminiChecker) Check(ctx context.Context, url string) (Verdict, error) {
	prompt := fmt.Sprintf(
		"Analyze the following URL and decide whether it is a safe link, a phishing attempt or contains malware. "+
			`Answer only with a JSON object of the form {"classification": "VALUE"} where VALUE is one of `+
			"'SAFE', 'PHISHING', 'MALWARE'. URL: %s", url)

	text, err := c.client.GenerateText(ctx, prompt, true)
	if err != nil {
		return Verdict{}, err
	}

	var out struct {
		Classification string `json:"classification"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return Verdict{}, fmt.Errorf("gemini classification: %w", err)
	}
	class := strings.ToUpper(strings.TrimSpace(out.Classification))
	if class == "" {
		return Verdict{}, fmt.Errorf("gemini classification missing")
	}
	if class == "SAFE" {
		return Verdict{}, nil
	}
	return Verdict{Malicious: true, Reason: class}, nil
}

// SafeBrowsingChecker looks the URL up in Google Safe Browsing v4
type SafeBrowsingChecker struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewSafeBrowsingChecker creates a Safe Browsing lookup checker
func NewSafeBrowsingChecker(apiKey, endpoint string) *SafeBrowsingChecker {
	return &SafeBrowsingChecker{
		apiKey:   apiKey,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *SafeBrowsingChecker) Name() string { return "safe_browsing" }

type threatEntry struct {
	URL string `json:"url"`
}

type findRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string      `json:"threatTypes"`
		PlatformTypes    []string      `json:"platformTypes"`
		ThreatEntryTypes []string      `json:"threatEntryTypes"`
		ThreatEntries    []threatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type findResponse struct {
	Matches []struct {
		ThreatType string `json:"threatType"`
	} `json:"matches"`
}

func (c *SafeBrowsingChecker) Check(ctx context.Context, url string) (Verdict, error) {
	var reqBody findRequest
	reqBody.Client.ClientID = "lessurl"
	reqBody.Client.ClientVersion = "1.0.0"
	reqBody.ThreatInfo.ThreatTypes = []string{"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE", "POTENTIALLY_HARMFUL_APPLICATION"}
	reqBody.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	reqBody.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	reqBody.ThreatInfo.ThreatEntries = []threatEntry{{URL: url}}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/threatMatches:find", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Verdict{}, fmt.Errorf("safe browsing: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out findResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, fmt.Errorf("safe browsing: decode response: %w", err)
	}
	if len(out.Matches) == 0 {
		return Verdict{}, nil
	}
	return Verdict{Malicious: true, Reason: out.Matches[0].ThreatType}, nil
}

type guardedChecker struct {
	checker Checker
	breaker *gobreaker.CircuitBreaker
}

// Screener runs every configured checker and reports the first malicious
// verdict. Checker failures are logged and treated as safe; each checker
// sits behind its own circuit breaker and timeout.
type Screener struct {
	checkers []guardedChecker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScreener creates a screener over checkers. With no checkers every URL passes.
func NewScreener(timeout time.Duration, logger *slog.Logger, checkers ...Checker) *Screener {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Screener{timeout: timeout, logger: logger}
	for _, c := range checkers {
		s.checkers = append(s.checkers, guardedChecker{
			checker: c,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "safety-" + c.Name(),
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
			}),
		})
	}
	return s
}

// Screen returns the first malicious verdict, or a clean one
func (s *Screener) Screen(ctx context.Context, url string) Verdict {
	for _, g := range s.checkers {
		v, err := s.run(ctx, g, url)
		if err != nil {
			s.logger.WarnContext(ctx, "url screening skipped",
				slog.String("checker", g.checker.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if v.Malicious {
			s.logger.WarnContext(ctx, "malicious url detected",
				slog.String("checker", g.checker.Name()),
				slog.String("reason", v.Reason),
				slog.String("url", url))
			return v
		}
	}
	return Verdict{}
}

func (s *Screener) run(ctx context.Context, g guardedChecker, url string) (Verdict, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.checker.Check(ctx, url)
	})
	if err != nil {
		return Verdict{}, err
	}
	return out.(Verdict), nil
}
